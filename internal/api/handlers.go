package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"storyforge/internal/queue"
)

func (s *Server) health(c echo.Context) error {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) workflowStatus(c echo.Context) error {
	ctx := c.Request().Context()
	if s.status != nil {
		return c.JSON(http.StatusOK, FromStatusSummary(s.status(ctx), s.now()))
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return err
	}
	status := WorkflowStatus{QueueStats: make(map[string]int, len(stats)), ActiveScenes: []string{}}
	for st, count := range stats {
		status.QueueStats[string(st)] = count
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) listJobs(c echo.Context) error {
	var statuses []queue.Status
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := queue.ParseStatus(part)
			if !ok {
				return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+strings.TrimSpace(part))
			}
			statuses = append(statuses, status)
		}
	}
	jobs, err := s.store.ListJobs(c.Request().Context(), statuses...)
	if err != nil {
		return err
	}
	now := s.now()
	resp := JobListResponse{Jobs: make([]Job, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, FromJob(job, now))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getJob(c echo.Context) error {
	ctx := c.Request().Context()
	job, err := s.store.GetJob(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	resp := JobResponse{Job: FromJob(job, s.now())}
	seg, err := s.store.GetSegment(ctx, job.SegmentID)
	if err != nil {
		return err
	}
	if seg != nil {
		dto := FromSegment(seg)
		resp.Segment = &dto
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) retryJob(c echo.Context) error {
	jobs, err := s.store.RequeueFailed(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	case errors.Is(err, queue.ErrNotFailed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrActiveJob):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return err
	}
	if len(jobs) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusAccepted, JobResponse{Job: FromJob(jobs[0], s.now())})
}

func (s *Server) getScene(c echo.Context) error {
	ctx := c.Request().Context()
	scene, err := s.store.GetScene(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if scene == nil {
		return echo.NewHTTPError(http.StatusNotFound, "scene not found")
	}
	segments, err := s.store.ListSegments(ctx, scene.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, FromScene(scene, segments))
}

func (s *Server) getBible(c echo.Context) error {
	b, err := s.store.GetSceneBible(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if b == nil {
		return echo.NewHTTPError(http.StatusNotFound, "scene has no bible")
	}
	return c.JSON(http.StatusOK, b)
}
