package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"storyforge/internal/progress"
	"storyforge/internal/queue"
)

// jobEvents streams a job's progress as server-sent events. The stream opens
// with a snapshot of the stored row, follows the hub and closes once the job
// reaches a terminal status. Last-Event-ID resumes after a hub sequence.
func (s *Server) jobEvents(c echo.Context) error {
	ctx := c.Request().Context()
	jobID := c.Param("id")
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	snapshot := progress.Event{
		JobID:     job.ID,
		SegmentID: job.SegmentID,
		SceneID:   job.SceneID,
		Stage:     job.Stage,
		Percent:   job.Progress,
		Status:    string(job.Status),
		Message:   job.Error,
		Timestamp: job.UpdatedAt,
	}
	if err := writeEvent(res, "snapshot", snapshot); err != nil {
		return nil
	}
	if job.Status.IsTerminal() || s.hub == nil {
		return nil
	}

	since, _ := strconv.ParseUint(c.Request().Header.Get("Last-Event-ID"), 10, 64)
	for {
		waitCtx, cancel := context.WithTimeout(ctx, s.keepAlive)
		events, next, err := s.hub.Fetch(waitCtx, progress.Query{Since: since, JobID: jobID, Wait: true})
		cancel()
		since = next
		for _, evt := range events {
			if err := writeEvent(res, "progress", evt); err != nil {
				return nil
			}
			if queue.Status(evt.Status).IsTerminal() {
				return nil
			}
		}
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			if _, werr := fmt.Fprint(res, ": keep-alive\n\n"); werr != nil {
				return nil
			}
			res.Flush()
		case err != nil:
			return nil
		}
		if len(events) == 0 {
			// The job may have settled while no event was buffered for it.
			if current, err := s.store.GetJob(ctx, jobID); err == nil && current != nil && current.Status.IsTerminal() {
				snapshot.Status = string(current.Status)
				snapshot.Percent = current.Progress
				snapshot.Message = current.Error
				snapshot.Timestamp = time.Now().UTC()
				_ = writeEvent(res, "snapshot", snapshot)
				return nil
			}
		}
	}
}

func writeEvent(res *echo.Response, name string, evt progress.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if evt.Sequence > 0 {
		if _, err := fmt.Fprintf(res, "id: %d\n", evt.Sequence); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}
