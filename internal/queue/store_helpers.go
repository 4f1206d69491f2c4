package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, type, segment_id, scene_id, status, priority, progress, stage, result_json, error_message, attempt, attempts, max_attempts, next_attempt_at, lease_expires_at, created_at, updated_at, started_at, completed_at"

const segmentColumns = "id, scene_id, order_index, prompt, expanded_script, status, video_url, hls_url, thumbnail_url, duration, continuity_hash, created_at, updated_at"

const sceneColumns = "id, title, description, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		statusStr    string
		stage        sql.NullString
		result       sql.NullString
		errorMessage sql.NullString
		nextAtRaw    sql.NullString
		leaseRaw     sql.NullString
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Type,
		&job.SegmentID,
		&job.SceneID,
		&statusStr,
		&job.Priority,
		&job.Progress,
		&stage,
		&result,
		&errorMessage,
		&job.Attempt,
		&job.Attempts,
		&job.MaxAttempts,
		&nextAtRaw,
		&leaseRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(statusStr)
	job.Stage = stage.String
	job.ResultJSON = result.String
	job.Error = errorMessage.String
	job.NextAttemptAt = parseNullableTime(nextAtRaw)
	job.LeaseExpiresAt = parseNullableTime(leaseRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func scanSegment(scanner rowScanner) (*Segment, error) {
	var (
		seg        Segment
		statusStr  string
		script     sql.NullString
		videoURL   sql.NullString
		hlsURL     sql.NullString
		thumbURL   sql.NullString
		duration   sql.NullFloat64
		hash       sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&seg.ID,
		&seg.SceneID,
		&seg.OrderIndex,
		&seg.Prompt,
		&script,
		&statusStr,
		&videoURL,
		&hlsURL,
		&thumbURL,
		&duration,
		&hash,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	seg.Status = Status(statusStr)
	seg.ExpandedScript = script.String
	seg.VideoURL = videoURL.String
	seg.HLSURL = hlsURL.String
	seg.ThumbnailURL = thumbURL.String
	seg.Duration = duration.Float64
	seg.ContinuityHash = hash.String
	if created, err := parseTimeString(createdRaw); err == nil {
		seg.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		seg.UpdatedAt = updated
	}
	return &seg, nil
}

func scanScene(scanner rowScanner) (*Scene, error) {
	var (
		scene       Scene
		description sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&scene.ID, &scene.Title, &description, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	scene.Description = description.String
	if created, err := parseTimeString(createdRaw); err == nil {
		scene.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		scene.UpdatedAt = updated
	}
	return &scene, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
