package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"storyforge/internal/queue"
)

const sceneColumns = "id, title, description, created_at, updated_at"

const segmentColumns = `id, scene_id, order_index, prompt, expanded_script, status, video_url,
    hls_url, thumbnail_url, duration, continuity_hash, created_at, updated_at`

func scanScene(row pgx.Row) (*queue.Scene, error) {
	var (
		scene       queue.Scene
		description *string
	)
	if err := row.Scan(&scene.ID, &scene.Title, &description, &scene.CreatedAt, &scene.UpdatedAt); err != nil {
		return nil, err
	}
	scene.Description = deref(description)
	return &scene, nil
}

func scanSegment(row pgx.Row) (*queue.Segment, error) {
	var (
		seg                                            queue.Segment
		script, videoURL, hlsURL, thumbnailURL, digest *string
		duration                                       *float64
		status                                         string
	)
	if err := row.Scan(&seg.ID, &seg.SceneID, &seg.OrderIndex, &seg.Prompt, &script, &status,
		&videoURL, &hlsURL, &thumbnailURL, &duration, &digest, &seg.CreatedAt, &seg.UpdatedAt); err != nil {
		return nil, err
	}
	seg.Status = queue.Status(status)
	seg.ExpandedScript = deref(script)
	seg.VideoURL = deref(videoURL)
	seg.HLSURL = deref(hlsURL)
	seg.ThumbnailURL = deref(thumbnailURL)
	seg.ContinuityHash = deref(digest)
	if duration != nil {
		seg.Duration = *duration
	}
	return &seg, nil
}

// CreateScene inserts a scene. An empty ID is replaced with a new UUID.
func (s *Store) CreateScene(ctx context.Context, scene queue.Scene) (*queue.Scene, error) {
	if strings.TrimSpace(scene.Title) == "" {
		return nil, errors.New("scene title is required")
	}
	if scene.ID == "" {
		scene.ID = uuid.NewString()
	}
	ts := s.timestamp()
	created, err := scanScene(s.pool.QueryRow(ctx,
		`INSERT INTO scenes (id, title, description, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $4)
         RETURNING `+sceneColumns,
		scene.ID, scene.Title, nullable(scene.Description), ts,
	))
	if err != nil {
		return nil, fmt.Errorf("insert scene: %w", err)
	}
	return created, nil
}

// GetScene fetches a scene by ID. It returns nil, nil when absent.
func (s *Store) GetScene(ctx context.Context, id string) (*queue.Scene, error) {
	scene, err := scanScene(s.pool.QueryRow(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// ListScenes returns all scenes, oldest first.
func (s *Store) ListScenes(ctx context.Context) ([]*queue.Scene, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()
	var scenes []*queue.Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// CreateSegment inserts a PENDING segment.
func (s *Store) CreateSegment(ctx context.Context, seg queue.Segment) (*queue.Segment, error) {
	if strings.TrimSpace(seg.Prompt) == "" {
		return nil, errors.New("segment prompt is required")
	}
	if seg.SceneID == "" {
		return nil, errors.New("segment scene id is required")
	}
	if seg.ID == "" {
		seg.ID = uuid.NewString()
	}
	ts := s.timestamp()
	created, err := scanSegment(s.pool.QueryRow(ctx,
		`INSERT INTO segments (id, scene_id, order_index, prompt, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $6)
         RETURNING `+segmentColumns,
		seg.ID, seg.SceneID, seg.OrderIndex, seg.Prompt, string(queue.StatusPending), ts,
	))
	if err != nil {
		return nil, fmt.Errorf("insert segment: %w", err)
	}
	return created, nil
}

// NextOrderIndex returns the order index for a new segment appended to the scene.
func (s *Store) NextOrderIndex(ctx context.Context, sceneID string) (int, error) {
	var next int
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(order_index) + 1, 0) FROM segments WHERE scene_id = $1`, sceneID,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("next order index: %w", err)
	}
	return next, nil
}

// GetSegment fetches a segment by ID. It returns nil, nil when absent.
func (s *Store) GetSegment(ctx context.Context, id string) (*queue.Segment, error) {
	seg, err := scanSegment(s.pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

// GetSegmentsBefore returns the scene's segments with a smaller order index, ascending.
func (s *Store) GetSegmentsBefore(ctx context.Context, sceneID string, orderIndex int) ([]*queue.Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE scene_id = $1 AND order_index < $2 ORDER BY order_index`,
		sceneID, orderIndex,
	)
}

// ListSegments returns every segment of a scene in order.
func (s *Store) ListSegments(ctx context.Context, sceneID string) ([]*queue.Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE scene_id = $1 ORDER BY order_index`,
		sceneID,
	)
}

func (s *Store) querySegments(ctx context.Context, query string, args ...any) ([]*queue.Segment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	var segments []*queue.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// UpdateSegment applies a partial update in a single statement. A missing
// segment reports sql.ErrNoRows, as the SQLite store does.
func (s *Store) UpdateSegment(ctx context.Context, id string, update queue.SegmentUpdate) error {
	var set setClause
	if update.Status != nil {
		set.add("status", string(*update.Status))
	}
	if update.ExpandedScript != nil {
		set.add("expanded_script", *update.ExpandedScript)
	}
	if update.VideoURL != nil {
		set.add("video_url", nullable(*update.VideoURL))
	}
	if update.HLSURL != nil {
		set.add("hls_url", nullable(*update.HLSURL))
	}
	if update.ThumbnailURL != nil {
		set.add("thumbnail_url", nullable(*update.ThumbnailURL))
	}
	if update.Duration != nil {
		set.add("duration", *update.Duration)
	}
	if update.ContinuityHash != nil {
		set.add("continuity_hash", nullable(*update.ContinuityHash))
	}
	if set.empty() {
		return nil
	}
	set.add("updated_at", s.timestamp())
	query, args := set.build("segments", id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update segment %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// setClause builds "UPDATE t SET a = $1, b = $2 WHERE id = $3".
type setClause struct {
	columns []string
	args    []any
	raw     []string
}

func (c *setClause) add(column string, value any) {
	c.args = append(c.args, value)
	c.columns = append(c.columns, fmt.Sprintf("%s = $%d", column, len(c.args)))
}

// addRaw appends an expression that takes no argument.
func (c *setClause) addRaw(expr string) {
	c.raw = append(c.raw, expr)
}

func (c *setClause) empty() bool {
	return len(c.columns) == 0 && len(c.raw) == 0
}

func (c *setClause) build(table, id string) (string, []any) {
	parts := append(append([]string{}, c.columns...), c.raw...)
	args := append(append([]any{}, c.args...), id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(parts, ", "), len(args)), args
}
