package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateScene inserts a scene. An empty ID is replaced with a new UUID.
func (s *Store) CreateScene(ctx context.Context, scene Scene) (*Scene, error) {
	if strings.TrimSpace(scene.Title) == "" {
		return nil, errors.New("scene title is required")
	}
	if scene.ID == "" {
		scene.ID = uuid.NewString()
	}
	ts := s.timestamp()
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO scenes (id, title, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		scene.ID,
		scene.Title,
		nullableString(scene.Description),
		ts,
		ts,
	); err != nil {
		return nil, fmt.Errorf("insert scene: %w", err)
	}
	return s.GetScene(ctx, scene.ID)
}

// GetScene fetches a scene by ID. It returns nil, nil when absent.
func (s *Store) GetScene(ctx context.Context, id string) (*Scene, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// ListScenes returns all scenes, oldest first.
func (s *Store) ListScenes(ctx context.Context) ([]*Scene, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// CreateSegment inserts a PENDING segment. The (scene, order index) pair must be unique.
func (s *Store) CreateSegment(ctx context.Context, seg Segment) (*Segment, error) {
	if seg.SceneID == "" {
		return nil, errors.New("segment scene id is required")
	}
	if strings.TrimSpace(seg.Prompt) == "" {
		return nil, errors.New("segment prompt is required")
	}
	if seg.OrderIndex < 0 {
		return nil, fmt.Errorf("segment order index %d is negative", seg.OrderIndex)
	}
	if seg.ID == "" {
		seg.ID = uuid.NewString()
	}
	ts := s.timestamp()
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO segments (
            id, scene_id, order_index, prompt, expanded_script, status,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.ID,
		seg.SceneID,
		seg.OrderIndex,
		seg.Prompt,
		nullableString(seg.ExpandedScript),
		StatusPending,
		ts,
		ts,
	); err != nil {
		return nil, fmt.Errorf("insert segment: %w", err)
	}
	return s.GetSegment(ctx, seg.ID)
}

// NextOrderIndex returns the order index following the scene's last segment.
func (s *Store) NextOrderIndex(ctx context.Context, sceneID string) (int, error) {
	ctx = ensureContext(ctx)
	var next sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(order_index) + 1 FROM segments WHERE scene_id = ?`, sceneID,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("next order index: %w", err)
	}
	return int(next.Int64), nil
}

// GetSegment fetches a segment by ID. It returns nil, nil when absent.
func (s *Store) GetSegment(ctx context.Context, id string) (*Segment, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

// GetSegmentsBefore returns the scene's segments with a smaller order index, ascending.
func (s *Store) GetSegmentsBefore(ctx context.Context, sceneID string, orderIndex int) ([]*Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE scene_id = ? AND order_index < ? ORDER BY order_index`,
		sceneID, orderIndex,
	)
}

// ListSegments returns every segment of a scene in order.
func (s *Store) ListSegments(ctx context.Context, sceneID string) ([]*Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE scene_id = ? ORDER BY order_index`,
		sceneID,
	)
}

func (s *Store) querySegments(ctx context.Context, query string, args ...any) ([]*Segment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// UpdateSegment applies a partial update in a single statement.
func (s *Store) UpdateSegment(ctx context.Context, id string, update SegmentUpdate) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.ExpandedScript != nil {
		add("expanded_script", *update.ExpandedScript)
	}
	if update.VideoURL != nil {
		add("video_url", nullableString(*update.VideoURL))
	}
	if update.HLSURL != nil {
		add("hls_url", nullableString(*update.HLSURL))
	}
	if update.ThumbnailURL != nil {
		add("thumbnail_url", nullableString(*update.ThumbnailURL))
	}
	if update.Duration != nil {
		add("duration", *update.Duration)
	}
	if update.ContinuityHash != nil {
		add("continuity_hash", nullableString(*update.ContinuityHash))
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", s.timestamp())
	args = append(args, id)

	res, err := s.execWithRetry(ctx, `UPDATE segments SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update segment %s: %w", id, sql.ErrNoRows)
	}
	return nil
}
