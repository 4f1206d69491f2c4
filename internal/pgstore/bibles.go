package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storyforge/internal/bible"
)

const bibleColumns = "scene_id, characters, locations, objects, timeline, rules, version"

type bibleQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadBible(ctx context.Context, q bibleQuerier, sceneID string, forUpdate bool) (*bible.Bible, error) {
	query := `SELECT ` + bibleColumns + ` FROM scene_bibles WHERE scene_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		b                                               = bible.New("")
		characters, locations, objects, timeline, rules []byte
	)
	err := q.QueryRow(ctx, query, sceneID).
		Scan(&b.SceneID, &characters, &locations, &objects, &timeline, &rules, &b.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scene bible: %w", err)
	}
	columns := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"characters", characters, &b.Characters},
		{"locations", locations, &b.Locations},
		{"objects", objects, &b.Objects},
		{"timeline", timeline, &b.Timeline},
		{"rules", rules, &b.Rules},
	}
	for _, col := range columns {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode bible %s: %w", col.name, err)
		}
	}
	return b.Clone(), nil
}

func (s *Store) writeBible(ctx context.Context, tx pgx.Tx, b *bible.Bible) error {
	view := b.Clone()
	values := []any{view.Characters, view.Locations, view.Objects, view.Timeline, view.Rules}
	if view.Timeline == nil {
		values[3] = []bible.TimelineEvent{}
	}
	if view.Rules == nil {
		values[4] = []bible.Rule{}
	}
	args := []any{b.SceneID}
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode bible: %w", err)
		}
		args = append(args, string(data))
	}
	args = append(args, b.Version, s.timestamp())
	_, err := tx.Exec(ctx,
		`INSERT INTO scene_bibles (
            scene_id, characters, locations, objects, timeline, rules, version, updated_at
        ) VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5::jsonb, $6::jsonb, $7, $8)
        ON CONFLICT (scene_id) DO UPDATE SET
            characters = EXCLUDED.characters,
            locations = EXCLUDED.locations,
            objects = EXCLUDED.objects,
            timeline = EXCLUDED.timeline,
            rules = EXCLUDED.rules,
            version = EXCLUDED.version,
            updated_at = EXCLUDED.updated_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("write scene bible: %w", err)
	}
	return nil
}

// GetSceneBible returns the scene's bible, or nil, nil when none exists.
func (s *Store) GetSceneBible(ctx context.Context, sceneID string) (*bible.Bible, error) {
	return loadBible(ctx, s.pool, sceneID, false)
}

// MergeSceneBible folds updates into the stored bible under a row lock and
// bumps the version when anything changed. A missing bible is created.
func (s *Store) MergeSceneBible(ctx context.Context, sceneID string, updates *bible.Bible) (*bible.Bible, error) {
	var merged *bible.Bible
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// The advisory lock covers the first merge, when no row exists to lock.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('bible:' || $1))`, sceneID); err != nil {
			return fmt.Errorf("lock scene bible: %w", err)
		}
		current, err := loadBible(ctx, tx, sceneID, true)
		if err != nil {
			return err
		}
		if current == nil {
			current = bible.New(sceneID)
		}
		current.SceneID = sceneID
		if current.Merge(updates) == 0 {
			merged = current
			return nil
		}
		current.Version++
		if err := s.writeBible(ctx, tx, current); err != nil {
			return err
		}
		merged = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// PutSceneBible replaces the scene's bible wholesale. The version still
// increases monotonically.
func (s *Store) PutSceneBible(ctx context.Context, b *bible.Bible) (*bible.Bible, error) {
	if b == nil || b.SceneID == "" {
		return nil, errors.New("bible scene id is required")
	}
	stored := b.Clone()
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('bible:' || $1))`, b.SceneID); err != nil {
			return fmt.Errorf("lock scene bible: %w", err)
		}
		current, err := loadBible(ctx, tx, b.SceneID, true)
		if err != nil {
			return err
		}
		stored.Version = 1
		if current != nil {
			stored.Version = current.Version + 1
		}
		return s.writeBible(ctx, tx, stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}
