package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storyforge/internal/bible"
)

const bibleColumns = "scene_id, characters_json, locations_json, objects_json, timeline_json, rules_json, version"

type bibleQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadBible(ctx context.Context, q bibleQuerier, sceneID string) (*bible.Bible, error) {
	var (
		b                                               = bible.New("")
		characters, locations, objects, timeline, rules string
	)
	err := q.QueryRowContext(ctx, `SELECT `+bibleColumns+` FROM scene_bibles WHERE scene_id = ?`, sceneID).
		Scan(&b.SceneID, &characters, &locations, &objects, &timeline, &rules, &b.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scene bible: %w", err)
	}
	columns := []struct {
		name string
		raw  string
		dst  any
	}{
		{"characters", characters, &b.Characters},
		{"locations", locations, &b.Locations},
		{"objects", objects, &b.Objects},
		{"timeline", timeline, &b.Timeline},
		{"rules", rules, &b.Rules},
	}
	for _, col := range columns {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode bible %s: %w", col.name, err)
		}
	}
	// Decoding "null" clears the maps.
	return b.Clone(), nil
}

func encodeBible(b *bible.Bible) ([]any, error) {
	view := b.Clone()
	values := []any{view.Characters, view.Locations, view.Objects, view.Timeline, view.Rules}
	if view.Timeline == nil {
		values[3] = []bible.TimelineEvent{}
	}
	if view.Rules == nil {
		values[4] = []bible.Rule{}
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode bible: %w", err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

func (s *Store) writeBible(ctx context.Context, tx *sql.Tx, b *bible.Bible) error {
	encoded, err := encodeBible(b)
	if err != nil {
		return err
	}
	args := append([]any{b.SceneID}, encoded...)
	args = append(args, b.Version, s.timestamp())
	_, err = tx.ExecContext(ctx,
		`INSERT INTO scene_bibles (
            scene_id, characters_json, locations_json, objects_json,
            timeline_json, rules_json, version, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(scene_id) DO UPDATE SET
            characters_json = excluded.characters_json,
            locations_json = excluded.locations_json,
            objects_json = excluded.objects_json,
            timeline_json = excluded.timeline_json,
            rules_json = excluded.rules_json,
            version = excluded.version,
            updated_at = excluded.updated_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("write scene bible: %w", err)
	}
	return nil
}

// GetSceneBible returns the scene's bible, or nil, nil when none exists.
func (s *Store) GetSceneBible(ctx context.Context, sceneID string) (*bible.Bible, error) {
	return loadBible(ensureContext(ctx), s.db, sceneID)
}

// MergeSceneBible folds updates into the stored bible inside one transaction
// and bumps the version when anything changed. A missing bible is created.
func (s *Store) MergeSceneBible(ctx context.Context, sceneID string, updates *bible.Bible) (*bible.Bible, error) {
	ctx = ensureContext(ctx)
	var merged *bible.Bible
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := loadBible(ctx, tx, sceneID)
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

// PutSceneBible replaces the scene's bible wholesale, as an import does.
// The stored version still increases monotonically.
func (s *Store) PutSceneBible(ctx context.Context, b *bible.Bible) (*bible.Bible, error) {
	if b == nil || b.SceneID == "" {
		return nil, errors.New("bible scene id is required")
	}
	ctx = ensureContext(ctx)
	stored := b.Clone()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := loadBible(ctx, tx, b.SceneID)
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
