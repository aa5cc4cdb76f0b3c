package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

// RoadmapStore persists roadmaps in SQLite.
type RoadmapStore struct {
	db *DB
}

// NewRoadmapStore creates a new SQLite-backed roadmap store.
func NewRoadmapStore(db *DB) *RoadmapStore {
	return &RoadmapStore{db: db}
}

// Save persists a roadmap (insert or update).
func (s *RoadmapStore) Save(ctx context.Context, rm *domain.Roadmap) error {
	topics, err := json.Marshal(rm.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roadmaps (id, title, topics, fitness, generations, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			topics=excluded.topics,
			fitness=excluded.fitness,
			generations=excluded.generations,
			updated_at=excluded.updated_at`,
		rm.ID.String(), rm.Title, string(topics), rm.Fitness, rm.Generations,
		rm.CreatedAt.UTC(), rm.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert roadmap: %w", err)
	}
	return nil
}

// Get retrieves a roadmap by ID.
func (s *RoadmapStore) Get(ctx context.Context, id uuid.UUID) (*domain.Roadmap, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, topics, fitness, generations, created_at, updated_at
		FROM roadmaps WHERE id = ?`, id.String())
	rm, err := scanRoadmap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoadmapNotFound
	}
	return rm, err
}

// List returns all roadmaps, newest first.
func (s *RoadmapStore) List(ctx context.Context) ([]*domain.Roadmap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, topics, fitness, generations, created_at, updated_at
		FROM roadmaps ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query roadmaps: %w", err)
	}
	defer rows.Close()

	roadmaps := []*domain.Roadmap{}
	for rows.Next() {
		rm, err := scanRoadmap(rows)
		if err != nil {
			return nil, err
		}
		roadmaps = append(roadmaps, rm)
	}
	return roadmaps, rows.Err()
}

// Delete removes a roadmap.
func (s *RoadmapStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roadmaps WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete roadmap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRoadmapNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoadmap(row scanner) (*domain.Roadmap, error) {
	var (
		rm     domain.Roadmap
		id     string
		topics string
	)
	if err := row.Scan(&id, &rm.Title, &topics, &rm.Fitness, &rm.Generations, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse roadmap id: %w", err)
	}
	rm.ID = parsed
	if err := json.Unmarshal([]byte(topics), &rm.Topics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	return &rm, nil
}
