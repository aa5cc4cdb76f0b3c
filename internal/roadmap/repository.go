package roadmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/storage/local"
)

// Repository persists roadmaps and their last sequenced order
type Repository interface {
	Save(ctx context.Context, r *domain.Roadmap) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Roadmap, error)
	List(ctx context.Context) ([]*domain.Roadmap, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

const roadmapCollection = "roadmaps"

// LocalRepository stores roadmaps as JSON files
type LocalRepository struct {
	store *local.Store
}

// NewLocalRepository creates a file-backed repository
func NewLocalRepository(store *local.Store) *LocalRepository {
	return &LocalRepository{store: store}
}

// Save writes a roadmap
func (r *LocalRepository) Save(ctx context.Context, rm *domain.Roadmap) error {
	return r.store.Save(roadmapCollection, rm.ID.String(), rm)
}

// Get loads a roadmap by ID
func (r *LocalRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Roadmap, error) {
	var rm domain.Roadmap
	if err := r.store.Load(roadmapCollection, id.String(), &rm); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, domain.ErrRoadmapNotFound
		}
		return nil, err
	}
	return &rm, nil
}

// List returns all roadmaps, newest first
func (r *LocalRepository) List(ctx context.Context) ([]*domain.Roadmap, error) {
	ids, err := r.store.List(roadmapCollection)
	if err != nil {
		return nil, err
	}

	roadmaps := make([]*domain.Roadmap, 0, len(ids))
	for _, id := range ids {
		var rm domain.Roadmap
		if err := r.store.Load(roadmapCollection, id, &rm); err != nil {
			continue
		}
		roadmaps = append(roadmaps, &rm)
	}
	sortNewestFirst(roadmaps)
	return roadmaps, nil
}

// Delete removes a roadmap
func (r *LocalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Delete(roadmapCollection, id.String()); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return domain.ErrRoadmapNotFound
		}
		return err
	}
	return nil
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the roadmaps table if needed
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS roadmaps (
			id          UUID PRIMARY KEY,
			title       TEXT NOT NULL,
			topics      JSONB NOT NULL,
			fitness     DOUBLE PRECISION NOT NULL DEFAULT 0,
			generations INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// Save upserts a roadmap
func (r *PostgresRepository) Save(ctx context.Context, rm *domain.Roadmap) error {
	topics, err := json.Marshal(rm.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	query := `
		INSERT INTO roadmaps (id, title, topics, fitness, generations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			topics = EXCLUDED.topics,
			fitness = EXCLUDED.fitness,
			generations = EXCLUDED.generations,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		rm.ID, rm.Title, topics, rm.Fitness, rm.Generations, rm.CreatedAt, rm.UpdatedAt,
	)
	return err
}

// Get retrieves a roadmap by ID
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Roadmap, error) {
	query := `
		SELECT id, title, topics, fitness, generations, created_at, updated_at
		FROM roadmaps WHERE id = $1
	`
	rm, err := scanRoadmap(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoadmapNotFound
	}
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// List returns all roadmaps, newest first
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Roadmap, error) {
	query := `
		SELECT id, title, topics, fitness, generations, created_at, updated_at
		FROM roadmaps ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roadmaps []*domain.Roadmap
	for rows.Next() {
		rm, err := scanRoadmap(rows)
		if err != nil {
			return nil, err
		}
		roadmaps = append(roadmaps, rm)
	}
	return roadmaps, rows.Err()
}

// Delete removes a roadmap
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roadmaps WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoadmapNotFound
	}
	return nil
}

func scanRoadmap(row pgx.Row) (*domain.Roadmap, error) {
	rm := &domain.Roadmap{}
	var topics []byte
	if err := row.Scan(&rm.ID, &rm.Title, &topics, &rm.Fitness, &rm.Generations, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(topics, &rm.Topics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	return rm, nil
}

func sortNewestFirst(roadmaps []*domain.Roadmap) {
	slices.SortFunc(roadmaps, func(a, b *domain.Roadmap) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}
