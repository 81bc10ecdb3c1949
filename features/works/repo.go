package works

import (
	"context"
	"database/sql"
	"errors"

	"bunko/internal/corpus"
)

type Repository interface {
	List(ctx context.Context) ([]Work, error)
	Get(ctx context.Context, workID string) (*Work, error)
	Count(ctx context.Context) (int, error)
	UpsertWork(ctx context.Context, w corpus.WorkInfo, chunkCount int) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// UpsertWork records a work after ingestion, replacing an earlier row.
func (r *PostgresRepo) UpsertWork(ctx context.Context, w corpus.WorkInfo, chunkCount int) error {
	query := `INSERT INTO works (work_id, title, author, author_id, source_path, chunk_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (work_id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			author_id = EXCLUDED.author_id,
			source_path = EXCLUDED.source_path,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, w.WorkID, w.Title, w.Author, w.AuthorID, w.SourcePath, chunkCount)
	return err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Work, error) {
	query := `SELECT work_id, title, author, author_id, source_path, chunk_count, updated_at FROM works ORDER BY author, title`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Work
	for rows.Next() {
		var w Work
		if err := rows.Scan(&w.WorkID, &w.Title, &w.Author, &w.AuthorID, &w.SourcePath, &w.ChunkCount, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, workID string) (*Work, error) {
	w := &Work{}
	query := `SELECT work_id, title, author, author_id, source_path, chunk_count, updated_at FROM works WHERE work_id = $1`
	err := r.db.QueryRowContext(ctx, query, workID).
		Scan(&w.WorkID, &w.Title, &w.Author, &w.AuthorID, &w.SourcePath, &w.ChunkCount, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM works`).Scan(&count)
	return count, err
}
