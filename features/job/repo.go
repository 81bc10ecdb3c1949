package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context, f Filter) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const jobColumns = `id, path, stage, error, retries, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Path, &j.Stage, &j.Error, &j.Retries, &j.CreatedAt)
	return j, err
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save records a failure keyed by path. A path that already failed keeps its
// id and has its retry count bumped.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	const query = `INSERT INTO failed_documents (path, stage, error) VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE
		SET stage = EXCLUDED.stage, error = EXCLUDED.error, retries = failed_documents.retries + 1
		RETURNING id, created_at, retries`
	row := r.db.QueryRowContext(ctx, query, job.Path, job.Stage, job.Error)
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.Retries); err != nil {
		return fmt.Errorf("save failed document %s: %w", job.Path, err)
	}
	return nil
}

// RecordFailure satisfies ingest.FailureRecorder.
func (r *PostgresRepo) RecordFailure(ctx context.Context, path, stage string, cause error) error {
	j := &Job{Path: path, Stage: stage}
	if cause != nil {
		j.Error = cause.Error()
	}
	return r.Save(ctx, j)
}

// List returns failures newest first.
func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Job, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT " + jobColumns + " FROM failed_documents")
	if f.Stage != "" {
		args = append(args, f.Stage)
		fmt.Fprintf(&sb, " WHERE stage = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list failed documents: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM failed_documents WHERE id = $1", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed document %s: %w", id, err)
	}
	return &j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM failed_documents WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_documents`).Scan(&n)
	return n, err
}
