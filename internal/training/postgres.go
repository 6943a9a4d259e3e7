package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

// Querier is the subset of pgx the store needs. *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists jobs and model versions in PostgreSQL.
// Safe for concurrent use.
type PostgresStore struct {
	db     Querier
	logger *slog.Logger
}

// NewPostgresStore creates a store on top of a pgx pool.
func NewPostgresStore(db Querier, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

const jobColumns = `
	id, name, description, training_type, model_type, tier, status,
	progress_percentage, current_step, total_steps, final_score,
	error_message, estimated_duration_minutes, actual_duration_minutes,
	retry_count, max_retries, created_by, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var tierVal int
	err := row.Scan(
		&j.ID, &j.Name, &j.Description, &j.Type, &j.ModelType, &tierVal, &j.Status,
		&j.Progress, &j.CurrentStep, &j.TotalSteps, &j.FinalScore,
		&j.ErrorMessage, &j.EstimatedMinutes, &j.ActualMinutes,
		&j.RetryCount, &j.MaxRetries, &j.CreatedBy, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return Job{}, err
	}
	j.Tier = tier.Tier(tierVal)
	return j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job Job) (Job, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO training_jobs (
			name, description, training_type, model_type, tier, status,
			total_steps, estimated_duration_minutes, max_retries, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING`+jobColumns,
		job.Name, job.Description, string(job.Type), string(job.ModelType),
		int(job.Tier), string(job.Status), job.TotalSteps,
		job.EstimatedMinutes, job.MaxRetries, job.CreatedBy)

	created, err := scanJob(row)
	if err != nil {
		return Job{}, fmt.Errorf("inserting training job: %w", err)
	}

	for _, docID := range job.DocumentIDs {
		_, err := s.db.Exec(ctx, `
			INSERT INTO training_job_documents (training_job_id, document_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			created.ID, docID)
		if err != nil {
			return Job{}, fmt.Errorf("linking document %d to job %d: %w", docID, created.ID, err)
		}
	}
	created.DocumentIDs = append([]int64(nil), job.DocumentIDs...)

	s.logger.Debug("created training job", "job_id", created.ID, "type", created.Type)
	return created, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (Job, error) {
	row := s.db.QueryRow(ctx,
		`SELECT`+jobColumns+` FROM training_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("loading training job %d: %w", id, err)
	}
	if job.DocumentIDs, err = s.jobDocumentIDs(ctx, id); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job Job) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE training_jobs
		SET status = $2,
		    progress_percentage = $3,
		    current_step = $4,
		    final_score = $5,
		    error_message = $6,
		    actual_duration_minutes = $7,
		    retry_count = $8,
		    started_at = $9,
		    completed_at = $10,
		    updated_at = now()
		WHERE id = $1`,
		job.ID, string(job.Status), job.Progress, job.CurrentStep,
		job.FinalScore, job.ErrorMessage, job.ActualMinutes,
		job.RetryCount, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("updating training job %d: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateJobIf(ctx context.Context, job Job, from Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE training_jobs
		SET status = $3,
		    progress_percentage = $4,
		    current_step = $5,
		    final_score = $6,
		    error_message = $7,
		    actual_duration_minutes = $8,
		    retry_count = $9,
		    started_at = $10,
		    completed_at = $11,
		    updated_at = now()
		WHERE id = $1 AND status = $2`,
		job.ID, string(from), string(job.Status), job.Progress, job.CurrentStep,
		job.FinalScore, job.ErrorMessage, job.ActualMinutes,
		job.RetryCount, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("updating training job %d: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM training_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking training job %d: %w", job.ID, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrIllegalTransition
	}
	return nil
}

func (s *PostgresStore) CompareAndSwapStatus(ctx context.Context, id int64, from, to Status) (Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE training_jobs
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING`+jobColumns,
		id, string(from), string(to))

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing job from a status mismatch.
			var exists bool
			checkErr := s.db.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM training_jobs WHERE id = $1)`, id).Scan(&exists)
			if checkErr != nil {
				return Job{}, fmt.Errorf("checking training job %d: %w", id, checkErr)
			}
			if !exists {
				return Job{}, ErrNotFound
			}
			return Job{}, ErrIllegalTransition
		}
		return Job{}, fmt.Errorf("transitioning training job %d: %w", id, err)
	}
	if job.DocumentIDs, err = s.jobDocumentIDs(ctx, id); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, f Filter) ([]Job, error) {
	query := `SELECT` + jobColumns + ` FROM training_jobs WHERE TRUE`
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Tier != 0 {
		args = append(args, f.Tier)
		query += fmt.Sprintf(" AND tier = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing training jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning training job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading training jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) CreateModelVersion(ctx context.Context, mv ModelVersion) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO model_versions (
			id, training_job_id, version_number, version_name, tier,
			model_size_mb, accuracy_score, precision_score, recall_score,
			f1_score, is_deployed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		mv.ID, mv.JobID, mv.Version, mv.Name, int(mv.Tier),
		mv.SizeMB, mv.Accuracy, mv.Precision, mv.Recall, mv.F1, mv.Deployed)
	if err != nil {
		return fmt.Errorf("inserting model version %s: %w", mv.Version, err)
	}
	return nil
}

func (s *PostgresStore) ListModelVersions(ctx context.Context, f VersionFilter) ([]ModelVersion, error) {
	query := `
		SELECT id, training_job_id, version_number, version_name, tier,
		       model_size_mb, accuracy_score, precision_score, recall_score,
		       f1_score, is_deployed, created_at
		FROM model_versions WHERE TRUE`
	args := []any{}
	if f.Tier != 0 {
		args = append(args, f.Tier)
		query += fmt.Sprintf(" AND tier = $%d", len(args))
	}
	if f.DeployedOnly {
		query += " AND is_deployed"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing model versions: %w", err)
	}
	defer rows.Close()

	var versions []ModelVersion
	for rows.Next() {
		var mv ModelVersion
		var tierVal int
		if err := rows.Scan(&mv.ID, &mv.JobID, &mv.Version, &mv.Name, &tierVal,
			&mv.SizeMB, &mv.Accuracy, &mv.Precision, &mv.Recall,
			&mv.F1, &mv.Deployed, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning model version: %w", err)
		}
		mv.Tier = tier.Tier(tierVal)
		versions = append(versions, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading model versions: %w", err)
	}
	return versions, nil
}

func (s *PostgresStore) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := s.db.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status IN ('pending', 'running')),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'failed'),
		       count(*) FILTER (WHERE status = 'cancelled'),
		       coalesce(avg(actual_duration_minutes) FILTER (WHERE status = 'completed'), 0)
		FROM training_jobs`).Scan(
		&m.TotalJobs, &m.ActiveJobs, &m.CompletedJobs,
		&m.FailedJobs, &m.CancelledJobs, &m.AvgCompletionMinutes)
	if err != nil {
		return Metrics{}, fmt.Errorf("aggregating job metrics: %w", err)
	}
	if finished := m.CompletedJobs + m.FailedJobs; finished > 0 {
		m.SuccessRate = float64(m.CompletedJobs) / float64(finished)
	}

	err = s.db.QueryRow(ctx, `
		SELECT version_number FROM model_versions
		ORDER BY created_at DESC LIMIT 1`).Scan(&m.LatestModelVersion)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Metrics{}, fmt.Errorf("loading latest model version: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) jobDocumentIDs(ctx context.Context, jobID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT document_id FROM training_job_documents
		WHERE training_job_id = $1
		ORDER BY document_id`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("loading documents for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning job document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading job document ids: %w", err)
	}
	return ids, nil
}
