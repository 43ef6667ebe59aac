package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/pkg/database"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const testFields = `test_id, run_id, companies, num_emails, concurrency_level, started_at, finished_at,
	total_requests, avg_reply_grade, success_count, failure_count, sent_count, send_failure_count, cancelled`

// TaskRecord строка email_test_runs
type TaskRecord struct {
	ID            int64     `db:"id" json:"id"`
	TestID        int64     `db:"test_id" json:"test_id"`
	TaskIndex     int       `db:"task_index" json:"task_index"`
	CompanyID     *int64    `db:"company_id" json:"company_id,omitempty"`
	CompanyName   string    `db:"company_name" json:"company_name"`
	Scenario      string    `db:"scenario" json:"scenario,omitempty"`
	Mode          string    `db:"mode" json:"mode"`
	Misdirected   bool      `db:"misdirected" json:"misdirected"`
	Subject       string    `db:"subject" json:"subject"`
	Body          string    `db:"body" json:"body"`
	Grade         *float64  `db:"grade" json:"grade"`
	Model         string    `db:"model" json:"model"`
	LatencyMs     int64     `db:"latency_ms" json:"latency_ms"`
	SendAttempted bool      `db:"send_attempted" json:"send_attempted"`
	Sent          bool      `db:"sent" json:"sent"`
	SendError     string    `db:"send_error" json:"send_error,omitempty"`
	FailureReason string    `db:"failure_reason" json:"failure_reason,omitempty"`
	Error         string    `db:"error" json:"error,omitempty"`
	StartedAt     time.Time `db:"started_at" json:"started_at"`
	FinishedAt    time.Time `db:"finished_at" json:"finished_at"`
}

var taskColumns = []string{
	"test_id", "task_index", "company_id", "company_name", "scenario", "mode", "misdirected",
	"subject", "body", "grade", "model", "latency_ms", "send_attempted", "sent", "send_error",
	"failure_reason", "error", "started_at", "finished_at",
}

type testRow struct {
	TestID           int64     `db:"test_id"`
	RunID            uuid.UUID `db:"run_id"`
	Companies        []string  `db:"companies"`
	NumEmails        int       `db:"num_emails"`
	ConcurrencyLevel int       `db:"concurrency_level"`
	StartedAt        time.Time `db:"started_at"`
	FinishedAt       time.Time `db:"finished_at"`
	TotalRequests    int       `db:"total_requests"`
	AvgReplyGrade    *float64  `db:"avg_reply_grade"`
	SuccessCount     int       `db:"success_count"`
	FailureCount     int       `db:"failure_count"`
	SentCount        int       `db:"sent_count"`
	SendFailureCount int       `db:"send_failure_count"`
	Cancelled        bool      `db:"cancelled"`
}

func (r testRow) summary() domain.RunSummary {
	return domain.RunSummary{
		TestID:           r.TestID,
		RunID:            r.RunID,
		Companies:        r.Companies,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		NumEmails:        r.NumEmails,
		TotalRequests:    r.TotalRequests,
		ConcurrencyLevel: r.ConcurrencyLevel,
		AvgReplyGrade:    r.AvgReplyGrade,
		SuccessCount:     r.SuccessCount,
		FailureCount:     r.FailureCount,
		SentCount:        r.SentCount,
		SendFailureCount: r.SendFailureCount,
		Cancelled:        r.Cancelled,
	}
}

type pgTestRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgTestRepository создает TestRepository поверх PostgreSQL.
func NewPgTestRepository(db *pgxpool.Pool, logger *zap.Logger) TestRepository {
	return &pgTestRepository{db: db, logger: logger.Named("test_repo")}
}

// Save записывает итог и строки задач в одной транзакции и возвращает test_id.
func (r *pgTestRepository) Save(ctx context.Context, report *domain.RunReport) (int64, error) {
	s := report.Summary
	companies := s.Companies
	if companies == nil {
		companies = []string{}
	}

	var testID int64
	err := database.ExecuteInTransaction(ctx, r.db, func(tx pgx.Tx) error {
		query := `INSERT INTO tests (run_id, companies, num_emails, concurrency_level, started_at, finished_at,
			total_requests, avg_reply_grade, success_count, failure_count, sent_count, send_failure_count, cancelled)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING test_id`
		if err := tx.QueryRow(ctx, query,
			s.RunID, companies, s.NumEmails, s.ConcurrencyLevel, s.StartedAt, s.FinishedAt,
			s.TotalRequests, s.AvgReplyGrade, s.SuccessCount, s.FailureCount, s.SentCount, s.SendFailureCount, s.Cancelled,
		).Scan(&testID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("run %s: %w", s.RunID, domain.ErrAlreadyExists)
			}
			return fmt.Errorf("insert test: %w", err)
		}

		if len(report.Tasks) == 0 {
			return nil
		}
		rows := make([][]any, 0, len(report.Tasks))
		for _, t := range report.Tasks {
			rows = append(rows, taskRow(testID, t))
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"email_test_runs"}, taskColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy task rows: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save test run", zap.String("runID", s.RunID.String()), zap.Error(err))
		return 0, err
	}
	r.logger.Info("Test run saved", zap.Int64("testID", testID), zap.String("runID", s.RunID.String()), zap.Int("tasks", len(report.Tasks)))
	return testID, nil
}

func taskRow(testID int64, t domain.TaskResult) []any {
	var companyID *int64
	if t.Company.ID != 0 {
		id := t.Company.ID
		companyID = &id
	}
	var (
		subject, body, model, sendError, reason, errText string
		grade                                            *float64
		latencyMs                                        int64
		attempted, sent                                  bool
	)
	if g := t.Generation; g != nil {
		subject, body, model, grade = g.Subject, g.Body, g.Model, g.Grade
		latencyMs = g.Latency.Milliseconds()
	}
	if f := t.Failure; f != nil {
		reason = string(f.Reason)
		errText = f.Error()
	}
	if s := t.Send; s != nil {
		attempted, sent, sendError = s.Attempted, s.Success, s.Error
	}
	return []any{
		testID, t.Index, companyID, t.Company.Name, t.Scenario, string(t.Mode), t.Misdirected,
		subject, body, grade, model, latencyMs, attempted, sent, sendError,
		reason, errText, t.StartedAt, t.FinishedAt,
	}
}

// List возвращает последние прогоны, новые первыми.
func (r *pgTestRepository) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM tests ORDER BY started_at DESC, test_id DESC LIMIT $1`, testFields)
	var rows []testRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, limit); err != nil {
		r.logger.Error("Failed to list tests", zap.Error(err))
		return nil, fmt.Errorf("list tests: %w", err)
	}
	out := make([]domain.RunSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.summary())
	}
	return out, nil
}

func (r *pgTestRepository) Get(ctx context.Context, testID int64) (domain.RunSummary, error) {
	query := fmt.Sprintf(`SELECT %s FROM tests WHERE test_id = $1`, testFields)
	var row testRow
	if err := pgxscan.Get(ctx, r.db, &row, query, testID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RunSummary{}, fmt.Errorf("test %d: %w", testID, domain.ErrNotFound)
		}
		r.logger.Error("Failed to get test", zap.Int64("testID", testID), zap.Error(err))
		return domain.RunSummary{}, fmt.Errorf("get test %d: %w", testID, err)
	}
	return row.summary(), nil
}

func (r *pgTestRepository) ListTasks(ctx context.Context, testID int64) ([]TaskRecord, error) {
	if _, err := r.Get(ctx, testID); err != nil {
		return nil, err
	}
	query := `SELECT id, ` + strings.Join(taskColumns, ", ") + ` FROM email_test_runs WHERE test_id = $1 ORDER BY task_index`
	records := make([]TaskRecord, 0)
	if err := pgxscan.Select(ctx, r.db, &records, query, testID); err != nil {
		r.logger.Error("Failed to list test tasks", zap.Int64("testID", testID), zap.Error(err))
		return nil, fmt.Errorf("list tasks of test %d: %w", testID, err)
	}
	return records, nil
}
