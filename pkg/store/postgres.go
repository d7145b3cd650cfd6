package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/tenderlens/tenderlens/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore persists everything in PostgreSQL via pgx.
type PostgresStore struct {
	db *stdsql.DB
}

// NewPostgresStore opens a connection pool, verifies connectivity, and
// applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// runMigrations applies pending migrations from the embedded FS using
// golang-migrate.
func runMigrations(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "tenderlens", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the
	// database driver, which closes the shared *sql.DB passed via
	// postgres.WithInstance().
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, analysis *models.Analysis) error {
	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	analysis.CreatedAt = now
	analysis.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, status, model, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		analysis.ID, analysis.Status, analysis.Model, analysis.Error,
		analysis.CreatedAt, analysis.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, model, error, report, qa, metrics, created_at, updated_at
		 FROM analyses WHERE id = $1`, id)
	return scanAnalysis(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	var (
		a                   models.Analysis
		report, qa, metrics []byte
	)
	err := row.Scan(&a.ID, &a.Status, &a.Model, &a.Error, &report, &qa, &metrics,
		&a.CreatedAt, &a.UpdatedAt)
	if err == stdsql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	if len(report) > 0 {
		if err := json.Unmarshal(report, &a.Report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
	}
	if len(qa) > 0 {
		if err := json.Unmarshal(qa, &a.QA); err != nil {
			return nil, fmt.Errorf("decode qa: %w", err)
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &a.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return &a, nil
}

func (s *PostgresStore) UpdateAnalysis(ctx context.Context, id string, update models.AnalysisUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current models.AnalysisStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM analyses WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == stdsql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock analysis: %w", err)
	}

	set := "updated_at = $2"
	args := []any{id, time.Now().UTC()}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Status != nil && !current.IsTerminal() {
		set += ", status = " + next(string(*update.Status))
	}
	if update.Error != nil {
		set += ", error = " + next(*update.Error)
	}
	if update.Report != nil {
		raw, err := json.Marshal(update.Report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		set += ", report = " + next(raw)
	}
	if update.QA != nil {
		raw, err := json.Marshal(update.QA)
		if err != nil {
			return fmt.Errorf("encode qa: %w", err)
		}
		set += ", qa = " + next(raw)
	}
	if update.Metrics != nil {
		raw, err := json.Marshal(update.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		set += ", metrics = " + next(raw)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE analyses SET "+set+" WHERE id = $1", args...); err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, limit, offset int) ([]*models.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, model, error, report, qa, metrics, created_at, updated_at
		 FROM analyses ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent assigns the next dense index under a row lock on the
// parent analysis, so concurrent appenders cannot collide or leave
// gaps.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *models.Event) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT true FROM analyses WHERE id = $1 FOR UPDATE`, event.AnalysisID).Scan(&exists)
	if err == stdsql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock analysis: %w", err)
	}

	var data []byte
	if event.Data != nil {
		if data, err = json.Marshal(event.Data); err != nil {
			return 0, fmt.Errorf("encode event data: %w", err)
		}
	}

	event.CreatedAt = time.Now().UTC()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO analysis_events (analysis_id, idx, type, stage, data, created_at)
		 SELECT $1, COALESCE(MAX(idx) + 1, 0), $2, $3, $4, $5
		 FROM analysis_events WHERE analysis_id = $1
		 RETURNING idx`,
		event.AnalysisID, event.Type, event.Stage, data, event.CreatedAt,
	).Scan(&event.Index)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit event: %w", err)
	}
	return event.Index, nil
}

func (s *PostgresStore) GetEvents(ctx context.Context, analysisID string, sinceIndex int64) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, idx, type, stage, data, created_at
		 FROM analysis_events WHERE analysis_id = $1 AND idx >= $2 ORDER BY idx`,
		analysisID, sinceIndex)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Event, 0)
	for rows.Next() {
		var (
			ev   models.Event
			data []byte
		)
		if err := rows.Scan(&ev.AnalysisID, &ev.Index, &ev.Type, &ev.Stage, &data, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, analysis_id, filename, type, format, pages, size_bytes, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.AnalysisID, doc.Filename, doc.Type, doc.Format,
		doc.Pages, doc.SizeBytes, doc.Content, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocuments(ctx context.Context, analysisID string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_id, filename, type, format, pages, size_bytes, content, created_at
		 FROM documents WHERE analysis_id = $1 ORDER BY created_at`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Document, 0)
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.AnalysisID, &doc.Filename, &doc.Type, &doc.Format,
			&doc.Pages, &doc.SizeBytes, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, &doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, analysis_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.AnalysisID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChatMessages(ctx context.Context, analysisID string) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_id, role, content, created_at
		 FROM chat_messages WHERE analysis_id = $1 ORDER BY created_at`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.AnalysisID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == stdsql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// DB exposes the pool for health checks.
func (s *PostgresStore) DB() *stdsql.DB { return s.db }
