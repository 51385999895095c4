package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/redacted/internal/privacy"
)

// Store persists detection counts in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to PostgreSQL and ensures the schema exists
func NewStore(config Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store, err := NewStoreWithDB(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) (*Store, error) {
	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return store, nil
}

// initialize checks the connection and creates the schema
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// RecordFindings stores one row per info type in a single transaction
func (s *Store) RecordFindings(ctx context.Context, requestID, source string, findings []privacy.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	records := make([]Record, 0, len(findings))
	for _, f := range findings {
		records = append(records, Record{
			RequestID:    requestID,
			Source:       source,
			InfoType:     f.EntityType,
			Occurrences:  f.Count,
			UniqueValues: f.Unique,
		})
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO redaction_findings (request_id, source, info_type, occurrences, unique_values)
		VALUES (:request_id, :source, :info_type, :occurrences, :unique_values)`

	if _, err := tx.NamedExecContext(ctx, query, records); err != nil {
		s.logger.Error("Failed to record findings",
			zap.Error(err),
			zap.String("request_id", requestID),
			zap.Int("info_types", len(records)))
		return fmt.Errorf("failed to insert findings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit findings: %w", err)
	}

	s.logger.Debug("Findings recorded",
		zap.String("request_id", requestID),
		zap.String("source", source),
		zap.Int("info_types", len(records)))

	return nil
}

// Summary totals findings per info type since the given time
func (s *Store) Summary(ctx context.Context, since time.Time) ([]InfoTypeSummary, error) {
	query := `
		SELECT
			info_type,
			COUNT(DISTINCT request_id) AS requests,
			COALESCE(SUM(occurrences), 0) AS occurrences,
			COALESCE(SUM(unique_values), 0) AS unique_values
		FROM redaction_findings
		WHERE created_at >= $1
		GROUP BY info_type
		ORDER BY occurrences DESC, info_type`

	summaries := []InfoTypeSummary{}
	if err := s.db.SelectContext(ctx, &summaries, query, since); err != nil {
		return nil, fmt.Errorf("failed to summarize findings: %w", err)
	}

	return summaries, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}

	userInfo := url[:at]
	colon := strings.LastIndex(userInfo, ":")
	if colon < 0 || colon <= strings.Index(userInfo, "://") {
		return url
	}

	return userInfo[:colon+1] + "***" + url[at:]
}
