package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"missingrecord/internal/catalog"
	"missingrecord/internal/models"
)

// DefaultSitesQuery lists every site to check with its region.
const DefaultSitesQuery = `
	SELECT site_name AS "SiteName", region_name AS "RegionName"
	FROM sites
	WHERE active
	ORDER BY site_name`

// DefaultOverridesQuery lists manual open/close dates inside [$1, $2].
const DefaultOverridesQuery = `
	SELECT site_name AS "Site", measurement AS "Measurement", override_at AS "Datetime", kind AS "Kind"
	FROM measurement_overrides
	WHERE override_at BETWEEN $1 AND $2
	ORDER BY site_name, measurement, override_at`

const insertSummary = `
	INSERT INTO missing_record_summary
	(run_id, window_start, window_end, category, numerator_seconds, denominator_seconds, percentage, generated_at)
	VALUES (:run_id, :window_start, :window_end, :category, :numerator_seconds, :denominator_seconds, :percentage, :generated_at)`

// SQLStore reads the site catalog from and writes run summaries to SQL.
type SQLStore struct {
	db             *sqlx.DB
	timeout        time.Duration
	sitesQuery     string
	overridesQuery string
}

// SQLConfig holds SQL store settings. Empty queries use the defaults.
type SQLConfig struct {
	DSN            string
	QueryTimeout   time.Duration
	SitesQuery     string
	OverridesQuery string
}

// OpenSQL connects to PostgreSQL and verifies the connection.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewSQLStore(db, cfg), nil
}

// NewSQLStore wraps an existing connection.
func NewSQLStore(db *sqlx.DB, cfg SQLConfig) *SQLStore {
	s := &SQLStore{
		db:             db,
		timeout:        cfg.QueryTimeout,
		sitesQuery:     cfg.SitesQuery,
		overridesQuery: cfg.OverridesQuery,
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if s.sitesQuery == "" {
		s.sitesQuery = DefaultSitesQuery
	}
	if s.overridesQuery == "" {
		s.overridesQuery = DefaultOverridesQuery
	}
	return s
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Sites returns the raw site rows.
func (s *SQLStore) Sites(ctx context.Context) ([]catalog.SiteRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []catalog.SiteRow
	if err := s.db.SelectContext(ctx, &rows, s.sitesQuery); err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	return rows, nil
}

// Overrides returns the override rows dated inside window.
func (s *SQLStore) Overrides(ctx context.Context, window models.Window) ([]catalog.OverrideRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []catalog.OverrideRow
	if err := s.db.SelectContext(ctx, &rows, s.overridesQuery, window.Start, window.End); err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	return rows, nil
}

type summaryRow struct {
	RunID              string    `db:"run_id"`
	WindowStart        time.Time `db:"window_start"`
	WindowEnd          time.Time `db:"window_end"`
	Category           string    `db:"category"`
	NumeratorSeconds   float64   `db:"numerator_seconds"`
	DenominatorSeconds float64   `db:"denominator_seconds"`
	Percentage         *float64  `db:"percentage"`
	GeneratedAt        time.Time `db:"generated_at"`
}

// SaveSummaries inserts one row per summary of run in a single transaction.
// A nil percentage is stored as NULL.
func (s *SQLStore) SaveSummaries(ctx context.Context, run models.Run) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, sum := range run.Summaries {
		row := summaryRow{
			RunID:              run.ID,
			WindowStart:        run.Window.Start,
			WindowEnd:          run.Window.End,
			Category:           sum.Category,
			NumeratorSeconds:   sum.Numerator.Seconds(),
			DenominatorSeconds: sum.Denominator.Seconds(),
			Percentage:         sum.Percentage,
			GeneratedAt:        run.GeneratedAt,
		}
		if _, err := tx.NamedExecContext(ctx, insertSummary, row); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert summary %s: %w", sum.Category, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summaries: %w", err)
	}
	return nil
}
