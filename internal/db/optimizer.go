package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/metrics"
)

var (
	ErrUnknownTable     = errors.New("table is not managed by the optimizer")
	ErrInvalidRetention = errors.New("retention must be at least one day")
)

// Tables are the tables the optimizer may inspect and maintain.
var Tables = []string{"services", "appointments", "event_logs"}

type IndexSpec struct {
	Table   string
	Name    string
	Columns []string
	Unique  bool
	Where   string
}

// KeyPattern identifies an index by what it covers rather than its name.
func (s IndexSpec) KeyPattern() string {
	return keyPattern(s.Columns)
}

func keyPattern(columns []string) string {
	return strings.Join(columns, ",")
}

var DesiredIndexes = []IndexSpec{
	{Table: "services", Name: "idx_services_provider", Columns: []string{"provider_id"}},
	{Table: "services", Name: "idx_services_category_active", Columns: []string{"category", "active"}},
	{Table: "appointments", Name: "idx_appointments_patient_scheduled", Columns: []string{"patient_id", "scheduled_at"}},
	{Table: "appointments", Name: "idx_appointments_provider_scheduled", Columns: []string{"provider_id", "scheduled_at"}},
	{Table: "appointments", Name: "idx_appointments_status_scheduled", Columns: []string{"status", "scheduled_at"}},
	{Table: "appointments", Name: "idx_appointments_status_ends", Columns: []string{"status", "ends_at"}},
	{Table: "appointments", Name: "idx_appointments_reminders", Columns: []string{"scheduled_at"},
		Where: "NOT reminder_delivered AND status IN ('scheduled', 'confirmed')"},
	{Table: "event_logs", Name: "idx_event_logs_appointment", Columns: []string{"appointment_id", "created_at"}},
	{Table: "event_logs", Name: "idx_event_logs_created", Columns: []string{"created_at"}},
}

type ExistingIndex struct {
	Name    string
	Columns []string
}

// IndexCatalog reads and creates indexes. pgCatalog is the Postgres one.
type IndexCatalog interface {
	Indexes(ctx context.Context, table string) ([]ExistingIndex, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
}

type IndexReport struct {
	Created []string `json:"created"`
	Present int      `json:"present"`
}

type Optimizer struct {
	pool          *pgxpool.Pool
	catalog       IndexCatalog
	healthTimeout time.Duration
	log           zerolog.Logger
}

func NewOptimizer(pool *pgxpool.Pool, healthTimeout time.Duration, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		pool:          pool,
		catalog:       &pgCatalog{pool: pool},
		healthTimeout: healthTimeout,
		log:           log.With().Str("component", "optimizer").Logger(),
	}
}

// EnsureIndexes creates the desired indexes whose key pattern is missing.
// An index created concurrently by another instance counts as present.
func (o *Optimizer) EnsureIndexes(ctx context.Context) (IndexReport, error) {
	var report IndexReport

	existing := make(map[string]map[string]bool)
	for _, spec := range DesiredIndexes {
		patterns, ok := existing[spec.Table]
		if !ok {
			indexes, err := o.catalog.Indexes(ctx, spec.Table)
			if err != nil {
				return report, fmt.Errorf("list indexes on %s: %w", spec.Table, err)
			}
			patterns = make(map[string]bool, len(indexes))
			for _, idx := range indexes {
				patterns[keyPattern(idx.Columns)] = true
			}
			existing[spec.Table] = patterns
		}

		if patterns[spec.KeyPattern()] {
			report.Present++
			continue
		}

		if err := o.catalog.CreateIndex(ctx, spec); err != nil {
			if isAlreadyExists(err) {
				o.log.Debug().Str("index", spec.Name).Msg("index created concurrently, skipping")
				report.Present++
				patterns[spec.KeyPattern()] = true
				continue
			}
			return report, fmt.Errorf("create index %s: %w", spec.Name, err)
		}

		patterns[spec.KeyPattern()] = true
		report.Created = append(report.Created, spec.Name)
		metrics.IndexesCreated.Inc()
		o.log.Info().Str("table", spec.Table).Str("index", spec.Name).Msg("index created")
	}

	return report, nil
}

func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 42P07 duplicate_table, 23505 unique_violation on pg_class when two
	// sessions race on the same name.
	return pgErr.Code == "42P07" || pgErr.Code == "23505"
}

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

type HealthReport struct {
	Healthy   bool      `json:"healthy"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Pool      PoolStats `json:"pool"`
}

// Health pings the database under the configured timeout. A timeout is a
// failure.
func (o *Optimizer) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, o.healthTimeout)
	defer cancel()

	start := time.Now()
	err := o.pool.Ping(ctx)
	stat := o.pool.Stat()

	report := HealthReport{
		Healthy:   err == nil,
		LatencyMS: time.Since(start).Milliseconds(),
		Pool: PoolStats{
			TotalConns:      stat.TotalConns(),
			IdleConns:       stat.IdleConns(),
			AcquiredConns:   stat.AcquiredConns(),
			MaxConns:        stat.MaxConns(),
			AcquireCount:    stat.AcquireCount(),
			AcquireDuration: stat.AcquireDuration().String(),
		},
	}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}

type TableStats struct {
	Table          string     `json:"table"`
	LiveRows       int64      `json:"live_rows"`
	DeadRows       int64      `json:"dead_rows"`
	TotalBytes     int64      `json:"total_bytes"`
	IndexBytes     int64      `json:"index_bytes"`
	IndexCount     int        `json:"index_count"`
	LastVacuum     *time.Time `json:"last_vacuum,omitempty"`
	LastAutovacuum *time.Time `json:"last_autovacuum,omitempty"`
	LastAnalyze    *time.Time `json:"last_analyze,omitempty"`
}

func (o *Optimizer) CollectionStats(ctx context.Context) ([]TableStats, error) {
	rows, err := o.pool.Query(ctx, `
		SELECT s.relname,
		       s.n_live_tup,
		       s.n_dead_tup,
		       pg_total_relation_size(s.relid),
		       pg_indexes_size(s.relid),
		       (SELECT count(*) FROM pg_index i WHERE i.indrelid = s.relid),
		       s.last_vacuum,
		       s.last_autovacuum,
		       COALESCE(s.last_analyze, s.last_autoanalyze)
		FROM pg_stat_user_tables s
		WHERE s.schemaname = current_schema()
		  AND s.relname = ANY($1)
		ORDER BY s.relname
	`, Tables)
	if err != nil {
		return nil, fmt.Errorf("query table stats: %w", err)
	}
	defer rows.Close()

	var stats []TableStats
	for rows.Next() {
		var ts TableStats
		if err := rows.Scan(
			&ts.Table,
			&ts.LiveRows,
			&ts.DeadRows,
			&ts.TotalBytes,
			&ts.IndexBytes,
			&ts.IndexCount,
			&ts.LastVacuum,
			&ts.LastAutovacuum,
			&ts.LastAnalyze,
		); err != nil {
			return nil, fmt.Errorf("scan table stats: %w", err)
		}
		stats = append(stats, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Compact reclaims dead tuples and refreshes planner statistics.
func (o *Optimizer) Compact(ctx context.Context, table string) error {
	if !managed(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	start := time.Now()
	if _, err := o.pool.Exec(ctx, "VACUUM (ANALYZE) "+pgx.Identifier{table}.Sanitize()); err != nil {
		return fmt.Errorf("vacuum %s: %w", table, err)
	}
	o.log.Info().Str("table", table).Dur("took", time.Since(start)).Msg("table compacted")
	return nil
}

var cleanupQueries = map[string]string{
	"appointments": `DELETE FROM appointments
		WHERE status IN ('completed', 'canceled', 'no-show')
		  AND updated_at < now() - make_interval(days => $1)`,
	"event_logs": `DELETE FROM event_logs
		WHERE created_at < now() - make_interval(days => $1)`,
	"services": `DELETE FROM services s
		WHERE NOT s.active
		  AND s.updated_at < now() - make_interval(days => $1)
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.service_id = s.id)`,
}

// Cleanup deletes rows older than the retention period. Appointments are
// only removed once they reached a terminal status.
func (o *Optimizer) Cleanup(ctx context.Context, table string, olderThanDays int) (int64, error) {
	query, ok := cleanupQueries[table]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if olderThanDays < 1 {
		return 0, ErrInvalidRetention
	}

	tag, err := o.pool.Exec(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", table, err)
	}
	o.log.Info().Str("table", table).Int("older_than_days", olderThanDays).Int64("deleted", tag.RowsAffected()).Msg("cleanup finished")
	return tag.RowsAffected(), nil
}

func managed(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

type pgCatalog struct {
	pool *pgxpool.Pool
}

func (c *pgCatalog) Indexes(ctx context.Context, table string) ([]ExistingIndex, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT i.relname, array_agg(a.attname::text ORDER BY k.ord)
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE t.relname = $1
		  AND n.nspname = current_schema()
		GROUP BY i.relname
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ExistingIndex
	for rows.Next() {
		var idx ExistingIndex
		if err := rows.Scan(&idx.Name, &idx.Columns); err != nil {
			return nil, err
		}
		result = append(result, idx)
	}
	return result, rows.Err()
}

func (c *pgCatalog) CreateIndex(ctx context.Context, spec IndexSpec) error {
	cols := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		cols[i] = pgx.Identifier{col}.Sanitize()
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if spec.Unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX IF NOT EXISTS %s ON %s (%s)",
		pgx.Identifier{spec.Name}.Sanitize(),
		pgx.Identifier{spec.Table}.Sanitize(),
		strings.Join(cols, ", "))
	if spec.Where != "" {
		b.WriteString(" WHERE " + spec.Where)
	}

	_, err := c.pool.Exec(ctx, b.String())
	return err
}
