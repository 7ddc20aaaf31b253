package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type fakeCatalog struct {
	indexes map[string][]ExistingIndex
	created []string
	// createErr, when set, is returned once for the named index.
	createErr map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		indexes: map[string][]ExistingIndex{
			"appointments": {{Name: "appointments_pkey", Columns: []string{"id"}}},
			"services":     {{Name: "services_pkey", Columns: []string{"id"}}},
			"event_logs":   {{Name: "event_logs_pkey", Columns: []string{"id"}}},
		},
		createErr: map[string]error{},
	}
}

func (c *fakeCatalog) Indexes(_ context.Context, table string) ([]ExistingIndex, error) {
	return append([]ExistingIndex(nil), c.indexes[table]...), nil
}

func (c *fakeCatalog) CreateIndex(_ context.Context, spec IndexSpec) error {
	if err, ok := c.createErr[spec.Name]; ok {
		delete(c.createErr, spec.Name)
		if err != nil {
			// The concurrent creator's index is visible afterwards.
			c.indexes[spec.Table] = append(c.indexes[spec.Table], ExistingIndex{Name: spec.Name, Columns: spec.Columns})
		}
		return err
	}
	for _, idx := range c.indexes[spec.Table] {
		if keyPattern(idx.Columns) == spec.KeyPattern() {
			return &pgconn.PgError{Code: "42P07", Message: "relation already exists"}
		}
	}
	c.indexes[spec.Table] = append(c.indexes[spec.Table], ExistingIndex{Name: spec.Name, Columns: spec.Columns})
	c.created = append(c.created, spec.Name)
	return nil
}

func (c *fakeCatalog) count() int {
	n := 0
	for _, idx := range c.indexes {
		n += len(idx)
	}
	return n
}

func newTestOptimizer(c IndexCatalog) *Optimizer {
	return &Optimizer{catalog: c, log: zerolog.Nop()}
}

func TestEnsureIndexes_Idempotent(t *testing.T) {
	c := newFakeCatalog()
	o := newTestOptimizer(c)
	ctx := context.Background()

	first, err := o.EnsureIndexes(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Created) != len(DesiredIndexes) {
		t.Errorf("expected %d indexes created, got %d", len(DesiredIndexes), len(first.Created))
	}
	total := c.count()

	second, err := o.EnsureIndexes(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Created) != 0 {
		t.Errorf("expected nothing created on rerun, got %v", second.Created)
	}
	if second.Present != len(DesiredIndexes) {
		t.Errorf("expected %d present, got %d", len(DesiredIndexes), second.Present)
	}
	if c.count() != total {
		t.Errorf("expected no duplicate indexes, had %d now %d", total, c.count())
	}
}

func TestEnsureIndexes_MatchesByKeyPattern(t *testing.T) {
	c := newFakeCatalog()
	c.indexes["appointments"] = append(c.indexes["appointments"],
		ExistingIndex{Name: "legacy_patient_idx", Columns: []string{"patient_id", "scheduled_at"}})
	o := newTestOptimizer(c)

	report, err := o.EnsureIndexes(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, name := range report.Created {
		if name == "idx_appointments_patient_scheduled" {
			t.Error("expected an index with the same key pattern under another name to count as present")
		}
	}
}

func TestEnsureIndexes_ToleratesConcurrentCreation(t *testing.T) {
	for _, code := range []string{"42P07", "23505"} {
		t.Run(code, func(t *testing.T) {
			c := newFakeCatalog()
			c.createErr["idx_services_provider"] = &pgconn.PgError{Code: code}
			o := newTestOptimizer(c)

			report, err := o.EnsureIndexes(context.Background())
			if err != nil {
				t.Fatalf("expected conflict to be swallowed, got %v", err)
			}
			if len(report.Created) != len(DesiredIndexes)-1 || report.Present != 1 {
				t.Errorf("unexpected report %+v", report)
			}
		})
	}
}

func TestEnsureIndexes_SurfacesOtherErrors(t *testing.T) {
	c := newFakeCatalog()
	c.createErr["idx_services_provider"] = &pgconn.PgError{Code: "42501", Message: "permission denied"}
	o := newTestOptimizer(c)

	if _, err := o.EnsureIndexes(context.Background()); err == nil {
		t.Fatal("expected permission error to surface")
	}
}

func TestMaintenance_RejectsUnmanagedTables(t *testing.T) {
	o := newTestOptimizer(newFakeCatalog())
	ctx := context.Background()

	if err := o.Compact(ctx, "pg_authid"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable from compact, got %v", err)
	}
	if _, err := o.Cleanup(ctx, "users; DROP TABLE appointments", 30); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable from cleanup, got %v", err)
	}
	if _, err := o.Cleanup(ctx, "appointments", 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("expected ErrInvalidRetention, got %v", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("expected migrations starting at version 1, got %+v", migrations)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations out of order: %d after %d", migrations[i].Version, migrations[i-1].Version)
		}
	}
}
