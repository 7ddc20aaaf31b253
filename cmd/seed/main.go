package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abhishinde10/healthnexus/internal/appointment"
	"github.com/abhishinde10/healthnexus/internal/catalog"
	"github.com/abhishinde10/healthnexus/internal/db"
	"github.com/abhishinde10/healthnexus/internal/logging"
)

var categories = map[string][]string{
	"General Practice": {"General consultation", "Annual physical", "Vaccination visit"},
	"Dermatology":      {"Skin check", "Acne follow-up", "Mole removal consult"},
	"Cardiology":       {"ECG review", "Cardiac consultation", "Blood pressure follow-up"},
	"Physiotherapy":    {"Initial assessment", "Rehab session", "Sports injury review"},
	"Psychiatry":       {"Intake assessment", "Medication review", "Therapy session"},
	"Nursing":          {"Wound dressing", "Home care visit", "Injection administration"},
}

var types = []appointment.Type{
	appointment.TypeConsultation,
	appointment.TypeFollowUp,
	appointment.TypeRoutineCheckup,
	appointment.TypeTelemedicine,
	appointment.TypeHomeVisit,
}

func main() {
	_ = godotenv.Load()

	var dsn string
	var providers, patients, perProvider int

	rootCmd := &cobra.Command{
		Use:           "seed",
		Short:         "Fill the database with fake listings and bookings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return errors.New("--dsn or POSTGRES_DSN is required")
			}
			if providers < 1 || patients < 1 {
				return errors.New("--providers and --patients must be positive")
			}
			if perProvider < 0 {
				return errors.New("--appointments-per-provider must not be negative")
			}
			return run(cmd.Context(), dsn, providers, patients, perProvider)
		},
	}
	rootCmd.Flags().StringVar(&dsn, "dsn", os.Getenv("POSTGRES_DSN"), "postgres connection string")
	rootCmd.Flags().IntVar(&providers, "providers", 100, "number of providers")
	rootCmd.Flags().IntVar(&patients, "patients", 9000, "number of patients")
	rootCmd.Flags().IntVar(&perProvider, "appointments-per-provider", 20, "appointments booked per provider")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn string, providers, patients, perProvider int) error {
	log := logging.New("seed", "dev", "info")
	log.Info().Msg("seed starting")

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(connectCtx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool, log); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	patientIDs := make([]uuid.UUID, patients)
	for i := range patientIDs {
		patientIDs[i] = uuid.New()
	}

	listings, err := seedListings(ctx, catalog.NewPgRepository(pool), providers, log)
	if err != nil {
		return fmt.Errorf("seed listings: %w", err)
	}
	if err := seedAppointments(ctx, appointment.NewPgRepository(pool), listings, patientIDs, perProvider, log); err != nil {
		return fmt.Errorf("seed appointments: %w", err)
	}

	log.Info().Msg("seed complete")
	return nil
}

// seedListings publishes one to three listings per provider and returns
// them grouped by provider.
func seedListings(ctx context.Context, repo *catalog.PgRepository, count int, log zerolog.Logger) (map[uuid.UUID][]catalog.Listing, error) {
	log.Info().Int("providers", count).Msg("seeding listings")

	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}

	result := make(map[uuid.UUID][]catalog.Listing, count)
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		providerID := uuid.New()
		category := names[gofakeit.Number(0, len(names)-1)]
		offered := categories[category]

		for j := 0; j < gofakeit.Number(1, len(offered)); j++ {
			l := catalog.Listing{
				ID:              uuid.New(),
				ProviderID:      providerID,
				Name:            offered[j],
				Category:        category,
				Description:     gofakeit.Sentence(12),
				BasePrice:       float64(gofakeit.Number(4, 40)) * 5,
				Currency:        "USD",
				DurationMinutes: []int{15, 30, 45, 60}[gofakeit.Number(0, 3)],
				Active:          true,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := repo.Create(ctx, &l); err != nil {
				return nil, err
			}
			result[providerID] = append(result[providerID], l)
		}
	}

	log.Info().Int("providers", len(result)).Msg("listings seeded")
	return result, nil
}

// seedAppointments books each provider's calendar back to back starting
// tomorrow at 09:00, so no two bookings overlap.
func seedAppointments(ctx context.Context, repo *appointment.PgRepository, listings map[uuid.UUID][]catalog.Listing, patients []uuid.UUID, perProvider int, log zerolog.Logger) error {
	log.Info().Int("per_provider", perProvider).Msg("seeding appointments")

	now := time.Now().UTC()
	day := now.Truncate(24 * time.Hour).Add(24*time.Hour + 9*time.Hour)
	total := 0

	for providerID, offered := range listings {
		cursor := day
		for i := 0; i < perProvider; i++ {
			l := offered[gofakeit.Number(0, len(offered)-1)]
			serviceID := l.ID

			cost := appointment.Cost{
				BasePrice:        l.BasePrice,
				InsuranceCovered: float64(gofakeit.Number(0, int(l.BasePrice)/2)),
				Currency:         l.Currency,
			}
			if gofakeit.Bool() {
				cost.AdditionalCharges = []appointment.Charge{{
					Description: "Lab work",
					Amount:      float64(gofakeit.Number(1, 10)) * 5,
				}}
			}
			if err := cost.Recalculate(); err != nil {
				return err
			}

			status := appointment.StatusScheduled
			if gofakeit.Number(0, 2) == 0 {
				status = appointment.StatusConfirmed
			}

			a := &appointment.Appointment{
				ID:              uuid.New(),
				PatientID:       patients[gofakeit.Number(0, len(patients)-1)],
				ProviderID:      providerID,
				ServiceID:       &serviceID,
				ScheduledAt:     cursor,
				DurationMinutes: l.DurationMinutes,
				Type:            types[gofakeit.Number(0, len(types)-1)],
				Priority:        appointment.PriorityNormal,
				Status:          status,
				Cost:            cost,
				PaymentStatus:   appointment.PaymentNone,
				Consultation:    appointment.Consultation{ChiefComplaint: gofakeit.Sentence(6)},
				Communication:   appointment.Communication{NotifyPatient: true, NotifyProvider: true},
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := repo.Create(ctx, a); err != nil {
				return err
			}

			cursor = a.EndsAt().Add(15 * time.Minute)
			if cursor.Hour() >= 17 {
				cursor = cursor.Truncate(24 * time.Hour).Add(24*time.Hour + 9*time.Hour)
			}
			total++
		}
	}

	log.Info().Int("appointments", total).Msg("appointments seeded")
	return nil
}
