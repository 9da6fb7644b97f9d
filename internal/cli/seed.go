package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"osce-prep-service/internal/config"
	"osce-prep-service/internal/domain"
	pginfra "osce-prep-service/internal/infra/postgres"
)

// NewSeedCmd loads the demo content set and a few users into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var userCount int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with demo content and users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, userCount)
		},
	}
	cmd.Flags().IntVar(&userCount, "users", 3, "number of demo users to create")
	return cmd
}

func runSeed(ctx context.Context, configPath string, userCount int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	db := pginfra.Open(cfg.Postgres.URL)
	defer db.Close()
	store := pginfra.NewStore(db)

	if err := store.SeedContent(ctx, demoContent()); err != nil {
		return err
	}

	for _, u := range demoUsers() {
		if err := store.InsertUser(ctx, u); err != nil {
			return err
		}
	}
	for i := 0; i < userCount; i++ {
		id := uuid.NewString()
		u := domain.User{
			ID:        id,
			Email:     fmt.Sprintf("resident-%s@example.com", id[:8]),
			FirstName: "Resident",
			LastName:  fmt.Sprintf("%d", i+1),
		}
		if err := store.InsertUser(ctx, u); err != nil {
			return err
		}
	}

	log.Printf("seeded demo content and %d users", userCount+len(demoUsers()))
	return nil
}
