package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/config"
	"osce-prep-service/internal/domain"
	"osce-prep-service/internal/infra/memory"
	pginfra "osce-prep-service/internal/infra/postgres"
	redisinfra "osce-prep-service/internal/infra/redis"
	"osce-prep-service/internal/metrics"
	transport "osce-prep-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the practice server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)

	var (
		content  app.ContentRepository
		attempts app.AttemptRepository
		perf     app.PerformanceRepository
		users    app.UserRepository
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		db := pginfra.Open(cfg.Postgres.URL)
		defer db.Close()

		store := pginfra.NewStore(db)
		content = pginfra.NewContentLoader(pool)
		attempts, perf, users = store, store, store
	} else {
		store := memory.NewStore()
		seedDemoStore(store)
		content = store
		attempts, perf, users = store, store, store
		log.Printf("postgres url not configured, using in-memory store with demo content")
	}

	if redisClient != nil {
		content = redisinfra.NewContentCache(redisClient, content, contentTTL)
	} else {
		content = memory.NewContentCache(content, contentTTL)
	}

	service := app.NewPracticeService(content, attempts, perf, users)
	if redisClient != nil {
		service.UseRankingMirror(redisinfra.NewLeaderboard(redisClient))
	}

	apiHandler := transport.NewAPIHandler(service)
	wsHandler := transport.NewRankingWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	apiHandler.Register(mux)
	mux.HandleFunc("/ws/ranking", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting osce prep service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoStore loads the demo content set plus a couple of users so the
// in-memory server is usable out of the box.
func seedDemoStore(store *memory.Store) {
	set := demoContent()
	for _, sp := range set.Specialties {
		store.AddSpecialty(sp)
	}
	for _, c := range set.Categories {
		store.AddCategory(c)
	}
	for _, sc := range set.Scenarios {
		store.AddScenario(sc)
	}
	items := make(map[int64][]domain.ChecklistItem)
	for _, item := range set.Items {
		items[item.ChecklistID] = append(items[item.ChecklistID], item)
	}
	for _, cl := range set.Checklists {
		store.AddChecklist(cl, items[cl.ID])
	}
	for _, u := range demoUsers() {
		store.AddUser(u)
	}
}

// demoContent provides a minimal content set; production deployments load
// content from Postgres instead.
func demoContent() pginfra.ContentSet {
	return pginfra.ContentSet{
		Specialties: []domain.Specialty{
			{ID: 1, Name: "Pediatrics", Code: "PED"},
			{ID: 2, Name: "General Surgery", Code: "SUR"},
		},
		Categories: []domain.Category{
			{ID: 1, Name: "Anamnesis"},
			{ID: 2, Name: "Physical Examination"},
			{ID: 3, Name: "Management"},
		},
		Scenarios: []domain.Scenario{
			{ID: 1, Title: "Febrile infant", SpecialtyID: 1, Difficulty: "medium"},
			{ID: 2, Title: "Acute abdomen", SpecialtyID: 2, Difficulty: "hard"},
		},
		Checklists: []domain.Checklist{
			{ID: 1, Title: "Febrile infant workup", ScenarioID: 1, TimeLimit: 10},
			{ID: 2, Title: "Acute abdomen assessment", ScenarioID: 2, TimeLimit: 15},
		},
		Items: []domain.ChecklistItem{
			{ID: 1, ChecklistID: 1, CategoryID: 1, Description: "Asks about fever onset and duration", Weight: 1},
			{ID: 2, ChecklistID: 1, CategoryID: 1, Description: "Asks about feeding and urine output", Weight: 1},
			{ID: 3, ChecklistID: 1, CategoryID: 2, Description: "Assesses fontanelle and hydration", Weight: 2},
			{ID: 4, ChecklistID: 1, CategoryID: 3, Description: "Orders urinalysis and blood culture", Weight: 2},
			{ID: 5, ChecklistID: 2, CategoryID: 1, Description: "Characterizes pain onset and migration", Weight: 1},
			{ID: 6, ChecklistID: 2, CategoryID: 2, Description: "Examines for rebound tenderness", Weight: 2},
			{ID: 7, ChecklistID: 2, CategoryID: 3, Description: "Requests surgical consult", Weight: 2},
		},
	}
}

func demoUsers() []domain.User {
	return []domain.User{
		{ID: "demo-resident", Email: "resident@example.com", FirstName: "Demo", LastName: "Resident"},
		{ID: "demo-admin", Email: "admin@example.com", FirstName: "Demo", LastName: "Admin", IsAdmin: true},
	}
}
