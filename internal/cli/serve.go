package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/api/handlers"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/database"
	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/graphstore"
	"github.com/lodestone-ai/lodestone/internal/intake"
	"github.com/lodestone-ai/lodestone/internal/jobs"
	"github.com/lodestone-ai/lodestone/internal/openai"
	"github.com/lodestone-ai/lodestone/internal/repository"
	"github.com/lodestone-ai/lodestone/internal/server"
	"github.com/lodestone-ai/lodestone/internal/service"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
	"github.com/lodestone-ai/lodestone/internal/vectorstore"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion engine",
		Long:  "Start the API server and background job workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPoolFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	assetRepo := repository.NewAssetRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	relRepo := repository.NewRelationshipRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	vectors := vectorstore.NewStore(pool)

	var graph service.GraphStore
	if cfg.HasRedis() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		defer redisClient.Close()
		graph = graphstore.NewStore(redisClient)
		log.Println("connected to graph store")
	} else {
		graph = &NoOpGraphStore{}
		log.Println("graph store not configured: relationship sync disabled (REDIS_ADDR required)")
	}

	var intakeClient service.IntakeClient
	var sweepIntake service.IntakeClient
	if cfg.HasS3() {
		s3Client, err := intake.NewS3Client(ctx, intake.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create intake client: %w", err)
		}
		intakeClient = s3Client
		sweepIntake = s3Client
		log.Printf("intake store ready (bucket '%s')", cfg.S3Bucket)
	} else {
		// the orphan sweep must not run against a missing store, so it
		// gets a nil client and skips itself
		intakeClient = &NoOpIntakeClient{}
		log.Println("intake store not configured: source fetching disabled (S3_ENDPOINT required)")
	}

	var embedder service.EmbeddingClient
	var extractor service.ExtractionClient
	if cfg.HasOpenAI() {
		aiClient := openai.NewClient(openai.Config{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			EmbeddingModel:  cfg.EmbeddingModel,
			ExtractionModel: cfg.ExtractionModel,
		})
		embedder = aiClient
		extractor = aiClient
	} else {
		noOp := &NoOpModelClient{}
		embedder = noOp
		extractor = noOp
		log.Println("model client not configured: embedding and extraction disabled (OPENAI_API_KEY required)")
	}

	chunker, err := service.NewChunker()
	if err != nil {
		return fmt.Errorf("failed to create chunker: %w", err)
	}

	assetSvc := service.NewAssetServiceWithTx(assetRepo, chunkRepo, relRepo, jobRepo, txRunner)
	pipelineSvc := service.NewPipelineService(assetRepo, chunkRepo, vectors, embedder, intakeClient, chunker, int64(cfg.EmbedConcurrency))
	extractionSvc := service.NewExtractionService(assetRepo, chunkRepo, relRepo, graph, extractor)
	orphanSvc := service.NewOrphanService(assetRepo, sweepIntake)
	reviewSvc := service.NewReviewService(reviewRepo, assetRepo, chunkRepo, relRepo, jobRepo, vectors, graph, chunker)
	reconcileSvc := service.NewReconcileService(chunkRepo, relRepo, jobRepo, vectors, graph)

	processor, err := jobs.NewProcessor(jobRepo, assetSvc, pipelineSvc, extractionSvc, reviewSvc, cfg.WorkerPoolSize, cfg.ClaimLimit, cfg.ConfidenceFloor)
	if err != nil {
		return fmt.Errorf("failed to create job processor: %w", err)
	}
	defer processor.Release()

	jobWorker := jobs.NewWorker("jobs", processor, cfg.PollInterval)
	go jobWorker.Start(ctx)
	log.Println("job worker started")

	sweeper := jobs.NewSweeper(jobRepo, orphanSvc, reconcileSvc, cfg.JobTimeout)
	sweepWorker := jobs.NewWorker("sweep", sweeper, cfg.SweepInterval)
	go sweepWorker.Start(ctx)
	log.Println("sweep worker started")

	routerCfg := server.RouterConfig{
		AssetHandler:  handlers.NewAssetHandler(assetSvc),
		ReviewHandler: handlers.NewReviewHandler(reviewSvc),
		SourceHandler: handlers.NewSourceHandler(orphanSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	jobWorker.Stop()
	sweepWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// NoOpGraphStore stands in when Redis is not configured. Writes fail with a
// configuration error so extraction jobs surface the missing dependency
// instead of silently dropping edges.
type NoOpGraphStore struct{}

func (s *NoOpGraphStore) UpsertEdge(ctx context.Context, pointer, sourceAssetID, targetAssetID, relType string, confidence float64) error {
	return fmt.Errorf("graph store not configured: REDIS_ADDR required")
}

func (s *NoOpGraphStore) DeleteEdge(ctx context.Context, pointer string) error {
	return fmt.Errorf("graph store not configured: REDIS_ADDR required")
}

func (s *NoOpGraphStore) ListPointers(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("graph store not configured: REDIS_ADDR required")
}

// NoOpIntakeClient stands in when S3 is not configured.
type NoOpIntakeClient struct{}

func (c *NoOpIntakeClient) Exists(ctx context.Context, sourceRef string) (bool, error) {
	return false, fmt.Errorf("intake store not configured: S3_ENDPOINT required")
}

func (c *NoOpIntakeClient) Fetch(ctx context.Context, sourceRef string) (string, error) {
	return "", fmt.Errorf("intake store not configured: S3_ENDPOINT required")
}

// NoOpModelClient stands in when OpenAI is not configured.
type NoOpModelClient struct{}

func (c *NoOpModelClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("model client not configured: OPENAI_API_KEY required")
}

func (c *NoOpModelClient) EmbeddingModel() string {
	return "none"
}

func (c *NoOpModelClient) ExtractRelationships(ctx context.Context, input domain.ExtractionInput) ([]domain.RelationshipProposal, error) {
	return nil, fmt.Errorf("model client not configured: OPENAI_API_KEY required")
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
