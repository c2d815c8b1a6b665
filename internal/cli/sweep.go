package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/database"
	"github.com/lodestone-ai/lodestone/internal/graphstore"
	"github.com/lodestone-ai/lodestone/internal/intake"
	"github.com/lodestone-ai/lodestone/internal/repository"
	"github.com/lodestone-ai/lodestone/internal/service"
	"github.com/lodestone-ai/lodestone/internal/vectorstore"
)

// SweepCmd returns the sweep command, a one-shot version of the background
// sweep pass for operators who want to reconcile stores on demand.
func SweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one orphan and reconciliation pass",
		Long:  "Check linked assets against the intake store and repair drift between the relational, vector, and graph stores, then exit",
		RunE:  runSweep,
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPoolFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	assetRepo := repository.NewAssetRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	relRepo := repository.NewRelationshipRepository(pool)
	jobRepo := repository.NewJobRepository(pool)

	var graph service.GraphStore = &NoOpGraphStore{}
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
	}

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
		sweepIntake = s3Client
	}

	orphanSvc := service.NewOrphanService(assetRepo, sweepIntake)
	reconcileSvc := service.NewReconcileService(chunkRepo, relRepo, jobRepo, vectorstore.NewStore(pool), graph)

	orphaned, err := orphanSvc.SweepOrphans(ctx)
	if err != nil {
		return fmt.Errorf("orphan sweep failed: %w", err)
	}
	fmt.Printf("orphaned assets: %d\n", orphaned)

	report, err := reconcileSvc.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	fmt.Printf("orphaned vectors deleted: %d\n", report.OrphanedVectorsDeleted)
	fmt.Printf("orphaned edges deleted: %d\n", report.OrphanedEdgesDeleted)
	fmt.Printf("embed jobs requeued: %d\n", report.EmbedJobsEnqueued)
	fmt.Printf("edges restamped: %d\n", report.EdgesRestamped)

	return nil
}
