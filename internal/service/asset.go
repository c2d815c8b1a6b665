package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/pagination"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

type AssetRepositoryInterface interface {
	Create(ctx context.Context, a *domain.KnowledgeAsset) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error)
	ListByProjectWithCursor(ctx context.Context, projectID string, cursor *pagination.Cursor, limit int) ([]*domain.KnowledgeAsset, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.AssetStatus, now time.Time) error
	UpdateSummary(ctx context.Context, id, summary string, now time.Time) error
	SetMetadataKey(ctx context.Context, id, key, value string, now time.Time) error
	MarkOrphanedBySource(ctx context.Context, sourceRef, reason string, now time.Time) (int64, error)
	MarkOrphaned(ctx context.Context, id, reason string, now time.Time) error
	ArchiveTraceability(ctx context.Context, id string, now time.Time) error
	ListLinkedSourceRefs(ctx context.Context) ([]domain.LinkedSourceRef, error)
	RecomputeStats(ctx context.Context, id string, now time.Time) (*domain.ProcessingStats, error)
}

type JobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error)
	GetLatestByAssetAndType(ctx context.Context, assetID string, jobType domain.JobType) (*domain.ProcessingJob, error)
	ListByAsset(ctx context.Context, assetID string) ([]*domain.ProcessingJob, error)
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]*domain.ProcessingJob, error)
	ReportProgress(ctx context.Context, id string, percent int) error
	Complete(ctx context.Context, id string, now time.Time) error
	Fail(ctx context.Context, id, errMsg string, now time.Time) error
	FailStaleRunning(ctx context.Context, timeout time.Duration, now time.Time) (int64, error)
	CountPendingByType(ctx context.Context) (map[domain.JobType]int, error)
	ListAssetsWithCompletedLatest(ctx context.Context, jobType domain.JobType) ([]string, error)
}

// AssetService owns the knowledge asset lifecycle: registration, status and
// traceability transitions, listing, and the job history surface.
type AssetService struct {
	assetRepo AssetRepositoryInterface
	chunkRepo ChunkRepositoryInterface
	relRepo   RelationshipRepositoryInterface
	jobRepo   JobRepositoryInterface
	uuidGen   UUIDGenerator
	txRunner  TxRunner
}

func NewAssetService(
	assetRepo AssetRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	relRepo RelationshipRepositoryInterface,
	jobRepo JobRepositoryInterface,
) *AssetService {
	return &AssetService{
		assetRepo: assetRepo,
		chunkRepo: chunkRepo,
		relRepo:   relRepo,
		jobRepo:   jobRepo,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

func NewAssetServiceWithTx(
	assetRepo AssetRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	relRepo RelationshipRepositoryInterface,
	jobRepo JobRepositoryInterface,
	txRunner TxRunner,
) *AssetService {
	s := NewAssetService(assetRepo, chunkRepo, relRepo, jobRepo)
	s.txRunner = txRunner
	return s
}

func NewAssetServiceWithUUIDGen(
	assetRepo AssetRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	relRepo RelationshipRepositoryInterface,
	jobRepo JobRepositoryInterface,
	uuidGen UUIDGenerator,
) *AssetService {
	s := NewAssetService(assetRepo, chunkRepo, relRepo, jobRepo)
	s.uuidGen = uuidGen
	return s
}

type RegisterAssetInput struct {
	SourceRef string
	ProjectID string
	Title     string
	DocType   string
	Metadata  map[string]string
}

type RegisterAssetResult struct {
	Asset *domain.KnowledgeAsset
	Job   *domain.ProcessingJob
}

// RegisterAsset creates a new asset in processing/linked state and enqueues
// the full processing pipeline for it. Asset and job are created in one
// transaction when a TxRunner is wired; an asset without its pipeline job
// would never leave processing.
func (s *AssetService) RegisterAsset(ctx context.Context, input RegisterAssetInput) (*RegisterAssetResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "AssetService.RegisterAsset", telemetry.SpanAttributes{
		ProjectID: input.ProjectID,
		Operation: "register",
	})
	defer span.End()

	if input.SourceRef == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "source_ref is required")
	}

	now := time.Now().UTC()
	asset := domain.NewKnowledgeAsset(s.uuidGen.NewString(), input.SourceRef, input.ProjectID, input.Title, input.DocType, now)
	if len(input.Metadata) > 0 {
		asset.Metadata = input.Metadata
	}
	if err := domain.ValidateAsset(asset); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid asset", err)
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), asset.ID, domain.JobTypeFullProcess, nil, now)

	if s.txRunner != nil {
		err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Assets().Create(ctx, asset); err != nil {
				return err
			}
			return repos.Jobs().Create(ctx, job)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register asset: %w", err)
		}
	} else {
		if err := s.assetRepo.Create(ctx, asset); err != nil {
			return nil, fmt.Errorf("failed to create asset: %w", err)
		}
		if err := s.jobRepo.Create(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to enqueue processing job: %w", err)
		}
	}

	return &RegisterAssetResult{Asset: asset, Job: job}, nil
}

func (s *AssetService) GetAsset(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	return s.assetRepo.GetByID(ctx, id)
}

// AssetDetail bundles an asset with its live derived content.
type AssetDetail struct {
	Asset         *domain.KnowledgeAsset
	Chunks        []*domain.KnowledgeChunk
	Relationships []*domain.KnowledgeRelationship
}

func (s *AssetService) GetAssetDetail(ctx context.Context, id string) (*AssetDetail, error) {
	asset, err := s.assetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunkRepo.ListByAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	rels, err := s.relRepo.ListByAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}

	return &AssetDetail{Asset: asset, Chunks: chunks, Relationships: rels}, nil
}

func (s *AssetService) ListAssets(ctx context.Context, projectID, cursorToken string, limit int) (*pagination.PageResult[*domain.KnowledgeAsset], error) {
	if projectID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "project_id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	cursor, err := pagination.DecodeCursor(cursorToken)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	assets, err := s.assetRepo.ListByProjectWithCursor(ctx, projectID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	next := pagination.CreateNextCursor(assets, limit,
		func(a *domain.KnowledgeAsset) string { return a.ID },
		func(a *domain.KnowledgeAsset) time.Time { return a.UpdatedAt },
	)
	return &pagination.PageResult[*domain.KnowledgeAsset]{
		Items:   assets,
		Cursor:  next,
		HasMore: next != "",
	}, nil
}

// ArchiveAsset moves an asset to its terminal state. Derived content and
// secondary-store entries are retained; archived assets simply stop being
// eligible for processing.
func (s *AssetService) ArchiveAsset(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	ctx, span := telemetry.StartSpan(ctx, "AssetService.ArchiveAsset", telemetry.SpanAttributes{
		AssetID:   id,
		Operation: "archive",
	})
	defer span.End()

	asset, err := s.assetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionStatus(asset.Status, domain.AssetStatusArchived) {
		return nil, domain.ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	if err := s.assetRepo.UpdateStatus(ctx, id, asset.Status, domain.AssetStatusArchived, now); err != nil {
		return nil, err
	}
	if asset.Traceability != domain.TraceabilityArchived {
		if err := s.assetRepo.ArchiveTraceability(ctx, id, now); err != nil {
			return nil, err
		}
	}
	return s.assetRepo.GetByID(ctx, id)
}

// RetryProcessing reopens a failed asset and enqueues a fresh pipeline run.
func (s *AssetService) RetryProcessing(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "AssetService.RetryProcessing", telemetry.SpanAttributes{
		AssetID:   id,
		Operation: "retry",
	})
	defer span.End()

	asset, err := s.assetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset.Status != domain.AssetStatusFailed {
		return nil, domain.ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	if err := s.assetRepo.UpdateStatus(ctx, id, domain.AssetStatusFailed, domain.AssetStatusProcessing, now); err != nil {
		return nil, err
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), id, domain.JobTypeFullProcess, nil, now)
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Finalize activates an asset once its pipeline output has been approved.
func (s *AssetService) Finalize(ctx context.Context, assetID string) error {
	return s.assetRepo.UpdateStatus(ctx, assetID, domain.AssetStatusProcessing, domain.AssetStatusActive, time.Now().UTC())
}

// MarkFailed records pipeline failure on the asset. The reason lands in
// metadata so the asset row itself explains what went wrong.
func (s *AssetService) MarkFailed(ctx context.Context, assetID, reason string) error {
	now := time.Now().UTC()
	if err := s.assetRepo.UpdateStatus(ctx, assetID, domain.AssetStatusProcessing, domain.AssetStatusFailed, now); err != nil {
		return err
	}
	if reason != "" {
		if err := s.assetRepo.SetMetadataKey(ctx, assetID, "failure_reason", reason, now); err != nil {
			return err
		}
	}
	return nil
}

// UpdateProcessingStats recomputes the derived-content aggregate from the
// current chunk and relationship rows.
func (s *AssetService) UpdateProcessingStats(ctx context.Context, assetID string) (*domain.ProcessingStats, error) {
	return s.assetRepo.RecomputeStats(ctx, assetID, time.Now().UTC())
}

// GetLatestJob returns the most recent job of a type for an asset.
func (s *AssetService) GetLatestJob(ctx context.Context, assetID string, jobType domain.JobType) (*domain.ProcessingJob, error) {
	if _, err := s.assetRepo.GetByID(ctx, assetID); err != nil {
		return nil, err
	}
	return s.jobRepo.GetLatestByAssetAndType(ctx, assetID, jobType)
}

func (s *AssetService) ListJobs(ctx context.Context, assetID string) ([]*domain.ProcessingJob, error) {
	if _, err := s.assetRepo.GetByID(ctx, assetID); err != nil {
		return nil, err
	}
	return s.jobRepo.ListByAsset(ctx, assetID)
}

// QueueStats returns the pending job count per type.
func (s *AssetService) QueueStats(ctx context.Context) (map[domain.JobType]int, error) {
	return s.jobRepo.CountPendingByType(ctx)
}
