package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lodestone-ai/lodestone/internal/domain"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
)

type ReviewRepositoryInterface interface {
	Create(ctx context.Context, instance *domain.ReviewInstance) error
	GetByAsset(ctx context.Context, assetID string) (*domain.ReviewInstance, error)
	TransitionState(ctx context.Context, id string, from, to domain.ReviewState, now time.Time) (bool, error)
}

// ReviewService is the human gateway between extraction and activation. Each
// asset gets one suspended review instance; nothing blocks while a decision
// is outstanding, and the instance resumes when a decision call arrives.
type ReviewService struct {
	reviewRepo ReviewRepositoryInterface
	assetRepo  AssetRepositoryInterface
	chunkRepo  ChunkRepositoryInterface
	relRepo    RelationshipRepositoryInterface
	jobRepo    JobRepositoryInterface
	vectors    VectorStore
	graph      GraphStore
	chunker    *Chunker
	uuidGen    UUIDGenerator
}

func NewReviewService(
	reviewRepo ReviewRepositoryInterface,
	assetRepo AssetRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	relRepo RelationshipRepositoryInterface,
	jobRepo JobRepositoryInterface,
	vectors VectorStore,
	graph GraphStore,
	chunker *Chunker,
) *ReviewService {
	return &ReviewService{
		reviewRepo: reviewRepo,
		assetRepo:  assetRepo,
		chunkRepo:  chunkRepo,
		relRepo:    relRepo,
		jobRepo:    jobRepo,
		vectors:    vectors,
		graph:      graph,
		chunker:    chunker,
		uuidGen:    &DefaultUUIDGenerator{},
	}
}

// OpenReview ensures the asset has a review instance, creating one in the
// extracted state if none exists. Idempotent: repeat pipeline runs land on
// the same instance. When the existing instance was suspended by an edit or
// rerun decision, finishing the pipeline hands it back to the reviewer.
func (s *ReviewService) OpenReview(ctx context.Context, assetID string) (*domain.ReviewInstance, error) {
	instance, err := s.reviewRepo.GetByAsset(ctx, assetID)
	if err == nil {
		return s.resume(ctx, instance)
	}
	if !errors.Is(err, domain.ErrReviewNotFound) {
		return nil, err
	}

	instance = domain.NewReviewInstance(s.uuidGen.NewString(), assetID, time.Now().UTC())
	if err := s.reviewRepo.Create(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// ResumeReview returns a suspended instance to under_review once the follow-up
// work for its decision has completed. Assets without a review instance are a
// no-op: standalone embed jobs also run before any review exists.
func (s *ReviewService) ResumeReview(ctx context.Context, assetID string) (*domain.ReviewInstance, error) {
	instance, err := s.reviewRepo.GetByAsset(ctx, assetID)
	if err != nil {
		if errors.Is(err, domain.ErrReviewNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.resume(ctx, instance)
}

// resume moves edit_requested or rerun_requested back to under_review. Any
// other state passes through untouched. A lost CAS means a concurrent caller
// already resumed it.
func (s *ReviewService) resume(ctx context.Context, instance *domain.ReviewInstance) (*domain.ReviewInstance, error) {
	if instance.State != domain.ReviewStateEditRequested && instance.State != domain.ReviewStateRerunRequested {
		return instance, nil
	}

	now := time.Now().UTC()
	ok, err := s.reviewRepo.TransitionState(ctx, instance.ID, instance.State, domain.ReviewStateUnderReview, now)
	if err != nil {
		return nil, err
	}
	if ok {
		instance.State = domain.ReviewStateUnderReview
		instance.UpdatedAt = now
	}
	return instance, nil
}

func (s *ReviewService) GetReview(ctx context.Context, assetID string) (*domain.ReviewInstance, error) {
	return s.reviewRepo.GetByAsset(ctx, assetID)
}

type DecisionInput struct {
	Edits  []domain.ChunkEdit
	Params *domain.ExtractionParams
}

type DecisionResult struct {
	Instance *domain.ReviewInstance
	Stats    *domain.ProcessingStats // set on approve
	Job      *domain.ProcessingJob   // set on rerun and edit
}

// Decide applies a human decision to the asset's review instance.
//
// approve finalizes the asset: stats recomputed, summary backfilled, status
// activated. edit applies caller content fixes and re-embeds them. rerun
// supersedes the current derived content and replays the whole pipeline with
// the supplied parameters.
func (s *ReviewService) Decide(ctx context.Context, assetID string, decision domain.ReviewDecision, input DecisionInput) (*DecisionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewService.Decide", telemetry.SpanAttributes{
		AssetID:   assetID,
		Operation: string(decision),
	})
	defer span.End()

	if !domain.IsValidReviewDecision(decision) {
		return nil, domain.ErrInvalidReviewDecision
	}

	instance, err := s.reviewRepo.GetByAsset(ctx, assetID)
	if err != nil {
		if errors.Is(err, domain.ErrReviewNotFound) {
			return nil, domain.ErrAssetNotReviewable
		}
		return nil, err
	}
	if instance.State == domain.ReviewStateApproved {
		return nil, domain.ErrInvalidReviewDecision
	}

	// a decision on a waiting instance implicitly picks it up for review
	if instance.State != domain.ReviewStateUnderReview {
		now := time.Now().UTC()
		ok, err := s.reviewRepo.TransitionState(ctx, instance.ID, instance.State, domain.ReviewStateUnderReview, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrInvalidReviewDecision
		}
		instance.State = domain.ReviewStateUnderReview
		instance.UpdatedAt = now
	}

	switch decision {
	case domain.ReviewDecisionApprove:
		return s.approve(ctx, instance, assetID)
	case domain.ReviewDecisionEdit:
		return s.edit(ctx, instance, assetID, input.Edits)
	case domain.ReviewDecisionRerun:
		return s.rerun(ctx, instance, assetID, input.Params)
	}
	return nil, domain.ErrInvalidReviewDecision
}

func (s *ReviewService) approve(ctx context.Context, instance *domain.ReviewInstance, assetID string) (*DecisionResult, error) {
	now := time.Now().UTC()

	stats, err := s.assetRepo.RecomputeStats(ctx, assetID, now)
	if err != nil {
		return nil, err
	}

	asset, err := s.assetRepo.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.Summary == "" {
		chunks, err := s.chunkRepo.ListByAsset(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if summary := summaryFromChunks(chunks); summary != "" {
			if err := s.assetRepo.UpdateSummary(ctx, assetID, summary, now); err != nil {
				return nil, err
			}
		}
	}

	if err := s.assetRepo.UpdateStatus(ctx, assetID, domain.AssetStatusProcessing, domain.AssetStatusActive, now); err != nil {
		return nil, err
	}

	ok, err := s.reviewRepo.TransitionState(ctx, instance.ID, domain.ReviewStateUnderReview, domain.ReviewStateApproved, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidReviewDecision
	}
	instance.State = domain.ReviewStateApproved
	instance.DecidedAt = &now

	return &DecisionResult{Instance: instance, Stats: stats}, nil
}

func (s *ReviewService) edit(ctx context.Context, instance *domain.ReviewInstance, assetID string, edits []domain.ChunkEdit) (*DecisionResult, error) {
	if len(edits) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "edit decision requires at least one chunk edit")
	}

	now := time.Now().UTC()
	for _, e := range edits {
		chunk, err := s.chunkRepo.GetByID(ctx, e.ChunkID)
		if err != nil {
			return nil, err
		}
		if chunk.AssetID != assetID {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "chunk does not belong to the asset under review")
		}
		if e.Content == "" {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "edited chunk content cannot be empty")
		}

		chunkType := chunk.Type
		if e.Type != "" {
			chunkType = e.Type
		}
		hash := domain.ChunkContentHash(chunkType, e.Content)
		tokens := s.chunker.CountTokens(e.Content)
		if err := s.chunkRepo.UpdateContent(ctx, e.ChunkID, chunkType, e.Content, tokens, hash, now); err != nil {
			return nil, err
		}
		// the superseded vector goes away best-effort; reconciliation catches
		// leftovers
		if chunk.VectorPointer != "" {
			_ = s.vectors.Delete(ctx, chunk.VectorPointer)
		}
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), assetID, domain.JobTypeEmbed, nil, now)
	if err := s.jobRepo.Create(ctx, job); err != nil {
		if !errors.Is(err, domain.ErrDuplicateJob) {
			return nil, err
		}
		job = nil
	}

	ok, err := s.reviewRepo.TransitionState(ctx, instance.ID, domain.ReviewStateUnderReview, domain.ReviewStateEditRequested, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidReviewDecision
	}
	instance.State = domain.ReviewStateEditRequested

	return &DecisionResult{Instance: instance, Job: job}, nil
}

func (s *ReviewService) rerun(ctx context.Context, instance *domain.ReviewInstance, assetID string, params *domain.ExtractionParams) (*DecisionResult, error) {
	now := time.Now().UTC()

	stalePointers, err := s.chunkRepo.TombstoneByAsset(ctx, assetID, now)
	if err != nil {
		return nil, err
	}
	for _, pointer := range stalePointers {
		_ = s.vectors.Delete(ctx, pointer)
	}

	staleEdges, err := s.relRepo.TombstoneBySourceAsset(ctx, assetID, now)
	if err != nil {
		return nil, err
	}
	for _, pointer := range staleEdges {
		_ = s.graph.DeleteEdge(ctx, pointer)
	}

	metadata := map[string]string{}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extraction params: %w", err)
		}
		metadata["extraction_params"] = string(encoded)
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), assetID, domain.JobTypeFullProcess, metadata, now)
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	ok, err := s.reviewRepo.TransitionState(ctx, instance.ID, domain.ReviewStateUnderReview, domain.ReviewStateRerunRequested, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidReviewDecision
	}
	instance.State = domain.ReviewStateRerunRequested

	return &DecisionResult{Instance: instance, Job: job}, nil
}

const summaryMaxChars = 280

// summaryFromChunks backfills an asset summary from its first prose chunk.
func summaryFromChunks(chunks []*domain.KnowledgeChunk) string {
	for _, chunk := range chunks {
		if chunk.Type != domain.ChunkTypeText {
			continue
		}
		text := strings.TrimSpace(chunk.Content)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > summaryMaxChars {
			return string(runes[:summaryMaxChars])
		}
		return text
	}
	return ""
}
