package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/metrics"
	"github.com/cloo-solutions/tutorfit/internal/telemetry"
)

// Regeneration gate outcomes, recorded as metric labels.
const (
	GateRegenerated    = "regenerated"
	GateNotPositive    = "not_positive"
	GateLowConfidence  = "low_confidence"
	GateBelowThreshold = "below_threshold"
	GateCooldown       = "cooldown"
	GateAlreadyLearned = "already_learned"
	GateNoFactors      = "no_success_factors"
)

// LearningConfig holds the regeneration gate thresholds.
type LearningConfig struct {
	MinFeedbackConfidence float64
	RegenerationThreshold int64
	RegenerationCooldown  time.Duration
}

// DefaultLearningConfig returns the stock gate thresholds.
func DefaultLearningConfig() LearningConfig {
	return LearningConfig{
		MinFeedbackConfidence: 0.7,
		RegenerationThreshold: 2,
		RegenerationCooldown:  12 * time.Hour,
	}
}

// FeedbackInput is the learner's reaction to an answer.
type FeedbackInput struct {
	AssignmentID string
	FeedbackText string
	ResponseText string
}

// LearningOutcome reports what one processed job changed.
type LearningOutcome struct {
	Classification domain.FeedbackClassification
	Gate           string
	Event          *domain.LearningEvent
	CrowdTemplate  *domain.Template
}

// Regenerated reports whether the cluster enhancement was rewritten.
func (o *LearningOutcome) Regenerated() bool {
	return o.Event != nil
}

// LearningService queues feedback and folds it back into clusters and templates.
type LearningService struct {
	assignments AssignmentRepositoryInterface
	clusters    ClusterRepositoryInterface
	events      LearningEventRepositoryInterface
	jobs        LearningJobRepositoryInterface
	tx          TxRunner
	analyzer    FeedbackAnalyzer
	config      LearningConfig
	metrics     *metrics.Metrics
	logger      *zap.Logger
	uuidGen     UUIDGenerator
	now         Clock
}

func NewLearningService(
	assignments AssignmentRepositoryInterface,
	clusters ClusterRepositoryInterface,
	events LearningEventRepositoryInterface,
	jobs LearningJobRepositoryInterface,
	tx TxRunner,
	analyzer FeedbackAnalyzer,
	config LearningConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *LearningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LearningService{
		assignments: assignments,
		clusters:    clusters,
		events:      events,
		jobs:        jobs,
		tx:          tx,
		analyzer:    analyzer,
		config:      config,
		metrics:     m,
		logger:      logger,
		uuidGen:     &DefaultUUIDGenerator{},
		now:         utcNow,
	}
}

// WithUUIDGen replaces the id generator (for testing).
func (s *LearningService) WithUUIDGen(gen UUIDGenerator) *LearningService {
	s.uuidGen = gen
	return s
}

// WithClock replaces the clock (for testing).
func (s *LearningService) WithClock(now Clock) *LearningService {
	s.now = now
	return s
}

// SubmitFeedback validates the assignment and queues a learning job.
func (s *LearningService) SubmitFeedback(ctx context.Context, input FeedbackInput) (*domain.LearningJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "LearningService.SubmitFeedback", telemetry.SpanAttributes{
		AssignmentID: input.AssignmentID,
		Operation:    "submit_feedback",
	})
	defer span.End()

	if strings.TrimSpace(input.AssignmentID) == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if strings.TrimSpace(input.FeedbackText) == "" {
		return nil, domain.ErrEmptyFeedback
	}

	if _, err := s.assignments.GetByID(ctx, input.AssignmentID); err != nil {
		return nil, err
	}

	job := domain.NewLearningJob(s.uuidGen.NewString(), input.AssignmentID, input.FeedbackText, input.ResponseText, s.now())
	if err := domain.ValidateLearningJob(job); err != nil {
		return nil, err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		span.SetError(err)
		return nil, err
	}

	s.logger.Debug("feedback queued", zap.String("assignment_id", input.AssignmentID), zap.String("job_id", job.ID))
	return job, nil
}

// ProcessJob runs the learning loop for one queued feedback. Each step is
// idempotent, so a retried job resumes at the first step that did not
// complete. Upstream failures return an error and leave later steps undone.
func (s *LearningService) ProcessJob(ctx context.Context, job *domain.LearningJob) (*LearningOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "LearningService.ProcessJob", telemetry.SpanAttributes{
		AssignmentID: job.AssignmentID,
		Operation:    "process_feedback",
	})
	defer span.End()

	if s.analyzer == nil {
		err := domain.ErrUpstreamUnavailable.WithCause(errors.New("feedback analyzer not configured"))
		span.SetError(err)
		return nil, err
	}

	assignment, err := s.assignments.GetByID(ctx, job.AssignmentID)
	if err != nil {
		return nil, err
	}

	classification, err := s.recordFeedback(ctx, assignment, job.FeedbackText)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	outcome := &LearningOutcome{Classification: classification}

	cluster, gate, err := s.gate(ctx, assignment, classification)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	outcome.Gate = gate
	if gate != GateRegenerated {
		s.metrics.RecordLearningGate(gate)
		s.logger.Info("regeneration skipped",
			zap.String("assignment_id", assignment.ID),
			zap.String("cluster_id", assignment.ClusterID),
			zap.String("reason", gate),
		)
		return outcome, nil
	}

	event, err := s.regenerate(ctx, assignment, cluster, job, classification)
	if err != nil {
		if gate, ok := lostRegenerationGate(err); ok {
			outcome.Gate = gate
			s.metrics.RecordLearningGate(gate)
			s.logger.Info("regeneration skipped",
				zap.String("assignment_id", assignment.ID),
				zap.String("cluster_id", assignment.ClusterID),
				zap.String("reason", gate),
			)
			return outcome, nil
		}
		span.SetError(err)
		telemetry.CaptureError(ctx, err)
		return nil, err
	}
	outcome.Event = event
	s.metrics.RecordLearningGate(GateRegenerated)

	if assignment.TemplateID == "" {
		outcome.CrowdTemplate = s.createCrowdTemplate(ctx, cluster, event)
	}

	telemetry.AddBreadcrumb(ctx, "learning", "cluster "+cluster.ID+" regenerated")
	s.logger.Info("cluster enhancement regenerated",
		zap.String("cluster_id", cluster.ID),
		zap.String("assignment_id", assignment.ID),
		zap.Float64("confidence", classification.Confidence),
	)
	return outcome, nil
}

// lostRegenerationGate maps the errors that mean another writer already
// regenerated, or that there was nothing to learn, to a skip gate.
func lostRegenerationGate(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrLearningEventExists):
		return GateAlreadyLearned, true
	case errors.Is(err, domain.ErrRegenerationCooldown):
		return GateCooldown, true
	case errors.Is(err, errNoSuccessFactors):
		return GateNoFactors, true
	}
	return "", false
}

var errNoSuccessFactors = errors.New("no success factors extracted")

// recordFeedback classifies the feedback once and applies its effects on
// counters in one transaction. A retry reuses the stored outcome instead of
// classifying again.
func (s *LearningService) recordFeedback(ctx context.Context, a *domain.Assignment, text string) (domain.FeedbackClassification, error) {
	if a.HasFeedback() {
		return domain.FeedbackClassification{Outcome: a.FeedbackOutcome, Confidence: a.FeedbackConfidence}, nil
	}

	classification, err := s.analyzer.ClassifyFeedback(ctx, text)
	if err != nil {
		s.metrics.RecordUpstreamError("llm")
		return domain.FeedbackClassification{}, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "classify feedback", err)
	}
	classification.Confidence = domain.Clamp01(classification.Confidence)

	recorded := false
	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		ok, err := repos.Assignments().RecordFeedback(ctx, a.ID, classification, text, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		recorded = true

		if a.TemplateID != "" {
			if err := repos.ArmStats().AddReward(ctx, a.ClusterID, a.TemplateID, classification.Outcome.Reward()); err != nil {
				return err
			}
			if err := repos.Templates().RecordRating(ctx, a.TemplateID, classification.Outcome.Rating(),
				classification.FollowUp, classification.Confused); err != nil && !errors.Is(err, domain.ErrTemplateNotFound) {
				return err
			}
		}
		if classification.Outcome == domain.FeedbackPositive {
			if _, err := repos.Clusters().IncrementSuccess(ctx, a.ClusterID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.FeedbackClassification{}, fmt.Errorf("record feedback: %w", err)
	}

	if !recorded {
		// Another worker recorded feedback first; its outcome is authoritative.
		stored, err := s.assignments.GetByID(ctx, a.ID)
		if err != nil {
			return domain.FeedbackClassification{}, err
		}
		return domain.FeedbackClassification{Outcome: stored.FeedbackOutcome, Confidence: stored.FeedbackConfidence}, nil
	}
	return classification, nil
}

func (s *LearningService) gate(ctx context.Context, a *domain.Assignment, c domain.FeedbackClassification) (*domain.Cluster, string, error) {
	if c.Outcome != domain.FeedbackPositive {
		return nil, GateNotPositive, nil
	}
	if c.Confidence < s.config.MinFeedbackConfidence {
		return nil, GateLowConfidence, nil
	}

	if _, err := s.events.GetByAssignment(ctx, a.ID); err == nil {
		return nil, GateAlreadyLearned, nil
	} else if !errors.Is(err, domain.ErrLearningEventNotFound) {
		return nil, "", err
	}

	cluster, err := s.clusters.GetByID(ctx, a.ClusterID)
	if err != nil {
		return nil, "", err
	}
	if cluster.SuccessCount < s.config.RegenerationThreshold {
		return cluster, GateBelowThreshold, nil
	}
	if !cluster.CooldownElapsed(s.now(), s.config.RegenerationCooldown) {
		return cluster, GateCooldown, nil
	}
	return cluster, GateRegenerated, nil
}

func (s *LearningService) regenerate(
	ctx context.Context,
	a *domain.Assignment,
	cluster *domain.Cluster,
	job *domain.LearningJob,
	c domain.FeedbackClassification,
) (*domain.LearningEvent, error) {
	factors, err := s.analyzer.ExtractSuccessFactors(ctx, a.QueryText, job.ResponseText, job.FeedbackText)
	if err != nil {
		s.metrics.RecordUpstreamError("llm")
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "extract success factors", err)
	}
	if !factors.Any() {
		return nil, errNoSuccessFactors
	}

	enhancement, err := s.analyzer.SynthesizeEnhancement(ctx, cluster.PromptEnhancement, a.QueryText, factors)
	if err != nil {
		s.metrics.RecordUpstreamError("llm")
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstream, "synthesize enhancement", err)
	}
	if strings.TrimSpace(enhancement) == "" {
		return nil, domain.ErrMalformedLLMOutput
	}

	now := s.now()
	event := &domain.LearningEvent{
		ID:              s.uuidGen.NewString(),
		ClusterID:       cluster.ID,
		AssignmentID:    a.ID,
		SuccessFactors:  factors,
		PromptUpdate:    enhancement,
		ConfidenceScore: c.Confidence,
		TriggerReason:   domain.TriggerPositiveFeedback,
		CreatedAt:       now,
	}
	if err := domain.ValidateLearningEvent(event); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.LearningEvents().Create(ctx, event); err != nil {
			return err
		}
		return repos.Clusters().UpdateEnhancement(ctx, cluster.ID, enhancement, now, s.config.RegenerationCooldown)
	})
	if err != nil {
		return nil, err
	}

	cluster.PromptEnhancement = enhancement
	cluster.LastRegeneratedAt = &now
	return event, nil
}

// createCrowdTemplate turns a regenerated enhancement into a reusable
// template for the cluster's topic. Failures are logged only.
func (s *LearningService) createCrowdTemplate(ctx context.Context, cluster *domain.Cluster, event *domain.LearningEvent) *domain.Template {
	topic := cluster.Topic
	if topic == "" {
		topic = domain.GeneralTopic
	}

	now := s.now()
	t := &domain.Template{
		ID:      s.uuidGen.NewString(),
		Topic:   topic,
		Content: domain.NewFreeformContent(event.PromptUpdate),
		Source:  domain.TemplateSourceCrowd,
		Metadata: map[string]any{
			"cluster_id":        cluster.ID,
			"assignment_id":     event.AssignmentID,
			"learning_event_id": event.ID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		return repos.Templates().Create(ctx, t)
	})
	switch {
	case errors.Is(err, domain.ErrTemplateAlreadyExists):
		return nil
	case err != nil:
		s.logger.Warn("failed to create crowd template", zap.String("cluster_id", cluster.ID), zap.Error(err))
		return nil
	}
	return t
}
