package domain

import (
	"fmt"
	"time"
)

// LearningTrigger names why a learning event was written.
type LearningTrigger string

const (
	TriggerPositiveFeedback LearningTrigger = "positive_feedback_threshold"
)

// SuccessFactors are the structured traits extracted from a well-received answer.
type SuccessFactors struct {
	UsedAnalogy      bool     `json:"used_analogy"`
	ClearStructure   bool     `json:"clear_structure"`
	StepByStep       bool     `json:"step_by_step"`
	AppropriateDepth bool     `json:"appropriate_depth"`
	ConcreteExamples bool     `json:"concrete_examples"`
	Strengths        []string `json:"strengths"`
}

// Any reports whether at least one factor was detected.
func (f SuccessFactors) Any() bool {
	return f.UsedAnalogy || f.ClearStructure || f.StepByStep || f.AppropriateDepth ||
		f.ConcreteExamples || len(f.Strengths) > 0
}

// FeedbackClassification is the language model's reading of a feedback message.
type FeedbackClassification struct {
	Outcome    FeedbackOutcome
	Confidence float64
	FollowUp   bool // the learner asked a follow-up question
	Confused   bool
}

// LearningEvent is the append-only audit record of a cluster regeneration.
type LearningEvent struct {
	ID              string
	ClusterID       string
	AssignmentID    string
	SuccessFactors  SuccessFactors
	PromptUpdate    string
	ConfidenceScore float64
	TriggerReason   LearningTrigger
	CreatedAt       time.Time
}

// ValidateLearningEvent validates a LearningEvent instance
func ValidateLearningEvent(e *LearningEvent) error {
	if e == nil {
		return fmt.Errorf("learning event cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("learning event ID is required")
	}

	if e.ClusterID == "" {
		return fmt.Errorf("learning event ClusterID is required")
	}

	if e.AssignmentID == "" {
		return fmt.Errorf("learning event AssignmentID is required")
	}

	if e.PromptUpdate == "" {
		return fmt.Errorf("learning event PromptUpdate is required")
	}

	if e.ConfidenceScore < 0 || e.ConfidenceScore > 1 {
		return fmt.Errorf("learning event ConfidenceScore must be within [0,1]")
	}

	return nil
}

// LearningJobStatus represents the status of a queued feedback job
type LearningJobStatus string

const (
	LearningJobStatusPending    LearningJobStatus = "pending"
	LearningJobStatusProcessing LearningJobStatus = "processing"
	LearningJobStatusCompleted  LearningJobStatus = "completed"
	LearningJobStatusFailed     LearningJobStatus = "failed" // dead letter
)

// LearningJob is a queued unit of feedback processing.
type LearningJob struct {
	ID           string
	AssignmentID string
	FeedbackText string
	ResponseText string
	Status       LearningJobStatus
	Retries      int32
	Error        string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// NewLearningJob creates a pending job for the given feedback.
func NewLearningJob(id, assignmentID, feedbackText, responseText string, createdAt time.Time) *LearningJob {
	return &LearningJob{
		ID:           id,
		AssignmentID: assignmentID,
		FeedbackText: feedbackText,
		ResponseText: responseText,
		Status:       LearningJobStatusPending,
		Retries:      0,
		CreatedAt:    createdAt,
	}
}

// ValidateLearningJob validates a LearningJob instance
func ValidateLearningJob(j *LearningJob) error {
	if j == nil {
		return fmt.Errorf("learning job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("learning job ID is required")
	}

	if j.AssignmentID == "" {
		return fmt.Errorf("learning job AssignmentID is required")
	}

	if j.FeedbackText == "" {
		return fmt.Errorf("learning job FeedbackText is required")
	}

	if !isValidLearningJobStatus(j.Status) {
		return fmt.Errorf("learning job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("learning job Retries cannot be negative")
	}

	return nil
}

func isValidLearningJobStatus(s LearningJobStatus) bool {
	switch s {
	case LearningJobStatusPending, LearningJobStatusProcessing,
		LearningJobStatusCompleted, LearningJobStatusFailed:
		return true
	}
	return false
}
