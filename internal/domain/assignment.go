package domain

import (
	"fmt"
	"time"
)

// SelectionMethod records which selector rule produced an assignment's template.
type SelectionMethod string

const (
	SelectionFresh                SelectionMethod = "fresh"
	SelectionUCB1                 SelectionMethod = "ucb1"
	SelectionUCB1Untried          SelectionMethod = "ucb1_untried"
	SelectionGlobalUCB1           SelectionMethod = "global_ucb1"
	SelectionEpsilonExplore       SelectionMethod = "epsilon_explore"
	SelectionGlobalEpsilonExplore SelectionMethod = "global_epsilon_explore"
	SelectionDefault              SelectionMethod = "default"
	SelectionUnclustered          SelectionMethod = "unclustered"
)

// FeedbackOutcome is the classified sentiment recorded on an assignment.
type FeedbackOutcome string

const (
	FeedbackPositive FeedbackOutcome = "positive"
	FeedbackNegative FeedbackOutcome = "negative"
	FeedbackNeutral  FeedbackOutcome = "neutral"
)

// Reward maps an outcome onto the bandit reward scale [0,1].
func (o FeedbackOutcome) Reward() float64 {
	switch o {
	case FeedbackPositive:
		return 1
	case FeedbackNeutral:
		return 0.5
	}
	return 0
}

// Rating maps an outcome onto the 0-5 efficacy rating scale.
func (o FeedbackOutcome) Rating() float64 {
	switch o {
	case FeedbackPositive:
		return 5
	case FeedbackNeutral:
		return 3
	}
	return 1
}

// ParseFeedbackOutcome normalizes a label; unknown labels are neutral.
func ParseFeedbackOutcome(s string) FeedbackOutcome {
	switch FeedbackOutcome(s) {
	case FeedbackPositive, FeedbackNegative, FeedbackNeutral:
		return FeedbackOutcome(s)
	}
	return FeedbackNeutral
}

// Assignment records which cluster and template a query was routed to.
// Only the feedback fields are written after creation.
type Assignment struct {
	ID                 string
	QueryText          string
	ClusterID          string
	TemplateID         string // empty when no template was applied
	SessionID          string
	UserID             string
	Topic              string
	Similarity         float64
	IsNewCluster       bool
	SelectionMethod    SelectionMethod
	CreatedAt          time.Time
	FeedbackOutcome    FeedbackOutcome // empty until feedback is classified
	FeedbackConfidence float64
	FeedbackText       string
	FeedbackAt         *time.Time
}

// HasFeedback reports whether an outcome has already been recorded.
func (a *Assignment) HasFeedback() bool {
	return a.FeedbackOutcome != ""
}

// ValidateAssignment validates an Assignment instance
func ValidateAssignment(a *Assignment) error {
	if a == nil {
		return fmt.Errorf("assignment cannot be nil")
	}

	if a.ID == "" {
		return fmt.Errorf("assignment ID is required")
	}

	if a.QueryText == "" {
		return fmt.Errorf("assignment QueryText is required")
	}

	if a.ClusterID == "" {
		return fmt.Errorf("assignment ClusterID is required")
	}

	if a.Similarity < 0 || a.Similarity > 1 {
		return fmt.Errorf("assignment Similarity must be within [0,1]: %v", a.Similarity)
	}

	return nil
}
