package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/bandit"
	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/telemetry"
)

// Selection is the selector's decision. Template is nil when no template
// applies.
type Selection struct {
	Template *domain.Template
	Method   domain.SelectionMethod
}

// TemplateSelector picks a template for a cluster with a bandit policy.
type TemplateSelector struct {
	templates TemplateRepositoryInterface
	armStats  ArmStatRepositoryInterface
	policy    bandit.Policy
	logger    *zap.Logger
}

func NewTemplateSelector(
	templates TemplateRepositoryInterface,
	armStats ArmStatRepositoryInterface,
	policy bandit.Policy,
	logger *zap.Logger,
) *TemplateSelector {
	if policy == nil {
		policy = bandit.UCB1{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateSelector{
		templates: templates,
		armStats:  armStats,
		policy:    policy,
		logger:    logger,
	}
}

// Select chooses a template for cluster. It does not record the pull.
func (s *TemplateSelector) Select(ctx context.Context, cluster *domain.Cluster) (*Selection, error) {
	if cluster == nil {
		return &Selection{Method: domain.SelectionUnclustered}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "TemplateSelector.Select", telemetry.SpanAttributes{
		ClusterID: cluster.ID,
		Operation: "select",
	})
	defer span.End()

	stats, err := s.armStats.ListByCluster(ctx, cluster.ID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	// A cluster that never used a template and was never regenerated
	// has nothing to adapt yet.
	if len(stats) == 0 && !cluster.HasEnhancement() {
		return &Selection{Method: domain.SelectionFresh}, nil
	}

	candidates, err := s.clusterCandidates(ctx, cluster, stats)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetData("cluster_candidates", len(candidates))
	if len(candidates) > 0 {
		return s.choose(candidates, stats, false), nil
	}

	global, err := s.armStats.ListGlobal(ctx)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	templates, err := s.templates.GetByIDs(ctx, templateIDs(global))
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(templates) == 0 {
		return &Selection{Method: domain.SelectionDefault}, nil
	}
	return s.choose(templates, global, true), nil
}

// clusterCandidates unions the templates already tried in the cluster with
// the templates for its topic. Topic templates never tried here become
// untried arms.
func (s *TemplateSelector) clusterCandidates(ctx context.Context, cluster *domain.Cluster, stats []domain.ClusterTemplateStat) ([]*domain.Template, error) {
	seen := make(map[string]bool)
	var candidates []*domain.Template

	if cluster.Topic != "" {
		byTopic, err := s.templates.ListByTopic(ctx, cluster.Topic)
		if err != nil {
			return nil, err
		}
		for _, t := range byTopic {
			if !seen[t.ID] {
				seen[t.ID] = true
				candidates = append(candidates, t)
			}
		}
	}

	var missing []string
	for _, st := range stats {
		if !seen[st.TemplateID] {
			missing = append(missing, st.TemplateID)
		}
	}
	if len(missing) > 0 {
		tried, err := s.templates.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, t := range tried {
			if !seen[t.ID] {
				seen[t.ID] = true
				candidates = append(candidates, t)
			}
		}
	}
	return candidates, nil
}

func (s *TemplateSelector) choose(templates []*domain.Template, stats []domain.ClusterTemplateStat, global bool) *Selection {
	byID := make(map[string]*domain.Template, len(templates))
	statByID := make(map[string]domain.ClusterTemplateStat, len(stats))
	for _, st := range stats {
		statByID[st.TemplateID] = st
	}

	arms := make([]bandit.Arm, 0, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
		st := statByID[t.ID]
		arms = append(arms, bandit.Arm{
			ID:         t.ID,
			Pulls:      st.UsageCount,
			MeanReward: st.MeanReward(),
			Quality:    t.CompositeQualityScore,
		})
	}

	choice, ok := s.policy.Select(arms)
	if !ok {
		return &Selection{Method: domain.SelectionDefault}
	}

	method := selectionMethod(choice.Method)
	if global {
		method = domain.SelectionGlobalUCB1
		if choice.Method == bandit.MethodEpsilonExplore {
			method = domain.SelectionGlobalEpsilonExplore
		}
	}
	s.logger.Debug("template selected",
		zap.String("template_id", choice.Arm.ID),
		zap.String("method", string(method)),
		zap.Float64("score", choice.Score),
		zap.Int("arms", len(arms)),
	)
	return &Selection{Template: byID[choice.Arm.ID], Method: method}
}

func selectionMethod(m bandit.Method) domain.SelectionMethod {
	switch m {
	case bandit.MethodUCB1Untried:
		return domain.SelectionUCB1Untried
	case bandit.MethodEpsilonExplore:
		return domain.SelectionEpsilonExplore
	}
	return domain.SelectionUCB1
}

func templateIDs(stats []domain.ClusterTemplateStat) []string {
	ids := make([]string, 0, len(stats))
	for _, st := range stats {
		ids = append(ids, st.TemplateID)
	}
	return ids
}
