package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

// TemplateSeed describes one seeded template. Content is either freeform
// text or a JSON object of structure flags.
type TemplateSeed struct {
	Topic    string
	Content  string
	Metadata map[string]any
}

// SeedResult counts what a seeding run did.
type SeedResult struct {
	Created int
	Skipped int
}

// TemplateService manages the template catalogue.
type TemplateService struct {
	templates TemplateRepositoryInterface
	topics    TopicRepositoryInterface
	logger    *zap.Logger
	uuidGen   UUIDGenerator
	now       Clock
}

func NewTemplateService(templates TemplateRepositoryInterface, topics TopicRepositoryInterface, logger *zap.Logger) *TemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{
		templates: templates,
		topics:    topics,
		logger:    logger,
		uuidGen:   &DefaultUUIDGenerator{},
		now:       utcNow,
	}
}

// WithUUIDGen replaces the id generator (for testing).
func (s *TemplateService) WithUUIDGen(gen UUIDGenerator) *TemplateService {
	s.uuidGen = gen
	return s
}

// Seed inserts seeds that are not already present. Duplicates are skipped.
func (s *TemplateService) Seed(ctx context.Context, seeds []TemplateSeed) (*SeedResult, error) {
	result := &SeedResult{}
	for i, seed := range seeds {
		topic := strings.ToLower(strings.TrimSpace(seed.Topic))
		if topic == "" {
			topic = domain.GeneralTopic
		}

		now := s.now()
		t := &domain.Template{
			ID:        s.uuidGen.NewString(),
			Topic:     topic,
			Content:   domain.ParseTemplateContent(seed.Content),
			Source:    domain.TemplateSourceSeeded,
			Metadata:  seed.Metadata,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := domain.ValidateTemplate(t); err != nil {
			return result, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, fmt.Sprintf("seed %d", i), err)
		}

		if s.topics != nil {
			if err := s.topics.Ensure(ctx, topic); err != nil {
				return result, err
			}
		}

		err := s.templates.Create(ctx, t)
		switch {
		case errors.Is(err, domain.ErrTemplateAlreadyExists):
			result.Skipped++
		case err != nil:
			return result, err
		default:
			result.Created++
		}
	}

	s.logger.Info("templates seeded", zap.Int("created", result.Created), zap.Int("skipped", result.Skipped))
	return result, nil
}
