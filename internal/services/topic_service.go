package services

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/yoockh/groupspeak/internal/models"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/utils"

	"gopkg.in/yaml.v3"
)

type TopicService interface {
	Get(ctx context.Context, id string) (*models.Topic, error)
	Seed(ctx context.Context, r io.Reader) (int, error)
	SeedFile(ctx context.Context, path string) (int, error)
}

type topicService struct {
	topics pgrepo.TopicRepository
}

func NewTopicService(topics pgrepo.TopicRepository) TopicService {
	return &topicService{topics: topics}
}

type topicSeed struct {
	Topics []models.Topic `yaml:"topics"`
}

func (s *topicService) Get(ctx context.Context, id string) (*models.Topic, error) {
	const op = "TopicService.Get"

	t, err := s.topics.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "topic not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get topic", err)
	}
	return t, nil
}

// Seed upserts every topic in a YAML document of the form `topics: [{id, title, rubric}]`.
func (s *topicService) Seed(ctx context.Context, r io.Reader) (int, error) {
	const op = "TopicService.Seed"

	var doc topicSeed
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return 0, utils.E(utils.CodeInvalidArgument, op, "invalid topics file", err)
	}

	n := 0
	for i := range doc.Topics {
		t := doc.Topics[i]
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" || strings.TrimSpace(t.Title) == "" {
			return n, utils.E(utils.CodeInvalidArgument, op, "every topic needs an id and a title", nil)
		}
		if err := s.topics.Upsert(ctx, &t); err != nil {
			return n, utils.E(utils.CodeInternal, op, "failed to store topic "+t.ID, err)
		}
		n++
	}
	return n, nil
}

func (s *topicService) SeedFile(ctx context.Context, path string) (int, error) {
	const op = "TopicService.SeedFile"

	f, err := os.Open(path)
	if err != nil {
		return 0, utils.E(utils.CodeInvalidArgument, op, "cannot open topics file", err)
	}
	defer f.Close()
	return s.Seed(ctx, f)
}
