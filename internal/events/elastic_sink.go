package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"game-guard/internal/model"
	"game-guard/internal/util"
)

const defaultEventIndex = "guard-security-events"

// ElasticSink indexes security events for ad-hoc investigation by the
// trust-and-safety team.
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

type ElasticOptions struct {
	URL      string
	Username string
	Password string
	Index    string
}

func NewElasticSink(opts ElasticOptions) (*ElasticSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{opts.URL},
		Username:  opts.Username,
		Password:  opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch connection test failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	index := opts.Index
	if index == "" {
		index = defaultEventIndex
	}

	util.Info("Elasticsearch event sink initialized",
		zap.String("url", opts.URL),
		zap.String("index", index),
	)

	return &ElasticSink{
		client: client,
		index:  index,
		logger: util.Get(),
	}, nil
}

func (s *ElasticSink) Publish(ctx context.Context, event model.SecurityEvent) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(event); err != nil {
		return fmt.Errorf("error encoding security event: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		&buf,
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(event.EventID),
	)
	if err != nil {
		return fmt.Errorf("error indexing security event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.Status())
	}
	return nil
}

func (s *ElasticSink) Close() error {
	s.logger.Info("Elasticsearch event sink shutdown")
	return nil
}
