package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
)

type SearchOptions struct {
	TopK int
	// Filter maps a document field to the values it may take.
	Filter map[string][]string
}

type VectorSearcher interface {
	Query(ctx context.Context, vector []float32, opts SearchOptions) ([]models.Passage, error)
}

type ElasticVectorSearch struct {
	es    *elasticsearch.Client
	index string
	field string
}

func NewElasticVectorSearch(cfg config.SearchConfig) (*ElasticVectorSearch, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticVectorSearch{
		es:    es,
		index: cfg.Index,
		field: cfg.VectorField,
	}, nil
}

type knnHit struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Domain  string `json:"domain"`
		Source  string `json:"source"`
	} `json:"_source"`
}

type knnResponse struct {
	Hits struct {
		Hits []knnHit `json:"hits"`
	} `json:"hits"`
}

// Query runs an approximate kNN search and returns passages in rank order.
func (s *ElasticVectorSearch) Query(ctx context.Context, vector []float32, opts SearchOptions) ([]models.Passage, error) {
	body, err := json.Marshal(buildKNNQuery(s.field, vector, opts))
	if err != nil {
		return nil, fmt.Errorf("encode knn query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("vector search returned %s: %s", res.Status(), bytes.TrimSpace(msg))
	}

	var parsed knnResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode vector search response: %w", err)
	}

	passages := make([]models.Passage, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		passages = append(passages, models.Passage{
			ID:      hit.ID,
			Title:   hit.Source.Title,
			Content: hit.Source.Content,
			Domain:  hit.Source.Domain,
			Source:  hit.Source.Source,
			Score:   hit.Score,
		})
	}
	return passages, nil
}

func buildKNNQuery(field string, vector []float32, opts SearchOptions) map[string]interface{} {
	topK := opts.TopK
	if topK <= 0 {
		topK = 3
	}

	knn := map[string]interface{}{
		"field":          field,
		"query_vector":   vector,
		"k":              topK,
		"num_candidates": topK * 10,
	}

	var filters []map[string]interface{}
	for f, values := range opts.Filter {
		if len(values) == 0 {
			continue
		}
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{f: values},
		})
	}
	if len(filters) > 0 {
		knn["filter"] = filters
	}

	return map[string]interface{}{
		"knn":     knn,
		"size":    topK,
		"_source": []string{"title", "content", "domain", "source"},
	}
}
