package services

import (
	"autorag-api/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	marketKeyPrefix     = "market:"
	defaultMarketDomain = "general"
)

// MarketService serves commodity price snapshots cached in the KV store
// under market:<domain> as JSON arrays of quotes.
type MarketService interface {
	Snapshot(ctx context.Context, domains []string) ([]models.MarketQuote, error)
}

type kvMarketService struct {
	store KVStore
}

func NewMarketService(store KVStore) MarketService {
	return &kvMarketService{store: store}
}

func (s *kvMarketService) Snapshot(ctx context.Context, domains []string) ([]models.MarketQuote, error) {
	if len(domains) == 0 {
		domains = []string{defaultMarketDomain}
	}

	var quotes []models.MarketQuote
	for _, domain := range domains {
		raw, err := s.store.Get(ctx, marketKeyPrefix+domain)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read market snapshot %s: %w", domain, err)
		}

		var batch []models.MarketQuote
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			return nil, fmt.Errorf("decode market snapshot %s: %w", domain, err)
		}
		quotes = append(quotes, batch...)
	}
	return quotes, nil
}
