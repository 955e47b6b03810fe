package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
)

// FeedsFile is the on-disk layout of a feed configuration file.
type FeedsFile struct {
	Feeds map[string]pricefeed.FeedConfig `yaml:"feeds" json:"feeds"`
}

// LoadFeeds reads named feed configurations from a YAML or JSON file.
func LoadFeeds(path string) (map[string]pricefeed.FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds config: %w", err)
	}
	return ParseFeeds(data, filepath.Ext(path))
}

// ParseFeeds decodes a feed configuration document. ext selects JSON when it
// is ".json"; anything else is parsed as YAML.
func ParseFeeds(data []byte, ext string) (map[string]pricefeed.FeedConfig, error) {
	var file FeedsFile
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse feeds config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feeds config: %w", err)
	}

	if len(file.Feeds) == 0 {
		return nil, errors.New("feeds config defines no feeds")
	}
	for name, cfg := range file.Feeds {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("feed name must not be empty")
		}
		if cfg.Type == "" && cfg.Ref == "" {
			return nil, fmt.Errorf("feed %s: type or ref is required", name)
		}
	}
	return file.Feeds, nil
}

// LoadFeedsOrDefault loads path, falling back to DefaultFeedsConfig when the
// file does not exist.
func LoadFeedsOrDefault(path string) (map[string]pricefeed.FeedConfig, error) {
	feeds, err := LoadFeeds(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultFeedsConfig(), nil
	}
	return feeds, err
}

func exchangeFeed(exchange, pair string) pricefeed.FeedConfig {
	return pricefeed.FeedConfig{Type: pricefeed.TypeCryptowatch, Exchange: exchange, Pair: pair}
}

// DefaultFeedsConfig returns the built-in feed definitions keyed by symbol.
// Each call returns a fresh map.
func DefaultFeedsConfig() map[string]pricefeed.FeedConfig {
	return map[string]pricefeed.FeedConfig{
		"ETHUSD": {
			Type: pricefeed.TypeMedianizer,
			PriceFeeds: []pricefeed.FeedConfig{
				exchangeFeed("coinbase-pro", "ethusd"),
				exchangeFeed("binance", "ethusdt"),
				exchangeFeed("kraken", "ethusd"),
			},
		},
		"BTCUSD": {
			Type: pricefeed.TypeMedianizer,
			PriceFeeds: []pricefeed.FeedConfig{
				exchangeFeed("coinbase-pro", "btcusd"),
				exchangeFeed("binance", "btcusdt"),
				exchangeFeed("bitstamp", "btcusd"),
			},
		},
		"USDETH": {
			Type:        pricefeed.TypeMedianizer,
			InvertPrice: true,
			PriceFeeds:  []pricefeed.FeedConfig{{Ref: "ETHUSD"}},
		},
		"ETHBTC": {
			Type:       pricefeed.TypeExpression,
			Expression: "ETHUSD / BTCUSD",
		},
		"BTCUSD_FALLBACK": {
			Type: pricefeed.TypeFallback,
			OrderedFeeds: []pricefeed.FeedConfig{
				exchangeFeed("coinbase-pro", "btcusd"),
				exchangeFeed("kraken", "btcusd"),
			},
		},
	}
}
