package pricefeed

import "strings"

// FeedType tags a FeedConfig variant.
type FeedType string

const (
	TypeCryptowatch  FeedType = "cryptowatch"
	TypeExchange     FeedType = "exchange"
	TypeDefiPulse    FeedType = "defipulse"
	TypeTVL          FeedType = "tvl"
	TypeQuote        FeedType = "quote"
	TypeUniswap      FeedType = "uniswap"
	TypeVault        FeedType = "vault"
	TypeMedianizer   FeedType = "medianizer"
	TypeBasketSpread FeedType = "basketspread"
	TypeExpression   FeedType = "expression"
	TypeFallback     FeedType = "fallback"
)

// Canonical folds aliases onto their primary tag.
func (t FeedType) Canonical() FeedType {
	switch FeedType(strings.ToLower(strings.TrimSpace(string(t)))) {
	case TypeCryptowatch, TypeExchange:
		return TypeCryptowatch
	case TypeDefiPulse, TypeTVL:
		return TypeDefiPulse
	default:
		return FeedType(strings.ToLower(strings.TrimSpace(string(t))))
	}
}

// IsComposite reports whether the type wraps child feeds.
func (t FeedType) IsComposite() bool {
	switch t.Canonical() {
	case TypeMedianizer, TypeBasketSpread, TypeExpression, TypeFallback:
		return true
	}
	return false
}

// Spread modes for basketspread feeds.
const (
	SpreadRatio      = "ratio"
	SpreadDifference = "difference"
)

// After-last lookup policies for primitive feeds.
const (
	AfterLastNotFound = "notfound"
	AfterLastCurrent  = "current"
)

// FeedConfig is the declarative record for one feed node. A node either sets
// Ref to reuse another named entry of the same config map, or sets Type.
type FeedConfig struct {
	Type FeedType `yaml:"type,omitempty" json:"type,omitempty"`
	Ref  string   `yaml:"ref,omitempty" json:"ref,omitempty"`

	PriceFeedDecimals     *int   `yaml:"priceFeedDecimals,omitempty" json:"priceFeedDecimals,omitempty"`
	MinTimeBetweenUpdates *int64 `yaml:"minTimeBetweenUpdates,omitempty" json:"minTimeBetweenUpdates,omitempty"`
	Lookback              *int64 `yaml:"lookback,omitempty" json:"lookback,omitempty"`
	TwapLength            int64  `yaml:"twapLength,omitempty" json:"twapLength,omitempty"`
	InvertPrice           bool   `yaml:"invertPrice,omitempty" json:"invertPrice,omitempty"`
	ComputeMean           bool   `yaml:"computeMean,omitempty" json:"computeMean,omitempty"`

	// Exchange OHLC.
	Exchange                  string `yaml:"exchange,omitempty" json:"exchange,omitempty"`
	Pair                      string `yaml:"pair,omitempty" json:"pair,omitempty"`
	APIKey                    string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	BaseURL                   string `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`
	OHLCPeriod                int64  `yaml:"ohlcPeriod,omitempty" json:"ohlcPeriod,omitempty"`
	HistoricalTimestampBuffer int64  `yaml:"historicalTimestampBuffer,omitempty" json:"historicalTimestampBuffer,omitempty"`
	AfterLastPolicy           string `yaml:"afterLastPolicy,omitempty" json:"afterLastPolicy,omitempty"`
	FetchTimeout              int64  `yaml:"fetchTimeout,omitempty" json:"fetchTimeout,omitempty"`

	// DeFi TVL.
	Precision *int `yaml:"precision,omitempty" json:"precision,omitempty"`

	// Quote.
	URL      string            `yaml:"url,omitempty" json:"url,omitempty"`
	JSONPath string            `yaml:"jsonPath,omitempty" json:"jsonPath,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// On-chain.
	Chain          string `yaml:"chain,omitempty" json:"chain,omitempty"`
	Address        string `yaml:"address,omitempty" json:"address,omitempty"`
	Method         string `yaml:"method,omitempty" json:"method,omitempty"`
	Token0Decimals int    `yaml:"token0Decimals,omitempty" json:"token0Decimals,omitempty"`
	Token1Decimals int    `yaml:"token1Decimals,omitempty" json:"token1Decimals,omitempty"`
	VaultDecimals  int    `yaml:"vaultDecimals,omitempty" json:"vaultDecimals,omitempty"`

	// Composites.
	PriceFeeds             []FeedConfig          `yaml:"priceFeeds,omitempty" json:"priceFeeds,omitempty"`
	ExperimentalPriceFeeds []FeedConfig          `yaml:"experimentalPriceFeeds,omitempty" json:"experimentalPriceFeeds,omitempty"`
	BaselinePriceFeeds     []FeedConfig          `yaml:"baselinePriceFeeds,omitempty" json:"baselinePriceFeeds,omitempty"`
	DenominatorPriceFeed   *FeedConfig           `yaml:"denominatorPriceFeed,omitempty" json:"denominatorPriceFeed,omitempty"`
	SpreadMode             string                `yaml:"spreadMode,omitempty" json:"spreadMode,omitempty"`
	OrderedFeeds           []FeedConfig          `yaml:"orderedFeeds,omitempty" json:"orderedFeeds,omitempty"`
	Expression             string                `yaml:"expression,omitempty" json:"expression,omitempty"`
	CustomFeeds            map[string]FeedConfig `yaml:"customFeeds,omitempty" json:"customFeeds,omitempty"`
}

// Int and Int64 return pointers for optional config fields.
func Int(v int) *int       { return &v }
func Int64(v int64) *int64 { return &v }
