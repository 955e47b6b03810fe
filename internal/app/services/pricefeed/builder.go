package pricefeed

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/httputil"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// DefaultOHLCPeriod is the candle length, in seconds, of exchange feeds.
const DefaultOHLCPeriod = int64(60)

// Dependencies are the collaborators shared by every feed a Builder creates.
type Dependencies struct {
	Fetcher httputil.Fetcher
	Clock   Clock
	// Chains maps a config "chain" name to its reader.
	Chains map[string]ChainReader
	Logger *logger.Logger
}

// Builder instantiates feed trees from a configuration map. Entries reached
// through "ref" are built once and shared. A Builder is not safe for
// concurrent use.
type Builder struct {
	configs map[string]domain.FeedConfig
	deps    Dependencies
	log     *logger.Logger

	built     map[string]Feed
	resolving []string
}

// settings are inherited from parent to child nodes.
type settings struct {
	decimals int
	minTime  int64
	lookback int64
}

var rootSettings = settings{
	decimals: DefaultDecimals,
	minTime:  DefaultMinTimeBetweenUpdates,
	lookback: DefaultLookback,
}

// NewBuilder copies configs; later changes to the map do not affect the builder.
func NewBuilder(configs map[string]domain.FeedConfig, deps Dependencies) *Builder {
	copied := make(map[string]domain.FeedConfig, len(configs))
	for k, v := range configs {
		copied[k] = v
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewDefault("pricefeed")
	}
	return &Builder{
		configs: copied,
		deps:    deps,
		log:     log,
		built:   make(map[string]Feed),
	}
}

// Names lists the configured feed names in sorted order.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.configs))
	for name := range b.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns the feed tree for a named entry. Errors wrap feederr.ErrConfig.
func (b *Builder) Build(name string) (Feed, error) {
	return b.resolve(name)
}

// BuildAll builds every named entry, failing if any entry is invalid.
func (b *Builder) BuildAll() (map[string]Feed, error) {
	out := make(map[string]Feed, len(b.configs))
	for _, name := range b.Names() {
		f, err := b.resolve(name)
		if err != nil {
			return nil, err
		}
		out[name] = f
	}
	return out, nil
}

func (b *Builder) resolve(name string) (Feed, error) {
	if f, ok := b.built[name]; ok {
		return f, nil
	}
	for _, r := range b.resolving {
		if r == name {
			cycle := append(append([]string{}, b.resolving...), name)
			return nil, feederr.Config("reference cycle %s", strings.Join(cycle, " -> "))
		}
	}
	cfg, ok := b.configs[name]
	if !ok {
		return nil, feederr.Config("unknown feed %q", name)
	}

	b.resolving = append(b.resolving, name)
	f, err := b.build(name, cfg, rootSettings)
	b.resolving = b.resolving[:len(b.resolving)-1]
	if err != nil {
		return nil, err
	}
	b.built[name] = f
	return f, nil
}

func (b *Builder) build(path string, cfg domain.FeedConfig, parent settings) (Feed, error) {
	if cfg.Ref != "" {
		if cfg.Type != "" {
			return nil, feederr.Config("%s: ref and type are mutually exclusive", path)
		}
		f, err := b.resolve(cfg.Ref)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return f, nil
	}

	s := parent
	if cfg.PriceFeedDecimals != nil {
		s.decimals = *cfg.PriceFeedDecimals
	}
	if cfg.MinTimeBetweenUpdates != nil {
		s.minTime = *cfg.MinTimeBetweenUpdates
	}
	if cfg.Lookback != nil {
		s.lookback = *cfg.Lookback
	}
	switch {
	case s.decimals <= 0 || s.decimals > 36:
		return nil, feederr.Config("%s: priceFeedDecimals %d out of range", path, s.decimals)
	case s.minTime < 0:
		return nil, feederr.Config("%s: minTimeBetweenUpdates must not be negative", path)
	case s.lookback <= 0:
		return nil, feederr.Config("%s: lookback must be positive", path)
	case cfg.TwapLength < 0:
		return nil, feederr.Config("%s: twapLength must not be negative", path)
	}

	typ := cfg.Type.Canonical()
	if typ == "" {
		return nil, feederr.Config("%s: type is required", path)
	}
	if !typ.IsComposite() {
		return b.buildPrimitive(path, typ, cfg, s)
	}

	var (
		f   Feed
		err error
	)
	switch typ {
	case domain.TypeMedianizer:
		f, err = b.buildMedianizer(path, cfg, s)
	case domain.TypeBasketSpread:
		f, err = b.buildBasketSpread(path, cfg, s)
	case domain.TypeExpression:
		f, err = b.buildExpression(path, cfg, s)
	case domain.TypeFallback:
		f, err = b.buildFallback(path, cfg, s)
	}
	if err != nil {
		if !feederr.IsConfig(err) {
			err = fmt.Errorf("%w: %w", feederr.ErrConfig, err)
		}
		return nil, err
	}
	if cfg.InvertPrice {
		f = NewInverter(f)
	}
	return f, nil
}

func (b *Builder) buildChildren(path, field string, cfgs []domain.FeedConfig, s settings) ([]Feed, error) {
	if len(cfgs) == 0 {
		return nil, feederr.Config("%s.%s: at least one feed is required", path, field)
	}
	out := make([]Feed, 0, len(cfgs))
	for i, c := range cfgs {
		f, err := b.build(fmt.Sprintf("%s.%s[%d]", path, field, i), c, s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (b *Builder) buildPrimitive(path string, typ domain.FeedType, cfg domain.FeedConfig, s settings) (Feed, error) {
	policy := LookupPolicy{Buffer: cfg.HistoricalTimestampBuffer, AfterLast: AfterLastPolicy(strings.ToLower(cfg.AfterLastPolicy))}
	switch policy.AfterLast {
	case "":
		policy.AfterLast = AfterLastNotFound
	case AfterLastNotFound, AfterLastCurrent:
	default:
		return nil, feederr.Config("%s: unknown afterLastPolicy %q", path, cfg.AfterLastPolicy)
	}
	if policy.Buffer < 0 {
		return nil, feederr.Config("%s: historicalTimestampBuffer must not be negative", path)
	}
	timeout := DefaultFetchTimeout
	if cfg.FetchTimeout > 0 {
		timeout = time.Duration(cfg.FetchTimeout) * time.Second
	}

	source, err := b.source(path, typ, cfg, s)
	if err != nil {
		return nil, err
	}
	return NewPrimitiveFeed(source, b.deps.Clock, PrimitiveOptions{
		Name:                  path,
		Decimals:              s.decimals,
		MinTimeBetweenUpdates: s.minTime,
		Lookback:              s.lookback,
		TwapLength:            cfg.TwapLength,
		InvertPrice:           cfg.InvertPrice,
		Policy:                policy,
		FetchTimeout:          timeout,
	}, b.log.Named(path)), nil
}

func (b *Builder) source(path string, typ domain.FeedType, cfg domain.FeedConfig, s settings) (Source, error) {
	needFetcher := func() error {
		if b.deps.Fetcher == nil {
			return feederr.Config("%s: %s feeds need a network fetcher", path, typ)
		}
		return nil
	}

	switch typ {
	case domain.TypeCryptowatch:
		if err := needFetcher(); err != nil {
			return nil, err
		}
		if cfg.Exchange == "" || cfg.Pair == "" {
			return nil, feederr.Config("%s: exchange and pair are required", path)
		}
		period := cfg.OHLCPeriod
		if period == 0 {
			period = DefaultOHLCPeriod
		}
		if period < 0 {
			return nil, feederr.Config("%s: ohlcPeriod must be positive", path)
		}
		return &OHLCSource{
			Fetcher:  b.deps.Fetcher,
			BaseURL:  cfg.BaseURL,
			Exchange: cfg.Exchange,
			Pair:     cfg.Pair,
			APIKey:   cfg.APIKey,
			Period:   period,
			Decimals: s.decimals,
			Headers:  cfg.Headers,
		}, nil

	case domain.TypeDefiPulse:
		if err := needFetcher(); err != nil {
			return nil, err
		}
		precision := s.decimals
		if cfg.Precision != nil {
			precision = *cfg.Precision
		}
		if precision < 0 || precision > s.decimals {
			return nil, feederr.Config("%s: precision %d must be between 0 and priceFeedDecimals %d", path, precision, s.decimals)
		}
		return &TVLSource{
			Fetcher:   b.deps.Fetcher,
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Precision: precision,
			Decimals:  s.decimals,
		}, nil

	case domain.TypeQuote:
		if err := needFetcher(); err != nil {
			return nil, err
		}
		if cfg.URL == "" || cfg.JSONPath == "" {
			return nil, feederr.Config("%s: url and jsonPath are required", path)
		}
		if _, err := jsonpath.New(cfg.JSONPath); err != nil {
			return nil, feederr.Config("%s: invalid jsonPath %q: %v", path, cfg.JSONPath, err)
		}
		return &QuoteSource{
			Fetcher:  b.deps.Fetcher,
			URL:      cfg.URL,
			JSONPath: cfg.JSONPath,
			Headers:  cfg.Headers,
			Decimals: s.decimals,
		}, nil

	case domain.TypeUniswap, domain.TypeVault:
		reader, ok := b.deps.Chains[cfg.Chain]
		if !ok || reader == nil {
			return nil, feederr.Config("%s: no reader for chain %q", path, cfg.Chain)
		}
		if cfg.Address == "" {
			return nil, feederr.Config("%s: address is required", path)
		}
		if typ == domain.TypeVault {
			return &VaultSource{
				Reader:        reader,
				Address:       cfg.Address,
				Method:        cfg.Method,
				VaultDecimals: cfg.VaultDecimals,
				Decimals:      s.decimals,
			}, nil
		}
		return &PoolSource{
			Reader:         reader,
			Address:        cfg.Address,
			Method:         cfg.Method,
			Token0Decimals: cfg.Token0Decimals,
			Token1Decimals: cfg.Token1Decimals,
			Decimals:       s.decimals,
		}, nil
	}
	return nil, feederr.Config("%s: unknown feed type %q", path, cfg.Type)
}

func (b *Builder) buildMedianizer(path string, cfg domain.FeedConfig, s settings) (Feed, error) {
	children, err := b.buildChildren(path, "priceFeeds", cfg.PriceFeeds, s)
	if err != nil {
		return nil, err
	}
	return NewMedianizer(path, children, cfg.ComputeMean, b.log.Named(path))
}

func (b *Builder) buildBasketSpread(path string, cfg domain.FeedConfig, s settings) (Feed, error) {
	exp, err := b.buildChildren(path, "experimentalPriceFeeds", cfg.ExperimentalPriceFeeds, s)
	if err != nil {
		return nil, err
	}
	base, err := b.buildChildren(path, "baselinePriceFeeds", cfg.BaselinePriceFeeds, s)
	if err != nil {
		return nil, err
	}
	var denom Feed
	if cfg.DenominatorPriceFeed != nil {
		denom, err = b.build(path+".denominatorPriceFeed", *cfg.DenominatorPriceFeed, s)
		if err != nil {
			return nil, err
		}
	}
	return NewBasketSpread(BasketSpreadOptions{
		Name:         path,
		Experimental: exp,
		Baseline:     base,
		Denominator:  denom,
		Mode:         strings.ToLower(cfg.SpreadMode),
		Decimals:     s.decimals,
	}, b.log.Named(path))
}

// buildExpression binds each formula variable to a customFeeds entry or,
// failing that, to the named top-level feed of the same name.
func (b *Builder) buildExpression(path string, cfg domain.FeedConfig, s settings) (Feed, error) {
	vars, err := expressionVariables(cfg.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.expression: %w", feederr.ErrConfig, path, err)
	}
	feeds := make(map[string]Feed, len(vars))
	for _, v := range vars {
		var f Feed
		if custom, ok := cfg.CustomFeeds[v]; ok {
			f, err = b.build(path+".customFeeds."+v, custom, s)
		} else if _, ok := b.configs[v]; ok {
			f, err = b.resolve(v)
			if err != nil {
				err = fmt.Errorf("%s.expression: %w", path, err)
			}
		} else {
			err = feederr.Config("%s.expression: unknown feed %q", path, v)
		}
		if err != nil {
			return nil, err
		}
		feeds[v] = f
	}
	return NewExpression(path, cfg.Expression, feeds, s.decimals, b.log.Named(path))
}

func (b *Builder) buildFallback(path string, cfg domain.FeedConfig, s settings) (Feed, error) {
	children, err := b.buildChildren(path, "orderedFeeds", cfg.OrderedFeeds, s)
	if err != nil {
		return nil, err
	}
	return NewFallback(path, children, b.log.Named(path))
}
