package pricefeed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
)

func exchange(pair string) domain.FeedConfig {
	return domain.FeedConfig{Type: domain.TypeCryptowatch, Exchange: "kraken", Pair: pair}
}

func quote(path string) domain.FeedConfig {
	return domain.FeedConfig{Type: domain.TypeQuote, URL: "https://q.test/" + path, JSONPath: "$.price"}
}

func testDeps() Dependencies {
	return Dependencies{
		Fetcher: &routeFetcher{routes: map[string]string{
			"/a": `{"price":"2"}`,
			"/b": `{"price":"4"}`,
			"/c": `{"price":"6"}`,
			"/d": `{"price":"8"}`,
		}},
		Clock:  newFakeClock(1000),
		Chains: map[string]ChainReader{"evm": &fakeChain{}},
		Logger: quietLogger(),
	}
}

func TestBuilder_Medianizer(t *testing.T) {
	b := NewBuilder(map[string]domain.FeedConfig{
		"X": {
			Type:              domain.TypeMedianizer,
			PriceFeedDecimals: domain.Int(8),
			PriceFeeds:        []domain.FeedConfig{quote("a"), quote("b"), quote("c")},
		},
	}, testDeps())

	f, err := b.Build("X")
	require.NoError(t, err)
	assert.Equal(t, 8, f.PriceFeedDecimals())
	assert.Equal(t, DefaultLookback, f.Lookback())

	require.NoError(t, f.Update(context.Background()))
	assert.Equal(t, "400000000", f.CurrentPrice().String())
}

func TestBuilder_RefsAreShared(t *testing.T) {
	b := NewBuilder(map[string]domain.FeedConfig{
		"BASE":  quote("a"),
		"M1":    {Type: domain.TypeMedianizer, PriceFeeds: []domain.FeedConfig{{Ref: "BASE"}, quote("b")}},
		"M2":    {Type: domain.TypeFallback, OrderedFeeds: []domain.FeedConfig{{Ref: "BASE"}}},
		"ALIAS": {Ref: "BASE"},
	}, testDeps())

	all, err := b.BuildAll()
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Same(t, all["BASE"], all["ALIAS"])

	m1 := all["M1"].(*Medianizer)
	fb := all["M2"].(*Fallback)
	assert.Same(t, all["BASE"], m1.children[0])
	assert.Same(t, all["BASE"], fb.children[0])
}

func TestBuilder_Cycle(t *testing.T) {
	b := NewBuilder(map[string]domain.FeedConfig{
		"A": {Type: domain.TypeMedianizer, PriceFeeds: []domain.FeedConfig{{Ref: "B"}}},
		"B": {Type: domain.TypeFallback, OrderedFeeds: []domain.FeedConfig{{Ref: "A"}}},
	}, testDeps())

	_, err := b.Build("A")
	require.Error(t, err)
	assert.True(t, feederr.IsConfig(err))
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestBuilder_Expression(t *testing.T) {
	b := NewBuilder(map[string]domain.FeedConfig{
		"A": quote("a"),
		"R": {
			Type:        domain.TypeExpression,
			Expression:  "A * C / 2",
			CustomFeeds: map[string]domain.FeedConfig{"C": quote("c")},
		},
	}, testDeps())

	f, err := b.Build("R")
	require.NoError(t, err)
	require.NoError(t, f.Update(context.Background()))
	assertPrice(t, "6", f.CurrentPrice())

	_, err = NewBuilder(map[string]domain.FeedConfig{
		"R": {Type: domain.TypeExpression, Expression: "A + 1"},
	}, testDeps()).Build("R")
	assert.True(t, feederr.IsConfig(err))
}

func TestBuilder_BasketSpreadAndInversion(t *testing.T) {
	b := NewBuilder(map[string]domain.FeedConfig{
		"S": {
			Type:                   domain.TypeBasketSpread,
			ExperimentalPriceFeeds: []domain.FeedConfig{quote("d")},
			BaselinePriceFeeds:     []domain.FeedConfig{quote("a")},
			DenominatorPriceFeed:   &domain.FeedConfig{Type: domain.TypeQuote, URL: "https://q.test/b", JSONPath: "$.price"},
			InvertPrice:            true,
		},
	}, testDeps())

	f, err := b.Build("S")
	require.NoError(t, err)
	_, ok := f.(*Inverter)
	assert.True(t, ok)
	require.NoError(t, f.Update(context.Background()))
	// (8 / 2) / 4 = 1, inverted.
	assertPrice(t, "1", f.CurrentPrice())
}

func TestBuilder_InheritedSettings(t *testing.T) {
	b := NewBuilder(map[string]domain.FeedConfig{
		"X": {
			Type:                  domain.TypeMedianizer,
			PriceFeedDecimals:     domain.Int(6),
			MinTimeBetweenUpdates: domain.Int64(5),
			Lookback:              domain.Int64(600),
			PriceFeeds: []domain.FeedConfig{
				quote("a"),
				{Type: domain.TypeQuote, URL: "https://q.test/b", JSONPath: "$.price", Lookback: domain.Int64(900)},
			},
		},
	}, testDeps())
	f, err := b.Build("X")
	require.NoError(t, err)

	m := f.(*Medianizer)
	first := m.children[0].(*PrimitiveFeed)
	assert.Equal(t, 6, first.PriceFeedDecimals())
	assert.Equal(t, int64(600), first.Lookback())
	assert.Equal(t, int64(5), first.opts.MinTimeBetweenUpdates)
	assert.Equal(t, "X.priceFeeds[0]", first.Name())
	assert.Equal(t, int64(900), m.Lookback())
}

func TestBuilder_Errors(t *testing.T) {
	cases := []struct {
		name string
		cfg  domain.FeedConfig
		want string
	}{
		{"missing type", domain.FeedConfig{}, "type is required"},
		{"unknown type", domain.FeedConfig{Type: "oracle"}, "unknown feed type"},
		{"ref and type", domain.FeedConfig{Type: domain.TypeQuote, Ref: "Y"}, "mutually exclusive"},
		{"unknown ref", domain.FeedConfig{Ref: "Y"}, "unknown feed"},
		{"decimals", domain.FeedConfig{Type: domain.TypeQuote, PriceFeedDecimals: domain.Int(0)}, "out of range"},
		{"negative twap", domain.FeedConfig{Type: domain.TypeQuote, TwapLength: -1}, "twapLength"},
		{"exchange fields", domain.FeedConfig{Type: domain.TypeExchange}, "exchange and pair"},
		{"bad jsonpath", domain.FeedConfig{Type: domain.TypeQuote, URL: "u", JSONPath: "$["}, "invalid jsonPath"},
		{"tvl precision", domain.FeedConfig{Type: domain.TypeTVL, PriceFeedDecimals: domain.Int(6), Precision: domain.Int(8)}, "precision"},
		{"unknown chain", domain.FeedConfig{Type: domain.TypeVault, Chain: "solana", Address: "0x1"}, "no reader"},
		{"after last policy", domain.FeedConfig{Type: domain.TypeQuote, URL: "u", JSONPath: "$.p", AfterLastPolicy: "guess"}, "afterLastPolicy"},
		{"empty medianizer", domain.FeedConfig{Type: domain.TypeMedianizer}, "X.priceFeeds"},
		{
			"nested child path",
			domain.FeedConfig{Type: domain.TypeMedianizer, PriceFeeds: []domain.FeedConfig{quote("a"), {Type: domain.TypeExchange}}},
			"X.priceFeeds[1]",
		},
		{
			"mixed decimals",
			domain.FeedConfig{Type: domain.TypeMedianizer, PriceFeeds: []domain.FeedConfig{
				quote("a"),
				{Type: domain.TypeQuote, URL: "u", JSONPath: "$.p", PriceFeedDecimals: domain.Int(6)},
			}},
			"decimals",
		},
		{"spread mode", domain.FeedConfig{
			Type:                   domain.TypeBasketSpread,
			ExperimentalPriceFeeds: []domain.FeedConfig{quote("a")},
			BaselinePriceFeeds:     []domain.FeedConfig{quote("b")},
			SpreadMode:             "sum",
		}, "spread mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBuilder(map[string]domain.FeedConfig{"X": tc.cfg}, testDeps()).Build("X")
			require.Error(t, err)
			assert.True(t, feederr.IsConfig(err), "not a config error: %v", err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestBuilder_NeedsFetcher(t *testing.T) {
	deps := testDeps()
	deps.Fetcher = nil
	_, err := NewBuilder(map[string]domain.FeedConfig{"X": quote("a")}, deps).Build("X")
	assert.True(t, feederr.IsConfig(err))
}

func TestBuilder_CopiesConfig(t *testing.T) {
	configs := map[string]domain.FeedConfig{"X": quote("a")}
	b := NewBuilder(configs, testDeps())
	configs["Y"] = quote("b")
	delete(configs, "X")

	assert.Equal(t, []string{"X"}, b.Names())
	_, err := b.Build("X")
	assert.NoError(t, err)
}
