package pricefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/feederr"
)

func lookupFixture() []domain.PricePeriod {
	return []domain.PricePeriod{
		period(100, 160, "1.0", "1.1"),
		period(160, 220, "1.1", "1.2"),
		period(300, 360, "1.3", "1.4"),
	}
}

func TestLookup(t *testing.T) {
	periods := lookupFixture()
	cases := []struct {
		name   string
		t      int64
		buffer int64
		want   string
	}{
		{"first open", 100, 0, "1.0"},
		{"before first within buffer", 90, 20, "1.0"},
		{"inside period", 130, 0, "1.1"},
		{"shared boundary uses earlier period", 160, 0, "1.1"},
		{"right edge is closed", 220, 0, "1.2"},
		{"gap uses previous close", 250, 40, "1.2"},
		{"gap uses next open", 280, 30, "1.3"},
		{"after last within buffer", 370, 20, "1.4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Lookup(periods, tc.t, tc.buffer)
			require.NoError(t, err)
			assertPrice(t, tc.want, got)
		})
	}
}

func TestLookup_NotFound(t *testing.T) {
	periods := lookupFixture()
	cases := []struct {
		name    string
		periods []domain.PricePeriod
		t       int64
		buffer  int64
	}{
		{"no periods", nil, 100, 10},
		{"before first", periods, 50, 0},
		{"before first past buffer", periods, 50, 40},
		{"gap without buffer", periods, 250, 0},
		{"gap past buffer", periods, 260, 10},
		{"after last", periods, 370, 0},
		{"after last past buffer", periods, 400, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Lookup(tc.periods, tc.t, tc.buffer)
			assert.True(t, feederr.IsNotFound(err), "got %v", err)
		})
	}
}

func TestLookup_LatestBeforeWins(t *testing.T) {
	periods := []domain.PricePeriod{
		period(100, 200, "1", "2"),
		period(150, 210, "3", "4"),
		period(280, 340, "5", "6"),
	}
	got, err := Lookup(periods, 230, 30)
	require.NoError(t, err)
	assertPrice(t, "4", got)

	// Both a before and an after candidate qualify; the before side wins.
	got, err = Lookup(periods, 250, 60)
	require.NoError(t, err)
	assertPrice(t, "4", got)
}

func TestLookup_DoesNotAlias(t *testing.T) {
	periods := lookupFixture()
	got, err := Lookup(periods, 130, 0)
	require.NoError(t, err)
	got.SetInt64(0)
	assertPrice(t, "1.1", periods[0].ClosePrice)
}

func TestTWAP_Fixture(t *testing.T) {
	periods := []domain.PricePeriod{
		period(852, 912, "1.0", "1.1"),
		period(912, 972, "1.1", "1.2"),
		period(972, 1000, "1.2", "1.3"),
	}
	got, err := TWAP(periods, 1000, 120, 0)
	require.NoError(t, err)
	assert.Equal(t, "1196666666666666666", got.String())
}

func TestTWAP_SinglePeriodIsLinear(t *testing.T) {
	periods := []domain.PricePeriod{period(0, 1000, "1", "2.5")}
	for _, length := range []int64{1, 10, 100, 500} {
		got, err := TWAP(periods, 500, length, 0)
		require.NoError(t, err)
		assertPrice(t, "2.5", got, "length %d", length)
	}
}

func TestTWAP_GapsAreExcluded(t *testing.T) {
	periods := []domain.PricePeriod{
		period(0, 100, "1", "1"),
		period(200, 300, "3", "3"),
	}
	got, err := TWAP(periods, 250, 200, 0)
	require.NoError(t, err)
	assertPrice(t, "2", got)
}

func TestTWAP_NoOverlap(t *testing.T) {
	periods := []domain.PricePeriod{period(100, 200, "1", "1")}
	_, err := TWAP(periods, 90, 50, 0)
	assert.True(t, feederr.IsNotFound(err))

	_, err = TWAP(periods, 400, 100, 0)
	assert.True(t, feederr.IsNotFound(err))
}

func TestTWAP_ZeroLengthFallsBackToLookup(t *testing.T) {
	got, err := TWAP(lookupFixture(), 130, 0, 0)
	require.NoError(t, err)
	assertPrice(t, "1.1", got)

	// The fallback honours the lookup buffer.
	_, err = TWAP(lookupFixture(), 250, 0, 0)
	assert.True(t, feederr.IsNotFound(err))
	got, err = TWAP(lookupFixture(), 250, 0, 40)
	require.NoError(t, err)
	assertPrice(t, "1.2", got)
}

func TestLookup_UnpricedPeriod(t *testing.T) {
	periods := []domain.PricePeriod{
		{OpenTime: 100, CloseTime: 160},
		period(160, 220, "2", "2"),
	}
	for _, ts := range []int64{100, 130} {
		got, err := Lookup(periods, ts, 0)
		assert.Nil(t, got)
		assert.True(t, feederr.IsNotFound(err), "t=%d: %v", ts, err)
	}
	_, err := Lookup(periods, 90, 20)
	assert.True(t, feederr.IsNotFound(err))

	got, err := Lookup(periods, 200, 0)
	require.NoError(t, err)
	assertPrice(t, "2", got)
}

func TestParseAncillary(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    int64
		has     bool
		wantErr bool
	}{
		{name: "empty"},
		{name: "plain", raw: "twapLength:3600", want: 3600, has: true},
		{name: "spaces and unknown keys", raw: " q: ETH , twapLength : 60 ", want: 60, has: true},
		{name: "hex", raw: "0x" + "747761704c656e6774683a313230", want: 120, has: true},
		{name: "zero disables twap", raw: "twapLength:0", want: 0, has: true},
		{name: "missing separator", raw: "twapLength", wantErr: true},
		{name: "missing value", raw: "twapLength:", wantErr: true},
		{name: "not a number", raw: "twapLength:abc", wantErr: true},
		{name: "negative", raw: "twapLength:-5", wantErr: true},
		{name: "bad hex", raw: "0xzz", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseAncillary([]byte(tc.raw))
			if tc.wantErr {
				assert.True(t, feederr.IsParse(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.twapLength)
			assert.Equal(t, tc.has, got.hasTwapLength)
		})
	}
}
