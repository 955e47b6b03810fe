package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
)

// ChainReader performs read-only contract calls returning integer results.
type ChainReader interface {
	CallUint(ctx context.Context, contract, method string) ([]*big.Int, error)
}

// Default contract methods per on-chain source.
const (
	MethodGetReserves   = "getReserves"
	MethodPricePerShare = "pricePerShare"
)

// chainError keeps FetchErrors intact and classifies anything else.
func chainError(contract, method string, err error) error {
	var fe *feederr.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return feederr.NewFetchError(feederr.FetchNetwork, contract+"."+method, err)
}

// PoolSource prices a constant-product pool from its reserves as token1 per
// token0. It keeps its own history from successive samples.
type PoolSource struct {
	Reader         ChainReader
	Address        string
	Method         string
	Token0Decimals int
	Token1Decimals int
	Decimals       int
}

var _ Source = (*PoolSource)(nil)

func (s *PoolSource) Sample(ctx context.Context, req SampleRequest) (Sample, error) {
	method := s.Method
	if method == "" {
		method = MethodGetReserves
	}
	out, err := s.Reader.CallUint(ctx, s.Address, method)
	if err != nil {
		return Sample{}, chainError(s.Address, method, err)
	}
	if len(out) < 2 || out[0] == nil || out[1] == nil {
		return Sample{}, feederr.MissingField(s.Address, method)
	}
	reserve0, reserve1 := out[0], out[1]
	if reserve0.Sign() <= 0 {
		return Sample{}, feederr.NewFetchError(feederr.FetchMissingField, s.Address, fmt.Errorf("pool has no %s reserve", "token0"))
	}
	num := new(big.Int).Mul(reserve1, fixed.Scale(s.Token0Decimals))
	num.Mul(num, fixed.Scale(s.Decimals))
	den := new(big.Int).Mul(reserve0, fixed.Scale(s.Token1Decimals))
	current := num.Quo(num, den)
	return Sample{Current: current, Periods: accumulate(req, current)}, nil
}

// VaultSource reports a vault's share price. It keeps its own history from
// successive samples.
type VaultSource struct {
	Reader        ChainReader
	Address       string
	Method        string
	VaultDecimals int
	Decimals      int
}

var _ Source = (*VaultSource)(nil)

func (s *VaultSource) Sample(ctx context.Context, req SampleRequest) (Sample, error) {
	method := s.Method
	if method == "" {
		method = MethodPricePerShare
	}
	out, err := s.Reader.CallUint(ctx, s.Address, method)
	if err != nil {
		return Sample{}, chainError(s.Address, method, err)
	}
	if len(out) == 0 || out[0] == nil {
		return Sample{}, feederr.MissingField(s.Address, method)
	}
	current := fixed.ConvertDecimals(out[0], s.VaultDecimals, s.Decimals)
	return Sample{Current: current, Periods: accumulate(req, current)}, nil
}
