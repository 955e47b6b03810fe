package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	gotTo   common.Address
	gotData []byte
	out     []byte
	err     error
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.gotTo = *call.To
	f.gotData = call.Data
	return f.out, f.err
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func TestSelector(t *testing.T) {
	assert.Equal(t, "0902f1ac", hex.EncodeToString(Selector("getReserves")))
	assert.Equal(t, "99530b06", hex.EncodeToString(Selector("pricePerShare()")))
}

func TestEVMReader_CallUint(t *testing.T) {
	pool := "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"
	caller := &fakeCaller{out: append(append(word(5000), word(12000)...), word(1700000000)...)}
	reader := NewEVMReader(caller)

	out, err := reader.CallUint(context.Background(), pool, "getReserves")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, int64(5000), out[0].Int64())
	assert.Equal(t, int64(12000), out[1].Int64())
	assert.Equal(t, common.HexToAddress(pool), caller.gotTo)
	assert.Equal(t, Selector("getReserves"), caller.gotData)
}

func TestEVMReader_Errors(t *testing.T) {
	reader := NewEVMReader(&fakeCaller{err: errors.New("execution reverted")})
	_, err := reader.CallUint(context.Background(), "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc", "getReserves")
	assert.ErrorContains(t, err, "execution reverted")

	_, err = reader.CallUint(context.Background(), "not-an-address", "getReserves")
	assert.Error(t, err)

	reader = NewEVMReader(&fakeCaller{out: []byte{1, 2, 3}})
	_, err = reader.CallUint(context.Background(), "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc", "getReserves")
	assert.Error(t, err)
}
