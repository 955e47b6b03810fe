package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractCaller is the read side of an EVM JSON-RPC client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EVMReader calls parameterless view methods returning uint words.
type EVMReader struct {
	caller ContractCaller
}

// NewEVMReader wraps an existing caller.
func NewEVMReader(caller ContractCaller) *EVMReader {
	return &EVMReader{caller: caller}
}

// DialEVM connects to an EVM JSON-RPC endpoint.
func DialEVM(ctx context.Context, rpcURL string) (*EVMReader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return NewEVMReader(client), client, nil
}

// Selector returns the 4-byte selector of a parameterless method. A full
// signature such as "getReserves()" is accepted too.
func Selector(method string) []byte {
	sig := method
	if !strings.Contains(sig, "(") {
		sig += "()"
	}
	return crypto.Keccak256([]byte(sig))[:4]
}

// CallUint calls method on contract at the latest block and decodes every
// 32-byte word of the result as an unsigned integer.
func (r *EVMReader) CallUint(ctx context.Context, contract, method string) ([]*big.Int, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid evm address %q", contract)
	}
	to := common.HexToAddress(contract)
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: Selector(method)}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 || len(out)%32 != 0 {
		return nil, fmt.Errorf("call %s: unexpected result length %d", method, len(out))
	}
	words := make([]*big.Int, 0, len(out)/32)
	for i := 0; i < len(out); i += 32 {
		words = append(words, new(big.Int).SetBytes(out[i:i+32]))
	}
	return words, nil
}
