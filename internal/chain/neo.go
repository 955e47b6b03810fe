// Package chain provides read-only contract callers for on-chain price sources.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/feed_layer/internal/httputil"
)

const maxRPCResponseBytes = 4 << 20

// NeoClient calls read-only methods of Neo N3 contracts over JSON-RPC.
type NeoClient struct {
	rpcURL     string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NeoConfig holds client configuration.
type NeoConfig struct {
	RPCURL  string
	Timeout time.Duration
}

// NewNeoClient creates a Neo N3 client.
func NewNeoClient(cfg NeoConfig) (*NeoClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &NeoClient{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StackItem is one VM stack entry of an invocation result.
type StackItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// InvokeResult is the result of invokefunction.
type InvokeResult struct {
	State     string      `json:"state"`
	Exception string      `json:"exception"`
	Stack     []StackItem `json:"stack"`
}

// Call makes an RPC call to the Neo N3 node.
func (c *NeoClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc status %d", resp.StatusCode)
	}
	respBody, err := httputil.ReadAllStrict(resp.Body, maxRPCResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// InvokeFunction runs a contract method without parameters in read-only mode.
func (c *NeoClient) InvokeFunction(ctx context.Context, contract, method string) (*InvokeResult, error) {
	hash, err := ParseNeoScriptHash(contract)
	if err != nil {
		return nil, err
	}
	result, err := c.Call(ctx, "invokefunction", []interface{}{"0x" + hash.StringLE(), method, []interface{}{}})
	if err != nil {
		return nil, err
	}
	var out InvokeResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode invoke result: %w", err)
	}
	if out.State != "HALT" {
		return nil, fmt.Errorf("%s faulted: %s", method, out.Exception)
	}
	return &out, nil
}

// CallUint invokes method and returns its integer results. Array results are
// flattened one level, as for getReserves.
func (c *NeoClient) CallUint(ctx context.Context, contract, method string) ([]*big.Int, error) {
	res, err := c.InvokeFunction(ctx, contract, method)
	if err != nil {
		return nil, err
	}
	var out []*big.Int
	for _, item := range res.Stack {
		values, err := stackIntegers(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		out = append(out, values...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no integers", method)
	}
	return out, nil
}

func stackIntegers(item StackItem) ([]*big.Int, error) {
	switch item.Type {
	case "Integer":
		var text string
		if err := json.Unmarshal(item.Value, &text); err != nil {
			return nil, fmt.Errorf("decode integer: %w", err)
		}
		v, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", text)
		}
		return []*big.Int{v}, nil
	case "Array", "Struct":
		var items []StackItem
		if err := json.Unmarshal(item.Value, &items); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		out := make([]*big.Int, 0, len(items))
		for _, inner := range items {
			if inner.Type != "Integer" {
				return nil, fmt.Errorf("unsupported nested stack item %s", inner.Type)
			}
			v, err := stackIntegers(inner)
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported stack item %s", item.Type)
	}
}

// ParseNeoScriptHash parses a 0x-prefixed contract script hash.
func ParseNeoScriptHash(s string) (util.Uint160, error) {
	h, err := util.Uint160DecodeStringLE(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid neo script hash %q: %w", s, err)
	}
	return h, nil
}
