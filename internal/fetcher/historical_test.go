package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

const testAsset = "0x4ddc2d193948926d02f9b1fe9e1daa0718270ed5"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer fakes an Ethereum JSON-RPC node for eth_call. rateFor maps a
// requested block number to the returned rate; a missing entry produces a
// node error for that block.
func newRPCServer(t *testing.T, rateFor map[int64]*big.Int, seenBlocks *[]int64) *httptest.Server {
	t.Helper()

	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "eth_call" {
			t.Errorf("unexpected rpc method %q", req.Method)
			return
		}
		if len(req.Params) != 2 {
			t.Errorf("eth_call should carry a call object and a block tag, got %d params", len(req.Params))
			return
		}

		var blockTag string
		if err := json.Unmarshal(req.Params[1], &blockTag); err != nil {
			t.Errorf("decode block tag: %v", err)
			return
		}
		block, err := strconv.ParseInt(blockTag, 0, 64)
		if err != nil {
			t.Errorf("block tag %q is not hex", blockTag)
			return
		}

		mu.Lock()
		if seenBlocks != nil {
			*seenBlocks = append(*seenBlocks, block)
		}
		rate, ok := rateFor[block]
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"missing trie node"}}`, req.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x%064x"}`, req.ID, rate)
	}))
}

func TestRatesAtMissingConfig(t *testing.T) {
	h := NewHistorical(HistoricalOptions{}, noopLogger())
	if _, err := h.RatesAt(context.Background(), testAsset, []BlockRead{{Index: 0, BlockNumber: 1}}); !errors.Is(err, ErrFetch) {
		t.Fatalf("missing rpc url should fail with ErrFetch, got %v", err)
	}

	h = NewHistorical(HistoricalOptions{RPCURL: "http://localhost:1"}, noopLogger())
	if _, err := h.RatesAt(context.Background(), "", []BlockRead{{Index: 0, BlockNumber: 1}}); !errors.Is(err, ErrFetch) {
		t.Fatalf("missing asset should fail with ErrFetch, got %v", err)
	}
}

func TestRatesAtEmptyBatch(t *testing.T) {
	h := NewHistorical(HistoricalOptions{RPCURL: "http://localhost:1"}, noopLogger())
	rates, err := h.RatesAt(context.Background(), testAsset, nil)
	if err != nil {
		t.Fatalf("empty batch should not dial: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("empty batch should yield empty result, got %v", rates)
	}
}

func TestRatesAtParallelReads(t *testing.T) {
	rateFor := map[int64]*big.Int{
		1000000: big.NewInt(11000000000),
		1006400: big.NewInt(12000000000),
		1012800: big.NewInt(13000000000),
	}
	var seen []int64
	srv := newRPCServer(t, rateFor, &seen)
	defer srv.Close()

	h := NewHistorical(HistoricalOptions{RPCURL: srv.URL, Timeout: 5 * time.Second}, noopLogger())
	reads := []BlockRead{
		{Index: 4, BlockNumber: 1000000},
		{Index: 7, BlockNumber: 1006400},
		{Index: 9, BlockNumber: 1012800},
	}

	rates, err := h.RatesAt(context.Background(), testAsset, reads)
	if err != nil {
		t.Fatalf("batch should succeed: %v", err)
	}
	if len(rates) != 3 {
		t.Fatalf("expected 3 results, got %d", len(rates))
	}
	if rates[4] != "11000000000" || rates[7] != "12000000000" || rates[9] != "13000000000" {
		t.Fatalf("results not associated with their indexes: %#v", rates)
	}

	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	if len(seen) != 3 || seen[0] != 1000000 || seen[2] != 1012800 {
		t.Fatalf("unexpected historical blocks requested: %v", seen)
	}
}

func TestRatesAtAllOrNothing(t *testing.T) {
	// Only one of the two requested blocks has state; the whole batch
	// must fail, no partial result.
	rateFor := map[int64]*big.Int{
		1000000: big.NewInt(11000000000),
	}
	srv := newRPCServer(t, rateFor, nil)
	defer srv.Close()

	h := NewHistorical(HistoricalOptions{RPCURL: srv.URL, Timeout: 5 * time.Second}, noopLogger())
	reads := []BlockRead{
		{Index: 0, BlockNumber: 1000000},
		{Index: 1, BlockNumber: 9999999},
	}

	rates, err := h.RatesAt(context.Background(), testAsset, reads)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("failed read should fail the batch with ErrFetch, got %v", err)
	}
	if rates != nil {
		t.Fatalf("failed batch must not return partial results, got %#v", rates)
	}
}
