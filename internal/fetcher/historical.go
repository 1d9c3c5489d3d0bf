package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	cTokenABIJSON = `[{"inputs":[],"name":"supplyRatePerBlock","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	supplyRateMethod = "supplyRatePerBlock"
)

var cTokenABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(cTokenABIJSON))
	if err != nil {
		panic("failed to parse cToken ABI: " + err.Error())
	}
	cTokenABI = parsed
}

// ErrFetch indicates at least one historical contract read failed. The batch
// is all-or-nothing: no partial result survives a failed read.
var ErrFetch = errors.New("fetcher: historical rate fetch failed")

// HistoricalOptions parameterise the on-chain fetcher.
type HistoricalOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// Historical reads supplyRatePerBlock() at pinned historical blocks via
// Ethereum RPC.
type Historical struct {
	opts      HistoricalOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewHistorical builds a new historical rate fetcher.
func NewHistorical(opts HistoricalOptions, logger zerolog.Logger) *Historical {
	return &Historical{opts: opts, logger: logger.With().Str("component", "historical_fetcher").Logger()}
}

// RatesAt issues one read-only supplyRatePerBlock() call per entry in reads,
// each pinned to its block number, all in parallel. The result maps each
// read's Index to the rate as a base-10 string. Any single failed call fails
// the whole batch with ErrFetch.
func (h *Historical) RatesAt(ctx context.Context, assetAddress string, reads []BlockRead) (map[int]string, error) {
	if h.opts.RPCURL == "" {
		return nil, fmt.Errorf("%w: ethereum rpc url not configured", ErrFetch)
	}
	if assetAddress == "" {
		return nil, fmt.Errorf("%w: asset address not configured", ErrFetch)
	}
	if len(reads) == 0 {
		return map[int]string{}, nil
	}

	timeout := h.opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := h.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rpc: %w", ErrFetch, err)
	}

	addr := common.HexToAddress(assetAddress)
	payload, err := cTokenABI.Pack(supplyRateMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: pack call data: %w", ErrFetch, err)
	}

	results := make([]string, len(reads))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, read := range reads {
		group.Go(func() error {
			rate, callErr := h.rateAt(groupCtx, client, addr, payload, read.BlockNumber)
			if callErr != nil {
				return fmt.Errorf("%w: block %d: %w", ErrFetch, read.BlockNumber, callErr)
			}
			results[i] = rate
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	rates := make(map[int]string, len(reads))
	for i, read := range reads {
		rates[read.Index] = results[i]
	}
	return rates, nil
}

func (h *Historical) rateAt(ctx context.Context, client *ethclient.Client, addr common.Address, payload []byte, blockNumber int64) (string, error) {
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, big.NewInt(blockNumber))
	if err != nil {
		return "", err
	}

	outputs, err := cTokenABI.Unpack(supplyRateMethod, res)
	if err != nil {
		return "", err
	}
	if len(outputs) != 1 {
		return "", errors.New("unexpected supplyRatePerBlock response")
	}

	rate, ok := outputs[0].(*big.Int)
	if !ok {
		return "", errors.New("failed to decode supplyRatePerBlock output")
	}

	return rate.String(), nil
}

func (h *Historical) getClient(ctx context.Context) (*ethclient.Client, error) {
	h.clientMux.Lock()
	defer h.clientMux.Unlock()

	if h.client != nil {
		return h.client, nil
	}

	client, err := ethclient.DialContext(ctx, h.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	h.client = client
	return client, nil
}

var _ HistoricalRateFetcher = (*Historical)(nil)
