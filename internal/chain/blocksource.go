// Package chain provides the block height that paces epochs and tranche schedules.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/ethereum/go-ethereum/ethclient"
)

var ErrNegativeHeight = errors.New("node reported a negative block height")

// BlockSource reports the current block number.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ManualBlockSource is advanced explicitly. Used by tests and the local simulation mode.
type ManualBlockSource struct {
	height atomic.Uint64
}

func NewManualBlockSource(start uint64) *ManualBlockSource {
	m := &ManualBlockSource{}
	m.height.Store(start)
	return m
}

func (m *ManualBlockSource) BlockNumber(context.Context) (uint64, error) {
	return m.height.Load(), nil
}

// Set moves the height to b.
func (m *ManualBlockSource) Set(b uint64) {
	m.height.Store(b)
}

// Advance moves the height forward by n blocks and returns the new height.
func (m *ManualBlockSource) Advance(n uint64) uint64 {
	return m.height.Add(n)
}

// EVMBlockSource reads the head block number from an EVM JSON-RPC endpoint.
type EVMBlockSource struct {
	client *ethclient.Client
}

func DialEVM(ctx context.Context, rpcURL string) (*EVMBlockSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial EVM RPC %s: %w", rpcURL, err)
	}
	return &EVMBlockSource{client: client}, nil
}

func (s *EVMBlockSource) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch EVM block number: %w", err)
	}
	return n, nil
}

// Client exposes the underlying client so pool readers can share the connection.
func (s *EVMBlockSource) Client() *ethclient.Client {
	return s.client
}

func (s *EVMBlockSource) Close() {
	s.client.Close()
}

// CometBlockSource reads the latest height from a CometBFT RPC endpoint.
type CometBlockSource struct {
	client *rpchttp.HTTP
}

func DialComet(rpcURL string) (*CometBlockSource, error) {
	client, err := rpchttp.New(rpcURL, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create CometBFT RPC client for %s: %w", rpcURL, err)
	}
	return &CometBlockSource{client: client}, nil
}

func (s *CometBlockSource) BlockNumber(ctx context.Context) (uint64, error) {
	status, err := s.client.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch CometBFT status: %w", err)
	}
	height := status.SyncInfo.LatestBlockHeight
	if height < 0 {
		return 0, ErrNegativeHeight
	}
	return uint64(height), nil
}
