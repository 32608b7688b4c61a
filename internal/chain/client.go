package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"eventscope/internal/model"
)

// Client wraps go-ethereum RPC and exposes the three reads the pipeline
// needs: latest height, log ranges, and block timestamps.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	addresses []common.Address

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient dials the RPC endpoint. The optional address list narrows log
// queries to the given contracts; empty means all contracts.
func NewClient(ctx context.Context, rpcURL string, addresses []common.Address) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		addresses: addresses,
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// LatestBlockNumber returns the current chain height.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockTimestamp returns the block's unix timestamp, using an in-memory
// cache so one block's logs trigger at most one header fetch.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// LogsInRange fetches every log in the inclusive block range and normalizes
// it into the record shape the pipeline works with, preserving node return
// order.
func (c *Client) LogsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.RawLogRecord, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: c.addresses,
	}
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	records := make([]model.RawLogRecord, 0, len(logs))
	for _, log := range logs {
		records = append(records, toRawLogRecord(log))
	}
	return records, nil
}

func toRawLogRecord(log types.Log) model.RawLogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.RawLogRecord{
		Address:     log.Address.Hex(),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		Data:        hexutil.Encode(log.Data),
		Topics:      topics,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		TxIndex:     uint64(log.TxIndex),
		Removed:     log.Removed,
	}
}
