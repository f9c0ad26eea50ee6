package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

// Compile-time check to ensure Client implements pkgrpc.ChainClient interface.
var _ pkgrpc.ChainClient = (*Client)(nil)

const (
	maxBlocksPerBatchCall = 100
	maxLogsPerPush        = 256
	pollRangeAttempts     = 3
)

// Options binds a client to the indexed contract.
type Options struct {
	Contract           common.Address
	Topic              common.Hash
	Confirmations      uint64
	SubscriptionBuffer int
}

// Client wraps the Ethereum RPC clients with the queries the indexer needs.
// HTTP serves all queries; WebSocket endpoints are dialed lazily for subscriptions.
// It implements the pkgrpc.ChainClient interface.
type Client struct {
	eth *ethclient.Client
	rpc *rpc.Client

	cfg     config.RPCConfig
	opts    Options
	batcher *Batcher
	log     *logger.Logger

	dialWS func(ctx context.Context, url string) (*ethclient.Client, error)

	mu    sync.Mutex
	ws    *ethclient.Client
	wsURL string
}

// NewClient creates a new RPC client connected to cfg.HTTPURL.
func NewClient(ctx context.Context, cfg config.RPCConfig, opts Options, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.HTTPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", redactEndpoint(cfg.HTTPURL), err)
	}

	return newClient(rpcClient, cfg, opts, log), nil
}

func newClient(rpcClient *rpc.Client, cfg config.RPCConfig, opts Options, log *logger.Logger) *Client {
	if opts.SubscriptionBuffer <= 0 {
		opts.SubscriptionBuffer = 64
	}

	return &Client{
		eth:     ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		cfg:     cfg,
		opts:    opts,
		batcher: NewBatcher(cfg.Batch),
		log:     log,
		dialWS:  ethclient.DialContext,
	}
}

// Close closes the RPC client connections.
func (c *Client) Close() {
	c.dropWS()
	c.eth.Close()
}

// BatchSize returns the current adaptive eth_getLogs window.
func (c *Client) BatchSize() uint64 {
	return c.batcher.Size()
}

// call runs fn with a per-attempt timeout under the retry policy and records metrics.
func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	return retryWithBackoff(ctx, &c.cfg.Retry, method, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout.Duration)
		defer cancel()

		RPCMethodInc(method)
		start := time.Now()
		err := fn(callCtx)
		RPCMethodDuration(method, time.Since(start))

		if err != nil {
			RPCMethodError(method, classifyError(err))
		}
		return err
	})
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id *big.Int
	err := c.call(ctx, "eth_chainId", func(ctx context.Context) (err error) {
		id, err = c.eth.ChainID(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// CurrentHeight returns the latest block number.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.call(ctx, "eth_blockNumber", func(ctx context.Context) (err error) {
		height, err = c.eth.BlockNumber(ctx)
		return err
	})
	return height, err
}

// SafeHead returns the latest block number minus the confirmation depth.
func (c *Client) SafeHead(ctx context.Context) (uint64, error) {
	height, err := c.CurrentHeight(ctx)
	if err != nil {
		return 0, err
	}
	if height < c.opts.Confirmations {
		return 0, nil
	}
	return height - c.opts.Confirmations, nil
}

func (c *Client) filter() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{c.opts.Contract},
		Topics:    [][]common.Hash{{c.opts.Topic}},
	}
}

// GetLogs retrieves the contract's event logs in [from, to].
func (c *Client) GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	if to < from {
		return nil, fmt.Errorf("invalid block range [%d, %d]", from, to)
	}

	limit := c.batcher.Size()
	if to-from+1 > limit {
		return nil, &pkgrpc.RangeTooLargeError{From: from, To: to, Limit: limit}
	}

	query := c.filter()
	query.FromBlock = new(big.Int).SetUint64(from)
	query.ToBlock = new(big.Int).SetUint64(to)

	var logs []types.Log
	err := c.call(ctx, "eth_getLogs", func(ctx context.Context) (err error) {
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		c.batcher.Failure()

		if tooMany, msg := IsTooManyResultsError(err); tooMany {
			if sFrom, sTo, ok := ParseSuggestedBlockRange(msg); ok {
				c.batcher.Limit(sTo - sFrom + 1)
			}
			c.log.Debugf("provider refused logs window [%d, %d], batch size now %d", from, to, c.batcher.Size())
			return nil, &pkgrpc.RangeTooLargeError{From: from, To: to, Limit: c.batcher.Size()}
		}

		return nil, fmt.Errorf("failed to get logs in [%d, %d]: %w", from, to, err)
	}

	c.batcher.Success()
	return logs, nil
}

// rpcBlock is decoded from eth_getBlockByNumber. Only the fields the indexer relies on are read,
// so blocks of chains with non-standard headers decode as well.
type rpcBlock struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
}

func (b *rpcBlock) info() *pkgrpc.BlockInfo {
	return &pkgrpc.BlockInfo{
		Number:     uint64(b.Number),
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  uint64(b.Timestamp),
	}
}

// GetBlock retrieves the header fields of a block.
func (c *Client) GetBlock(ctx context.Context, number uint64) (*pkgrpc.BlockInfo, error) {
	var block *rpcBlock
	err := c.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", toBlockNumArg(number), false)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	if block == nil {
		return nil, fmt.Errorf("block %d: %w", number, ethereum.NotFound)
	}
	return block.info(), nil
}

// GetBlocks retrieves several blocks in batch calls of at most 100 elements.
func (c *Client) GetBlocks(ctx context.Context, numbers []uint64) ([]*pkgrpc.BlockInfo, error) {
	all := make([]*pkgrpc.BlockInfo, 0, len(numbers))

	for i := 0; i < len(numbers); i += maxBlocksPerBatchCall {
		chunk := numbers[i:min(i+maxBlocksPerBatchCall, len(numbers))]

		results := make([]*rpcBlock, len(chunk))
		batch := make([]rpc.BatchElem, len(chunk))
		for j, number := range chunk {
			batch[j] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{toBlockNumArg(number), false}, // false = don't include transactions
				Result: &results[j],
			}
		}

		err := c.call(ctx, "eth_getBlockByNumber_batch", func(ctx context.Context) error {
			if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
				return err
			}
			for _, elem := range batch {
				if elem.Error != nil {
					return elem.Error
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get blocks: %w", err)
		}

		for j, block := range results {
			if block == nil {
				return nil, fmt.Errorf("block %d: %w", chunk[j], ethereum.NotFound)
			}
			all = append(all, block.info())
		}
	}

	return all, nil
}

// Poll returns the logs in [from, min(safeHead, from+BatchSize-1)] and the queried upper bound.
func (c *Client) Poll(ctx context.Context, from uint64) ([]types.Log, uint64, error) {
	safeHead, err := c.SafeHead(ctx)
	if err != nil {
		return nil, 0, err
	}
	if from > safeHead {
		return nil, from - 1, nil
	}

	for attempt := 1; ; attempt++ {
		to := min(safeHead, from+c.batcher.Size()-1)

		logs, err := c.GetLogs(ctx, from, to)
		if err == nil {
			return logs, to, nil
		}
		if !errors.Is(err, pkgrpc.ErrRangeTooLarge) || attempt >= pollRangeAttempts {
			return nil, 0, err
		}
	}
}

// Subscribe opens a log subscription on the primary WebSocket endpoint, or the fallback
// endpoint when the primary cannot be dialed.
func (c *Client) Subscribe(ctx context.Context) (*pkgrpc.Subscription, error) {
	ws, url, err := c.connectWS(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan types.Log, c.opts.SubscriptionBuffer)
	gethSub, err := ws.SubscribeFilterLogs(ctx, c.filter(), ch)
	if err != nil {
		c.dropWS()
		return nil, fmt.Errorf("%w: subscribe on %s: %w", pkgrpc.ErrSubscriptionUnavailable, redactEndpoint(url), err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := pkgrpc.NewSubscription(c.opts.SubscriptionBuffer, func() {
		cancel()
		gethSub.Unsubscribe()
	})

	RPCSubscriptionSet(true)
	c.log.Infof("subscribed to logs on %s", redactEndpoint(url))

	go c.forward(subCtx, gethSub, ch, sub)

	return sub, nil
}

// forward groups pushed logs into batches and hands them to the subscriber.
func (c *Client) forward(ctx context.Context, gethSub ethereum.Subscription, ch <-chan types.Log,
	sub *pkgrpc.Subscription) {
	defer RPCSubscriptionSet(false)

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-gethSub.Err():
			if err == nil {
				return
			}
			c.log.Warnf("log subscription dropped: %v", err)
			c.dropWS()
			sub.Fail(err)
			return

		case first := <-ch:
			batch := []types.Log{first}
		drain:
			for len(batch) < maxLogsPerPush {
				select {
				case l := <-ch:
					batch = append(batch, l)
				default:
					break drain
				}
			}

			if !sub.Deliver(ctx, batch) {
				return
			}
		}
	}
}

func (c *Client) wsEndpoints() []string {
	var urls []string
	for _, url := range []string{c.cfg.WSURL, c.cfg.WSFallbackURL} {
		if url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// connectWS returns the cached WebSocket client or dials the configured endpoints in order.
func (c *Client) connectWS(ctx context.Context) (*ethclient.Client, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return c.ws, c.wsURL, nil
	}

	endpoints := c.wsEndpoints()
	if len(endpoints) == 0 {
		return nil, "", fmt.Errorf("%w: no websocket endpoint configured", pkgrpc.ErrSubscriptionUnavailable)
	}

	var lastErr error
	for _, url := range endpoints {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout.Duration)
		ws, err := c.dialWS(dialCtx, url)
		cancel()
		if err != nil {
			c.log.Warnf("failed to dial websocket endpoint %s: %v", redactEndpoint(url), err)
			RPCMethodError("ws_dial", classifyError(err))
			lastErr = err
			continue
		}

		c.ws, c.wsURL = ws, url
		return ws, url, nil
	}

	return nil, "", fmt.Errorf("%w: %w", pkgrpc.ErrSubscriptionUnavailable, lastErr)
}

func (c *Client) dropWS() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		c.ws.Close()
		c.ws, c.wsURL = nil, ""
	}
}

// HealthCheck probes the HTTP endpoint and, when configured, a WebSocket endpoint.
// Probes are single attempts without retries.
func (c *Client) HealthCheck(ctx context.Context) pkgrpc.Health {
	var health pkgrpc.Health

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout.Duration)
	defer cancel()

	RPCMethodInc("health_http")
	height, err := c.eth.BlockNumber(probeCtx)
	if err != nil {
		RPCMethodError("health_http", classifyError(err))
		health.Error = err.Error()
	} else {
		health.HTTP = true
		health.LatestBlock = height
	}

	if len(c.wsEndpoints()) == 0 {
		return health
	}

	ws, _, err := c.connectWS(probeCtx)
	if err == nil {
		RPCMethodInc("health_ws")
		if _, err = ws.BlockNumber(probeCtx); err != nil {
			RPCMethodError("health_ws", classifyError(err))
			c.dropWS()
		}
	}
	health.WS = err == nil

	return health
}

// classifyError maps an error to a low-cardinality metric label.
func classifyError(err error) string {
	if tooMany, _ := IsTooManyResultsError(err); tooMany {
		return "too_many_results"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case retryableError(err):
		return "transient"
	default:
		return "other"
	}
}

// redactEndpoint strips paths and queries, where providers embed API keys.
func redactEndpoint(url string) string {
	scheme, rest, found := strings.Cut(url, "://")
	if !found {
		return "<endpoint>"
	}
	host, _, _ := strings.Cut(rest, "/")
	host, _, _ = strings.Cut(host, "?")
	return scheme + "://" + host
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return hexutil.EncodeUint64(blockNum)
}
