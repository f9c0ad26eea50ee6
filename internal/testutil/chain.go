// Package testutil provides in-memory collaborators for engine tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/GiftIndexer/internal/codec"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

// BlockTime is the timestamp of block 0; every block is two seconds apart.
const BlockTime = 1_700_000_000

// FakeChain is a ChainClient over an in-memory chain. Block hashes derive from the block number
// and a per-block fork generation, so Reorg changes the hashes of every block it touches.
type FakeChain struct {
	mu sync.Mutex

	codec         *codec.Codec
	contract      common.Address
	head          uint64
	confirmations uint64
	batch         uint64
	chainID       uint64

	forks map[uint64]uint64
	logs  map[uint64][]types.Log
	nonce uint64

	subs         []*pkgrpc.Subscription
	subscribeErr error
	getLogsFails []error
	blocksErr    error
	down         bool

	getLogsCalls int
	ranges       [][2]uint64
}

var _ pkgrpc.ChainClient = (*FakeChain)(nil)

var (
	creatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	nftAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	gateAddr    = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

// NewFakeChain creates a chain whose head is at head, serving the registry contract at contract
// deployed in deploymentBlock. The default batch size is 100 and no confirmations are required.
func NewFakeChain(contract common.Address, deploymentBlock, head uint64) *FakeChain {
	c, err := codec.New(contract, deploymentBlock)
	if err != nil {
		panic(err)
	}

	return &FakeChain{
		codec:    c,
		contract: contract,
		head:     head,
		batch:    100, //nolint:mnd
		chainID:  8453, //nolint:mnd
		forks:    make(map[uint64]uint64),
		logs:     make(map[uint64][]types.Log),
	}
}

// Codec returns the codec the chain encodes events with.
func (f *FakeChain) Codec() *codec.Codec {
	return f.codec
}

// SetHead moves the chain head.
func (f *FakeChain) SetHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

// SetConfirmations sets the depth subtracted from the head by SafeHead.
func (f *FakeChain) SetConfirmations(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations = n
}

// SetBatchSize sets the window GetLogs accepts.
func (f *FakeChain) SetBatchSize(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batch = n
}

// SetSubscribeError makes Subscribe fail with err. A nil err restores it.
func (f *FakeChain) SetSubscribeError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

// SetBlocksError makes GetBlock and GetBlocks fail with err. A nil err restores them.
func (f *FakeChain) SetBlocksError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocksErr = err
}

// SetDown marks the node unreachable for HealthCheck and height queries.
func (f *FakeChain) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// FailGetLogs makes the next len(errs) GetLogs calls fail with the given errors in order.
func (f *FakeChain) FailGetLogs(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getLogsFails = append(f.getLogsFails, errs...)
}

// GetLogsCalls returns the number of GetLogs calls, failed ones included.
func (f *FakeChain) GetLogsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getLogsCalls
}

// Ranges returns the windows successfully served by GetLogs.
func (f *FakeChain) Ranges() [][2]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][2]uint64, len(f.ranges))
	copy(out, f.ranges)
	return out
}

// BlockHash returns the current hash of block number.
func (f *FakeChain) BlockHash(number uint64) common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockHash(number)
}

func (f *FakeChain) blockHash(number uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("block-%d-fork-%d", number, f.forks[number])))
}

// Mint adds a registry event for tokenID/giftID in block and returns the stored log.
// The log is not pushed to subscribers; use Push for that.
func (f *FakeChain) Mint(block uint64, tokenID, giftID string) types.Log {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nonce++
	ev := &codec.GiftEvent{
		GiftID:       giftID,
		Creator:      creatorAddr,
		NFTContract:  nftAddr,
		TokenID:      tokenID,
		ExpiresAt:    BlockTime + 86400, //nolint:mnd
		Gate:         gateAddr,
		GiftMessage:  "gift #" + giftID,
		RegisteredBy: creatorAddr,
		TxHash:       crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d-%s-%d", block, tokenID, f.nonce))),
		LogIndex:     uint(len(f.logs[block])),
		BlockNumber:  block,
		BlockHash:    f.blockHash(block),
	}

	log, err := f.codec.Encode(ev)
	if err != nil {
		panic(err)
	}

	f.logs[block] = append(f.logs[block], log)
	return log
}

// AddLog adds an arbitrary log to its block. The block hash is overwritten with the chain's.
func (f *FakeChain) AddLog(log types.Log) types.Log {
	f.mu.Lock()
	defer f.mu.Unlock()

	log.BlockHash = f.blockHash(log.BlockNumber)
	f.logs[log.BlockNumber] = append(f.logs[log.BlockNumber], log)
	return log
}

// Reorg replaces every block from fromBlock on: their hashes change and their logs are dropped.
func (f *FakeChain) Reorg(fromBlock uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for n := fromBlock; n <= f.head; n++ {
		f.forks[n]++
		delete(f.logs, n)
	}
}

// Push delivers logs to every live subscription.
func (f *FakeChain) Push(ctx context.Context, logs []types.Log) {
	f.mu.Lock()
	subs := make([]*pkgrpc.Subscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		s.Deliver(ctx, logs)
	}
}

// DropSubscriptions ends every live subscription with err.
func (f *FakeChain) DropSubscriptions(err error) {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, s := range subs {
		s.Fail(err)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *FakeChain) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *FakeChain) ChainID(ctx context.Context) (uint64, error) {
	return f.chainID, nil
}

func (f *FakeChain) CurrentHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return 0, fmt.Errorf("connection refused")
	}
	return f.head, nil
}

func (f *FakeChain) SafeHead(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return 0, fmt.Errorf("connection refused")
	}
	return f.safeHead(), nil
}

func (f *FakeChain) safeHead() uint64 {
	if f.head < f.confirmations {
		return 0
	}
	return f.head - f.confirmations
}

func (f *FakeChain) GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getLogs(from, to)
}

func (f *FakeChain) getLogs(from, to uint64) ([]types.Log, error) {
	f.getLogsCalls++

	if len(f.getLogsFails) > 0 {
		err := f.getLogsFails[0]
		f.getLogsFails = f.getLogsFails[1:]
		return nil, err
	}
	if to < from {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}
	if to-from+1 > f.batch {
		return nil, &pkgrpc.RangeTooLargeError{From: from, To: to, Limit: f.batch}
	}

	var out []types.Log
	for n := from; n <= to; n++ {
		for _, l := range f.logs[n] {
			l.BlockHash = f.blockHash(n)
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})

	f.ranges = append(f.ranges, [2]uint64{from, to})
	return out, nil
}

func (f *FakeChain) GetBlock(ctx context.Context, number uint64) (*pkgrpc.BlockInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getBlock(number)
}

func (f *FakeChain) getBlock(number uint64) (*pkgrpc.BlockInfo, error) {
	if f.blocksErr != nil {
		return nil, f.blocksErr
	}
	if number > f.head {
		return nil, ethereum.NotFound
	}

	info := &pkgrpc.BlockInfo{
		Number:    number,
		Hash:      f.blockHash(number),
		Timestamp: BlockTime + 2*number, //nolint:mnd
	}
	if number > 0 {
		info.ParentHash = f.blockHash(number - 1)
	}
	return info, nil
}

func (f *FakeChain) GetBlocks(ctx context.Context, numbers []uint64) ([]*pkgrpc.BlockInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*pkgrpc.BlockInfo, 0, len(numbers))
	for _, n := range numbers {
		b, err := f.getBlock(n)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *FakeChain) Subscribe(ctx context.Context) (*pkgrpc.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}

	var sub *pkgrpc.Subscription
	sub = pkgrpc.NewSubscription(16, func() { //nolint:mnd
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, s := range f.subs {
			if s == sub {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				break
			}
		}
	})
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *FakeChain) Poll(ctx context.Context, from uint64) ([]types.Log, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	safe := f.safeHead()
	if from > safe {
		return nil, from - 1, nil
	}

	to := min(safe, from+f.batch-1)
	logs, err := f.getLogs(from, to)
	if err != nil {
		return nil, 0, err
	}
	return logs, to, nil
}

func (f *FakeChain) HealthCheck(ctx context.Context) pkgrpc.Health {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		return pkgrpc.Health{Error: "connection refused"}
	}
	return pkgrpc.Health{HTTP: true, WS: f.subscribeErr == nil, LatestBlock: f.head}
}

func (f *FakeChain) BatchSize() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batch
}

func (f *FakeChain) Close() {}
