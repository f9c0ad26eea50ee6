package codec

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// EventName is the name of the indexed event.
	EventName = "GiftRegisteredFromMint"

	// EventSignature is the canonical signature hashed into topic[0].
	EventSignature = "GiftRegisteredFromMint(uint256,address,address,uint256,uint256,address,string,address)"

	// MaxIDLength is the longest decimal rendering of a uint256.
	MaxIDLength = 78

	expectedTopicsCount = 4 // event signature + giftId, creator, nftContract
	addressPaddingBytes = common.HashLength - common.AddressLength
)

// EventID is topic[0] of every GiftRegisteredFromMint log.
var EventID = crypto.Keccak256Hash([]byte(EventSignature))

const eventABI = `[{
	"type": "event",
	"name": "GiftRegisteredFromMint",
	"anonymous": false,
	"inputs": [
		{"name": "giftId", "type": "uint256", "indexed": true},
		{"name": "creator", "type": "address", "indexed": true},
		{"name": "nftContract", "type": "address", "indexed": true},
		{"name": "tokenId", "type": "uint256", "indexed": false},
		{"name": "expiresAt", "type": "uint256", "indexed": false},
		{"name": "gate", "type": "address", "indexed": false},
		{"name": "giftMessage", "type": "string", "indexed": false},
		{"name": "registeredBy", "type": "address", "indexed": false}
	]
}]`

// GiftEvent is a decoded and validated GiftRegisteredFromMint log.
type GiftEvent struct {
	Contract     common.Address
	GiftID       string
	Creator      common.Address
	NFTContract  common.Address
	TokenID      string
	ExpiresAt    int64
	Gate         common.Address
	GiftMessage  string
	RegisteredBy common.Address

	TxHash      common.Hash
	LogIndex    uint
	BlockNumber uint64
	BlockHash   common.Hash
}

// ValidationError names the field of a log that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) Result {
	return Result{Invalid: &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}}
}

// Result holds exactly one of Event or Invalid.
type Result struct {
	Event   *GiftEvent
	Invalid *ValidationError
}

// Valid reports whether the log decoded into an event.
func (r Result) Valid() bool {
	return r.Event != nil
}

// Codec decodes logs of one contract. It holds no mutable state and is safe for concurrent use.
type Codec struct {
	contract common.Address
	floor    uint64
	data     abi.Arguments
}

// New creates a codec for logs emitted by contract strictly after deploymentBlock.
func New(contract common.Address, deploymentBlock uint64) (*Codec, error) {
	parsed, err := abi.JSON(strings.NewReader(eventABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse event ABI: %w", err)
	}

	event, ok := parsed.Events[EventName]
	if !ok || event.ID != EventID {
		return nil, fmt.Errorf("event ABI does not match signature %s", EventSignature)
	}

	return &Codec{
		contract: contract,
		floor:    deploymentBlock,
		data:     event.Inputs.NonIndexed(),
	}, nil
}

// Decode decodes and validates log.
func (c *Codec) Decode(log types.Log) Result {
	if log.Removed {
		return invalid("removed", "log was removed by a chain reorganization")
	}
	if log.Address != c.contract {
		return invalid("address", "emitted by %s, expected %s", log.Address.Hex(), c.contract.Hex())
	}
	if len(log.Topics) != expectedTopicsCount {
		return invalid("topics", "expected %d topics, got %d", expectedTopicsCount, len(log.Topics))
	}
	if log.Topics[0] != EventID {
		return invalid("topic0", "unexpected event id %s", log.Topics[0].Hex())
	}
	if log.TxHash == (common.Hash{}) {
		return invalid("tx_hash", "zero hash")
	}
	if log.BlockHash == (common.Hash{}) {
		return invalid("block_hash", "zero hash")
	}
	if log.BlockNumber <= c.floor {
		return invalid("block_number", "block %d is not above deployment block %d", log.BlockNumber, c.floor)
	}

	creator, ok := topicAddress(log.Topics[2])
	if !ok {
		return invalid("creator", "indexed address has non-zero padding")
	}
	nftContract, ok := topicAddress(log.Topics[3])
	if !ok {
		return invalid("nft_contract", "indexed address has non-zero padding")
	}

	giftID := new(big.Int).SetBytes(log.Topics[1].Bytes()).String()
	if res, bad := checkID("gift_id", giftID); bad {
		return res
	}

	values, err := c.data.Unpack(log.Data)
	if err != nil {
		return invalid("data", "%v", err)
	}

	tokenID, ok1 := values[0].(*big.Int)
	expiresAt, ok2 := values[1].(*big.Int)
	gate, ok3 := values[2].(common.Address)
	message, ok4 := values[3].(string)
	registeredBy, ok5 := values[4].(common.Address)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return invalid("data", "unexpected argument types")
	}

	if res, bad := checkID("token_id", tokenID.String()); bad {
		return res
	}
	if !utf8.ValidString(message) || strings.ContainsRune(message, 0) {
		return invalid("gift_message", "not valid UTF-8 text")
	}

	expiry := int64(math.MaxInt64)
	if expiresAt.IsInt64() {
		expiry = expiresAt.Int64()
	}

	return Result{Event: &GiftEvent{
		Contract:     log.Address,
		GiftID:       giftID,
		Creator:      creator,
		NFTContract:  nftContract,
		TokenID:      tokenID.String(),
		ExpiresAt:    expiry,
		Gate:         gate,
		GiftMessage:  message,
		RegisteredBy: registeredBy,
		TxHash:       log.TxHash,
		LogIndex:     log.Index,
		BlockNumber:  log.BlockNumber,
		BlockHash:    log.BlockHash,
	}}
}

func checkID(field, value string) (Result, bool) {
	if len(value) == 0 || len(value) > MaxIDLength {
		return invalid(field, "length %d outside [1, %d]", len(value), MaxIDLength), true
	}
	return Result{}, false
}

// topicAddress extracts an indexed address, rejecting topics with non-zero upper bytes.
func topicAddress(topic common.Hash) (common.Address, bool) {
	for _, b := range topic[:addressPaddingBytes] {
		if b != 0 {
			return common.Address{}, false
		}
	}
	return common.BytesToAddress(topic[addressPaddingBytes:]), true
}
