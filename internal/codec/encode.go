package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Encode builds the log the registry contract emits for ev. Ids must be decimal strings.
// It is the inverse of Decode and is used to build fixtures and replay scenarios.
func (c *Codec) Encode(ev *GiftEvent) (types.Log, error) {
	giftID, ok := new(big.Int).SetString(ev.GiftID, 10)
	if !ok {
		return types.Log{}, fmt.Errorf("gift id %q is not a decimal number", ev.GiftID)
	}
	tokenID, ok := new(big.Int).SetString(ev.TokenID, 10)
	if !ok {
		return types.Log{}, fmt.Errorf("token id %q is not a decimal number", ev.TokenID)
	}

	data, err := c.data.Pack(tokenID, big.NewInt(ev.ExpiresAt), ev.Gate, ev.GiftMessage, ev.RegisteredBy)
	if err != nil {
		return types.Log{}, fmt.Errorf("failed to pack event data: %w", err)
	}

	contract := ev.Contract
	if contract == (common.Address{}) {
		contract = c.contract
	}

	return types.Log{
		Address: contract,
		Topics: []common.Hash{
			EventID,
			common.BigToHash(giftID),
			common.BytesToHash(ev.Creator.Bytes()),
			common.BytesToHash(ev.NFTContract.Bytes()),
		},
		Data:        data,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		BlockHash:   ev.BlockHash,
		Index:       ev.LogIndex,
	}, nil
}
