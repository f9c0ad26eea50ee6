package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/GiftIndexer/internal/common"
)

// MaxIDLength is the longest decimal rendering of a uint256.
const MaxIDLength = 78

// ValidationError reports a mapping rejected at the persistence boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate re-checks a mapping before it is written. The codec applies the same rules;
// this keeps rows written through any other path to the same shape.
func (s *Store) Validate(m *GiftMapping) error {
	if m.ContractAddr == (common.Address{}) {
		return &ValidationError{Field: "contract_addr", Reason: "zero address"}
	}
	if err := validateDecimalID("token_id", m.TokenID); err != nil {
		return err
	}
	if err := validateDecimalID("gift_id", m.GiftID); err != nil {
		return err
	}
	if m.TxHash == (common.Hash{}) {
		return &ValidationError{Field: "tx_hash", Reason: "zero hash"}
	}
	if m.BlockHash == (common.Hash{}) {
		return &ValidationError{Field: "block_hash", Reason: "zero hash"}
	}
	if m.BlockNumber <= s.floor {
		return &ValidationError{
			Field:  "block_number",
			Reason: fmt.Sprintf("block %d is not above deployment block %d", m.BlockNumber, s.floor),
		}
	}
	return nil
}

func validateDecimalID(field, value string) error {
	if len(value) == 0 || len(value) > MaxIDLength {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("length %d outside [1, %d]", len(value), MaxIDLength)}
	}
	if !internalcommon.IsDecimal(value) {
		return &ValidationError{Field: field, Reason: "not a decimal number"}
	}
	return nil
}
