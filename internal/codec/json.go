package codec

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// rawLog mirrors the JSON-RPC log object with every field kept as text, so malformed
// values can be reported per field instead of failing the whole unmarshal.
type rawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	TxIndex     string   `json:"transactionIndex"`
	BlockHash   string   `json:"blockHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// DecodeJSON decodes a log stored as JSON (pending and dead-letter payloads) and applies the
// same validation as Decode. The returned log carries whatever fields could be parsed.
func (c *Codec) DecodeJSON(payload []byte) (types.Log, Result) {
	log, res, ok := ParseJSON(payload)
	if !ok {
		return log, res
	}
	return log, c.Decode(log)
}

// ParseJSON parses a JSON-RPC log object without validating its content.
// ok is false, with res.Invalid naming the field, when a field is malformed.
func ParseJSON(payload []byte) (log types.Log, res Result, ok bool) {
	var raw rawLog
	if err := json.Unmarshal(payload, &raw); err != nil {
		return log, invalid("payload", "%v", err), false
	}

	addr, res, ok := fixedBytes("address", raw.Address, common.AddressLength)
	if !ok {
		return log, res, false
	}
	log.Address = common.BytesToAddress(addr)

	txHash, res, ok := fixedBytes("tx_hash", raw.TxHash, common.HashLength)
	if !ok {
		return log, res, false
	}
	log.TxHash = common.BytesToHash(txHash)

	blockHash, res, ok := fixedBytes("block_hash", raw.BlockHash, common.HashLength)
	if !ok {
		return log, res, false
	}
	log.BlockHash = common.BytesToHash(blockHash)

	if log.BlockNumber, res, ok = quantity("block_number", raw.BlockNumber); !ok {
		return log, res, false
	}

	logIndex, res, ok := quantity("log_index", raw.LogIndex)
	if !ok {
		return log, res, false
	}
	log.Index = uint(logIndex)

	if raw.TxIndex != "" {
		txIndex, res, ok := quantity("tx_index", raw.TxIndex)
		if !ok {
			return log, res, false
		}
		log.TxIndex = uint(txIndex)
	}

	log.Topics = make([]common.Hash, 0, len(raw.Topics))
	for _, t := range raw.Topics {
		topic, res, ok := fixedBytes("topics", t, common.HashLength)
		if !ok {
			return log, res, false
		}
		log.Topics = append(log.Topics, common.BytesToHash(topic))
	}

	data, err := hexutil.Decode(emptyAsZero(raw.Data))
	if err != nil {
		return log, invalid("data", "%v", err), false
	}
	log.Data = data
	log.Removed = raw.Removed

	return log, Result{}, true
}

func fixedBytes(field, value string, size int) ([]byte, Result, bool) {
	b, err := hexutil.Decode(value)
	if err != nil {
		return nil, invalid(field, "%v", err), false
	}
	if len(b) != size {
		return nil, invalid(field, "expected %d bytes, got %d", size, len(b)), false
	}
	return b, Result{}, true
}

func quantity(field, value string) (uint64, Result, bool) {
	n, err := hexutil.DecodeUint64(value)
	if err != nil {
		return 0, invalid(field, "%v", err), false
	}
	return n, Result{}, true
}

func emptyAsZero(data string) string {
	if data == "" {
		return "0x"
	}
	return data
}
