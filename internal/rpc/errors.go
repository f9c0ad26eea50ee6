package rpc

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/GiftIndexer/internal/common"
)

var (
	tooManyResultsPattern = regexp.MustCompile(`(?i)(query returned more than \d+ results|log response size exceeded|block range is too (large|wide)|exceed(s|ed)? (max(imum)? )?block range)`) //nolint:lll
	suggestedRangePattern = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// IsTooManyResultsError checks if the error is a provider refusal of an eth_getLogs window.
// Providers report it either in the message or in the DataError payload; the matched text is returned.
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		if tooManyResultsPattern.MatchString(errData) {
			return true, errData
		}
	}

	if tooManyResultsPattern.MatchString(err.Error()) {
		return true, err.Error()
	}

	return false, ""
}

// ParseSuggestedBlockRange attempts to extract the suggested block range from the error message.
// Returns the suggested fromBlock and toBlock, and true if successfully parsed.
// Expected format: "Query returned more than 10000 results. Try with this block range [0x1b9c1a3, 0x1b9c3e7]."
func ParseSuggestedBlockRange(err string) (fromBlock, toBlock uint64, ok bool) {
	if err == "" {
		return 0, 0, false
	}

	matches := suggestedRangePattern.FindStringSubmatch(err)

	const expectedMatches = 3 // full match + 2 groups
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(&matches[1])
	to, err2 := common.ParseUint64orHex(&matches[2])
	if err1 != nil || err2 != nil || to < from {
		return 0, 0, false
	}

	return from, to, true
}
