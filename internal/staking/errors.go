package staking

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidEvent marks an event with missing or malformed required fields.
	// Nothing is written for it.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrStoreUnavailable marks a failed store read, write or commit.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnsupportedEvent marks a decoded record with no aggregation rule.
	ErrUnsupportedEvent = errors.New("unsupported event")
	// ErrAlreadyApplied marks an event at or before the stream position the
	// store already holds. Nothing is written for it.
	ErrAlreadyApplied = errors.New("event already applied")
)

// ApplyError is returned by Aggregator.Apply. It matches both its kind
// sentinel and the underlying cause with errors.Is.
type ApplyError struct {
	Kind   error
	Event  string
	TxHash common.Hash
	Err    error
}

func (e *ApplyError) Error() string {
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("apply %s %s: %v", e.Event, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("apply %s %s: %v: %v", e.Event, e.TxHash.Hex(), e.Kind, e.Err)
}

func (e *ApplyError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidEvent}, args...)...)
}
