package model

import "fmt"

// Position identifies an event in chain order.
type Position struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
}

// After reports whether p comes strictly after other.
func (p Position) After(other Position) bool {
	if p.BlockNumber != other.BlockNumber {
		return p.BlockNumber > other.BlockNumber
	}
	return p.LogIndex > other.LogIndex
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.BlockNumber, p.LogIndex)
}
