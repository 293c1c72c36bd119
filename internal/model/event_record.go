package model

import "encoding/json"

// EventRecord is the JSON representation of a decoded staking contract event.
type EventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
}

// Position returns the stream position of the record.
func (r EventRecord) Position() Position {
	return Position{BlockNumber: r.BlockNumber, LogIndex: r.LogIndex}
}
