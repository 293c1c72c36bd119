package model

// RejectedEvent records an event the aggregator refused to apply.
type RejectedEvent struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	EventName   string `json:"event_name"`
	Reason      string `json:"reason"`
	Error       string `json:"error"`
}

// RejectedFromRecord builds a RejectedEvent for record.
func RejectedFromRecord(record EventRecord, reason string, err error) RejectedEvent {
	rejected := RejectedEvent{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		EventName:   record.EventName,
		Reason:      reason,
	}
	if err != nil {
		rejected.Error = err.Error()
	}
	return rejected
}
