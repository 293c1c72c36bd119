package model

// OwnershipTransferredData is the decoded OwnershipTransferred payload.
type OwnershipTransferredData struct {
	PreviousOwner string `json:"previous_owner"`
	NewOwner      string `json:"new_owner"`
}

// PausedData is the decoded Paused payload.
type PausedData struct {
	Account string `json:"account"`
}

// UnpausedData is the decoded Unpaused payload.
type UnpausedData struct {
	Account string `json:"account"`
}

// StakeCompletedData is the decoded StakeCompleted payload.
type StakeCompletedData struct {
	Staker       string `json:"staker"`
	AltQuantity  string `json:"alt_quantity"`
	RewardAmount string `json:"reward_amount"`
}

// UnstakeData is the decoded Unstake payload.
type UnstakeData struct {
	Staker      string `json:"staker"`
	AltQuantity string `json:"alt_quantity"`
}
