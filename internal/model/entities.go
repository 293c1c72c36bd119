package model

import "math/big"

// AuditRecord is the append-only trail entry written for every applied event.
// ID is the lowercase hex transaction hash.
type AuditRecord struct {
	ID           string
	ActorAddress string
	MethodLabel  string
	Amount       *big.Int
	Timestamp    uint64
	BlockNumber  uint64
}

// Clone returns a deep copy.
func (r AuditRecord) Clone() AuditRecord {
	r.Amount = CloneAmount(r.Amount)
	return r
}

// UserBalance tracks the staked amount for one account.
// ID is the lowercase hex account address.
type UserBalance struct {
	ID             string
	AccountAddress string
	StakedAmount   *big.Int
}

// Clone returns a deep copy.
func (b UserBalance) Clone() UserBalance {
	b.StakedAmount = CloneAmount(b.StakedAmount)
	return b
}

// StakeSummary is the contract-wide staking total, stored under a single well-known ID.
type StakeSummary struct {
	ID                string
	TotalStakedAmount *big.Int
	TotalRewardAmount *big.Int
}

// Clone returns a deep copy.
func (s StakeSummary) Clone() StakeSummary {
	s.TotalStakedAmount = CloneAmount(s.TotalStakedAmount)
	s.TotalRewardAmount = CloneAmount(s.TotalRewardAmount)
	return s
}

// CloneAmount copies v, preserving nil.
func CloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// FormatAmount renders v as a base-10 string, or "" for nil.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// ParseAmount parses a base-10 amount as written by FormatAmount. An empty string is nil.
func ParseAmount(value string) (*big.Int, bool) {
	if value == "" {
		return nil, true
	}
	return new(big.Int).SetString(value, 10)
}
