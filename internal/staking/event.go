// Package staking turns decoded staking-contract events into audit records,
// per-account balances and the contract-wide stake summary.
package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is one decoded contract event. The set of implementations is closed.
type Event interface {
	Meta() EventMeta
	isEvent()
}

// EventMeta is the provenance shared by every event kind.
type EventMeta struct {
	TxHash      common.Hash
	LogIndex    uint64
	BlockNumber uint64
	Timestamp   uint64
	// Contract is the emitting contract address.
	Contract common.Address
}

func (m EventMeta) Meta() EventMeta { return m }

type BaseInterestUpdated struct {
	EventMeta
}

type OwnershipTransferred struct {
	EventMeta
	PreviousOwner common.Address
	NewOwner      common.Address
}

type Paused struct {
	EventMeta
	Account common.Address
}

type Unpaused struct {
	EventMeta
	Account common.Address
}

// StakeCompleted credits RewardAmount to the staker and adds AltQuantity
// to the global staked total.
type StakeCompleted struct {
	EventMeta
	Staker       common.Address
	AltQuantity  *big.Int
	RewardAmount *big.Int
}

type Unstake struct {
	EventMeta
	Staker      common.Address
	AltQuantity *big.Int
}

func (BaseInterestUpdated) isEvent()  {}
func (OwnershipTransferred) isEvent() {}
func (Paused) isEvent()               {}
func (Unpaused) isEvent()             {}
func (StakeCompleted) isEvent()       {}
func (Unstake) isEvent()              {}

const (
	KindBaseInterestUpdated  = "BaseInterestUpdated"
	KindOwnershipTransferred = "OwnershipTransferred"
	KindPaused               = "Paused"
	KindUnpaused             = "Unpaused"
	KindStakeCompleted       = "StakeCompleted"
	KindUnstake              = "Unstake"
	kindUnknown              = "unknown"
)

// Kind returns the event kind name used in logs and metric labels.
func Kind(ev Event) string {
	switch ev.(type) {
	case BaseInterestUpdated:
		return KindBaseInterestUpdated
	case OwnershipTransferred:
		return KindOwnershipTransferred
	case Paused:
		return KindPaused
	case Unpaused:
		return KindUnpaused
	case StakeCompleted:
		return KindStakeCompleted
	case Unstake:
		return KindUnstake
	default:
		return kindUnknown
	}
}
