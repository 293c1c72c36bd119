package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// Validate checks the fields Apply relies on. Errors wrap ErrInvalidEvent.
func Validate(ev Event) error {
	if ev == nil {
		return invalidf("nil event")
	}
	if err := validateMeta(ev.Meta()); err != nil {
		return err
	}

	switch e := ev.(type) {
	case BaseInterestUpdated:
		return requireAddress("contract", e.Contract)
	case OwnershipTransferred:
		// renounceOwnership transfers to the zero address.
		return nil
	case Paused:
		return requireAddress("account", e.Account)
	case Unpaused:
		return requireAddress("account", e.Account)
	case StakeCompleted:
		if err := requireAddress("staker", e.Staker); err != nil {
			return err
		}
		if err := requireAmount("alt_quantity", e.AltQuantity); err != nil {
			return err
		}
		return requireAmount("reward_amount", e.RewardAmount)
	case Unstake:
		if err := requireAddress("staker", e.Staker); err != nil {
			return err
		}
		return requireAmount("alt_quantity", e.AltQuantity)
	default:
		return invalidf("unsupported event type %T", ev)
	}
}

func validateMeta(meta EventMeta) error {
	if meta.TxHash == (common.Hash{}) {
		return invalidf("missing tx hash")
	}
	if meta.BlockNumber == 0 {
		return invalidf("missing block number")
	}
	if meta.Timestamp == 0 {
		return invalidf("missing timestamp")
	}
	// Stores keep these in signed 64-bit columns.
	for _, f := range []struct {
		name  string
		value uint64
	}{
		{"block number", meta.BlockNumber},
		{"log index", meta.LogIndex},
		{"timestamp", meta.Timestamp},
	} {
		if f.value > maxInt64 {
			return invalidf("%s %d out of range", f.name, f.value)
		}
	}
	return nil
}

const maxInt64 = 1<<63 - 1

func requireAddress(field string, addr common.Address) error {
	if addr == (common.Address{}) {
		return invalidf("missing %s", field)
	}
	return nil
}

func requireAmount(field string, v *big.Int) error {
	if v == nil {
		return invalidf("missing %s", field)
	}
	if v.Sign() < 0 {
		return invalidf("negative %s: %s", field, v)
	}
	if v.Cmp(math.MaxBig256) > 0 {
		return invalidf("%s exceeds uint256: %s", field, v)
	}
	return nil
}
