package staking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"stakeScope/internal/model"
)

var supportedEvents = map[string]struct{}{
	"baseinterestupdated":  {},
	"ownershiptransferred": {},
	"paused":               {},
	"unpaused":             {},
	"stakecompleted":       {},
	"unstake":              {},
}

// FromRecord maps a decoded event record onto its Event kind. Names without
// an aggregation rule return ErrUnsupportedEvent; malformed fields return
// ErrInvalidEvent. The result is not validated; Apply does that.
func FromRecord(rec model.EventRecord) (Event, error) {
	name := strings.ToLower(strings.TrimSpace(rec.EventName))
	if _, ok := supportedEvents[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, rec.EventName)
	}
	meta, err := metaFromRecord(rec)
	if err != nil {
		return nil, err
	}

	switch name {
	case "baseinterestupdated":
		return BaseInterestUpdated{EventMeta: meta}, nil

	case "ownershiptransferred":
		var data model.OwnershipTransferredData
		if err := decodePayload(rec.Decoded, &data); err != nil {
			return nil, err
		}
		prev, err := parseAddress("previous_owner", data.PreviousOwner, true)
		if err != nil {
			return nil, err
		}
		next, err := parseAddress("new_owner", data.NewOwner, false)
		if err != nil {
			return nil, err
		}
		return OwnershipTransferred{EventMeta: meta, PreviousOwner: prev, NewOwner: next}, nil

	case "paused":
		var data model.PausedData
		if err := decodePayload(rec.Decoded, &data); err != nil {
			return nil, err
		}
		account, err := parseAddress("account", data.Account, false)
		if err != nil {
			return nil, err
		}
		return Paused{EventMeta: meta, Account: account}, nil

	case "unpaused":
		var data model.UnpausedData
		if err := decodePayload(rec.Decoded, &data); err != nil {
			return nil, err
		}
		account, err := parseAddress("account", data.Account, false)
		if err != nil {
			return nil, err
		}
		return Unpaused{EventMeta: meta, Account: account}, nil

	case "stakecompleted":
		var data model.StakeCompletedData
		if err := decodePayload(rec.Decoded, &data); err != nil {
			return nil, err
		}
		staker, err := parseAddress("staker", data.Staker, false)
		if err != nil {
			return nil, err
		}
		quantity, err := parseAmount("alt_quantity", data.AltQuantity)
		if err != nil {
			return nil, err
		}
		reward, err := parseAmount("reward_amount", data.RewardAmount)
		if err != nil {
			return nil, err
		}
		return StakeCompleted{EventMeta: meta, Staker: staker, AltQuantity: quantity, RewardAmount: reward}, nil

	case "unstake":
		var data model.UnstakeData
		if err := decodePayload(rec.Decoded, &data); err != nil {
			return nil, err
		}
		staker, err := parseAddress("staker", data.Staker, false)
		if err != nil {
			return nil, err
		}
		quantity, err := parseAmount("alt_quantity", data.AltQuantity)
		if err != nil {
			return nil, err
		}
		return Unstake{EventMeta: meta, Staker: staker, AltQuantity: quantity}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, rec.EventName)
	}
}

func metaFromRecord(rec model.EventRecord) (EventMeta, error) {
	txHash, err := parseHash(rec.TxHash)
	if err != nil {
		return EventMeta{}, err
	}
	contract, err := parseAddress("address", rec.Address, true)
	if err != nil {
		return EventMeta{}, err
	}
	return EventMeta{
		TxHash:      txHash,
		LogIndex:    rec.LogIndex,
		BlockNumber: rec.BlockNumber,
		Timestamp:   rec.Timestamp,
		Contract:    contract,
	}, nil
}

func decodePayload(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalidf("decode payload: %v", err)
	}
	return nil
}

func parseHash(value string) (common.Hash, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Hash{}, nil
	}
	data, err := hexutil.Decode(value)
	if err != nil {
		return common.Hash{}, invalidf("tx hash %q: %v", value, err)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, invalidf("tx hash %q: want %d bytes, got %d", value, common.HashLength, len(data))
	}
	return common.BytesToHash(data), nil
}

// parseAddress returns the zero address for an empty optional value.
func parseAddress(field, value string, optional bool) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if optional {
			return common.Address{}, nil
		}
		return common.Address{}, invalidf("missing %s", field)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, invalidf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

// parseAmount accepts base-10 integers or 0x-prefixed hex quantities.
func parseAmount(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, invalidf("missing %s", field)
	}
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		v, err := hexutil.DecodeBig("0x" + value[2:])
		if err != nil {
			return nil, invalidf("%s %q: %v", field, value, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, invalidf("%s: invalid int %q", field, value)
	}
	return v, nil
}
