package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"exposurePool/internal/model"
)

// Sink receives encoded logs.
type Sink interface {
	Emit(lr model.LogRecord)
}

// Emitter encodes events of one contract deployed at one address.
type Emitter struct {
	sink     Sink
	contract Contract
	address  common.Address
}

// NewEmitter returns an emitter writing to sink.
func NewEmitter(sink Sink, contract Contract, address common.Address) *Emitter {
	return &Emitter{sink: sink, contract: contract, address: address}
}

// Address returns the emitting contract address.
func (e *Emitter) Address() common.Address {
	return e.address
}

// Emit encodes the named event and hands it to the sink.
func (e *Emitter) Emit(name string, args ...interface{}) error {
	lr, err := Encode(e.contract, e.address, name, args...)
	if err != nil {
		return err
	}
	e.sink.Emit(lr)
	return nil
}

// Encode packs an event into a LogRecord. Indexed arguments become topics,
// the rest is ABI-encoded into Data. Block fields are left for the caller.
func Encode(contract Contract, address common.Address, name string, args ...interface{}) (model.LogRecord, error) {
	parsed, err := ABI(contract)
	if err != nil {
		return model.LogRecord{}, err
	}
	event, ok := parsed.Events[name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("%s: unknown event %s", contract, name)
	}
	if len(args) != len(event.Inputs) {
		return model.LogRecord{}, fmt.Errorf("%s.%s: expected %d args, got %d", contract, name, len(event.Inputs), len(args))
	}

	topics := []string{event.ID.Hex()}
	data := make([]interface{}, 0, len(args))
	for i, input := range event.Inputs {
		value, err := abiValue(input.Type, args[i])
		if err != nil {
			return model.LogRecord{}, fmt.Errorf("%s.%s %s: %w", contract, name, input.Name, err)
		}
		if !input.Indexed {
			data = append(data, value)
			continue
		}
		hashes, err := abi.MakeTopics([]interface{}{value})
		if err != nil {
			return model.LogRecord{}, fmt.Errorf("%s.%s topic %s: %w", contract, name, input.Name, err)
		}
		topics = append(topics, hashes[0][0].Hex())
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s.%s: %w", contract, name, err)
	}

	return model.LogRecord{
		Address: address.Hex(),
		Topics:  topics,
		Data:    hexutil.Encode(packed),
	}, nil
}

// abiValue converts engine values to the Go types the ABI packer expects.
func abiValue(typ abi.Type, value interface{}) (interface{}, error) {
	switch typ.T {
	case abi.AddressTy:
		return asAddress(value)
	case abi.BoolTy:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("unsupported bool type %T", value)
		}
		return b, nil
	case abi.UintTy:
		n, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 || n.BitLen() > typ.Size {
			return nil, fmt.Errorf("uint%d out of range: %s", typ.Size, n)
		}
		switch typ.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		default:
			return n, nil
		}
	default:
		return nil, fmt.Errorf("unsupported abi type %s", typ.String())
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *uint256.Int:
		return v.ToBig(), nil
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
