package contracts

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventArg is one decoded event parameter.
type EventArg struct {
	Name    string      `json:"name"`
	EvmType string      `json:"evm_type"`
	Value   interface{} `json:"value"`
}

// Event is a log decoded against a contract ABI.
type Event struct {
	Name string     `json:"name"`
	Args []EventArg `json:"args"`

	// Values holds the decoded parameters in their go-ethereum types.
	Values map[string]interface{} `json:"-"`
}

// preMarshal converts v to a value with the JSON serialization we want:
// large integers become decimal strings and byte types become hex.
func preMarshal(v interface{}, t abi.Type) interface{} {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		if t.Size > 32 {
			return fmt.Sprint(v)
		}
	case abi.SliceTy, abi.ArrayTy:
		rv := reflect.ValueOf(v)
		slice := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			slice = append(slice, preMarshal(rv.Index(i).Interface(), *t.Elem))
		}
		return slice
	case abi.FixedBytesTy:
		rv := reflect.ValueOf(v)
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return hexutil.Encode(b)
	case abi.BytesTy:
		return hexutil.Encode(reflect.ValueOf(v).Bytes())
	}
	return v
}

// ParseData decodes calldata into the called method and its arguments.
func ParseData(data []byte, contractABI *abi.ABI) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("data (%dB) too short to have method ID", len(data))
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("contract ABI MethodById: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("method inputs Unpack: %w", err)
	}
	return method, args, nil
}

// DecodeLog decodes l, including its indexed parameters, against contractABI.
func DecodeLog(contractABI *abi.ABI, l *types.Log) (*Event, error) {
	if len(l.Topics) < 1 {
		return nil, fmt.Errorf("log has no topics")
	}
	event, err := contractABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("contract ABI EventByID: %w", err)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	values := map[string]interface{}{}
	if err = abi.ParseTopicsIntoMap(values, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("event %s topics: %w", event.Name, err)
	}
	if err = event.Inputs.NonIndexed().UnpackIntoMap(values, l.Data); err != nil {
		return nil, fmt.Errorf("event %s data: %w", event.Name, err)
	}

	args := make([]EventArg, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		args = append(args, EventArg{
			Name:    input.Name,
			EvmType: input.Type.String(),
			Value:   preMarshal(values[input.Name], input.Type),
		})
	}
	return &Event{Name: event.Name, Args: args, Values: values}, nil
}
