package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tokenvault/tokenvault/common"
)

// frame is the Env of one contract invocation.
type frame struct {
	tx     *txContext
	caller ethCommon.Address
	self   ethCommon.Address
	depth  int
}

var _ Env = (*frame)(nil)

func (f *frame) Caller() ethCommon.Address {
	return f.caller
}

func (f *frame) Self() ethCommon.Address {
	return f.self
}

func (f *frame) Call(to ethCommon.Address, method string, args ...interface{}) ([]interface{}, error) {
	target, ok := f.tx.state.contracts[to]
	if !ok {
		err := common.Revert(common.ErrInvalidArgument, "Address: call to non-contract")
		f.fail(err)
		return nil, err
	}
	m, ok := target.ABI().Methods[method]
	if !ok {
		err := fmt.Errorf("chain: %s has no method %s", target.Kind(), method)
		f.fail(err)
		return nil, err
	}
	input, err := target.ABI().Pack(method, args...)
	if err != nil {
		err = fmt.Errorf("chain: packing %s.%s: %w", target.Kind(), method, err)
		f.fail(err)
		return nil, err
	}
	out, err := f.tx.execute(f.self, to, input, f.depth+1)
	if err != nil {
		f.fail(err)
		return nil, err
	}
	return m.Outputs.Unpack(out)
}

func (f *frame) fail(err error) {
	if f.tx.failed == nil {
		f.tx.failed = err
	}
}

func (f *frame) Emit(event string, args ...interface{}) error {
	c := f.tx.state.contracts[f.self]
	ev, ok := c.ABI().Events[event]
	if !ok {
		return fmt.Errorf("chain: %s has no event %s", c.Kind(), event)
	}
	if len(args) != len(ev.Inputs) {
		return fmt.Errorf("chain: event %s takes %d arguments, got %d", event, len(ev.Inputs), len(args))
	}
	topics := []ethCommon.Hash{ev.ID}
	var data []interface{}
	for i, input := range ev.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		t, err := abi.MakeTopics([]interface{}{args[i]})
		if err != nil {
			return fmt.Errorf("chain: event %s topic %s: %w", event, input.Name, err)
		}
		topics = append(topics, t[0][0])
	}
	payload, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return fmt.Errorf("chain: event %s data: %w", event, err)
	}
	f.tx.logs = append(f.tx.logs, &types.Log{
		Address: f.self,
		Topics:  topics,
		Data:    payload,
	})
	return nil
}
