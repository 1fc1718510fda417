package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "AIButler-Chain/internal/errors"
)

// MustParseABI parses a JSON ABI definition and panics if it is malformed.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("ledger: parse abi: %v", err))
	}
	return parsed
}

// EmitEvent encodes args according to the named event of contractABI and
// emits the resulting log. Indexed arguments become topics; the rest are
// ABI packed into the log data.
func (e *Env) EmitEvent(contractABI abi.ABI, name string, args ...any) error {
	ev, ok := contractABI.Events[name]
	if !ok {
		return fmt.Errorf("ledger: event %s not declared", name)
	}
	if len(args) != len(ev.Inputs) {
		return fmt.Errorf("ledger: event %s expects %d arguments, got %d", name, len(ev.Inputs), len(args))
	}
	topics := []common.Hash{ev.ID}
	var data []any
	for i, input := range ev.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		topic, err := abi.MakeTopics([]any{args[i]})
		if err != nil {
			return fmt.Errorf("ledger: encode topic %s.%s: %w", name, input.Name, err)
		}
		topics = append(topics, topic[0][0])
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return fmt.Errorf("ledger: pack event %s: %w", name, err)
	}
	e.Emit(topics, packed)
	return nil
}

// DecodeCall resolves the method selected by input and unpacks its arguments.
func DecodeCall(contractABI abi.ABI, input []byte) (*abi.Method, []any, error) {
	if len(input) < 4 {
		return nil, nil, ErrUnknownMethod
	}
	method, err := contractABI.MethodById(input[:4])
	if err != nil {
		return nil, nil, ErrUnknownMethod
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, xerrors.Wrap(CodeUnknownMethod, err, "malformed calldata")
	}
	return method, args, nil
}

// RequireNonPayable rejects frames that carry value.
func RequireNonPayable(env *Env) error {
	if env.value.Sign() != 0 {
		return ErrNonPayable
	}
	return nil
}

// U256 converts v to the *big.Int form the ABI encoder expects for uint256.
func U256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// Uint64Arg extracts a uint256 ABI argument that fits into uint64.
func Uint64Arg(v any) (uint64, bool) {
	n, ok := v.(*big.Int)
	if !ok || n.Sign() < 0 || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}
