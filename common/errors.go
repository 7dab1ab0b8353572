package common

import "fmt"

// ErrorKind classifies why a contract call was rejected. Kinds are
// themselves errors so callers can write errors.Is(err, common.ErrUnauthorized).
type ErrorKind string

const (
	ErrUnauthorized          ErrorKind = "unauthorized"
	ErrFeatureDisabled       ErrorKind = "feature disabled"
	ErrLimitExceeded         ErrorKind = "limit exceeded"
	ErrInsufficientBalance   ErrorKind = "insufficient balance"
	ErrInsufficientAllowance ErrorKind = "insufficient allowance"
	ErrInvalidArgument       ErrorKind = "invalid argument"
)

func (k ErrorKind) Error() string {
	return string(k)
}

// ContractError is a synchronous rejection carrying a fixed human-readable
// reason. Reason is what a Solidity `require` would revert with.
type ContractError struct {
	Kind   ErrorKind
	Reason string
}

// Revert returns a *ContractError of the given kind.
func Revert(kind ErrorKind, reason string) error {
	return &ContractError{Kind: kind, Reason: reason}
}

// Revertf is like Revert with a formatted reason.
func Revertf(kind ErrorKind, format string, args ...interface{}) error {
	return &ContractError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func (e *ContractError) Error() string {
	return e.Reason
}

// Is reports whether target is this error's kind, or a ContractError with
// the same kind and reason.
func (e *ContractError) Is(target error) bool {
	switch t := target.(type) {
	case ErrorKind:
		return t == e.Kind
	case *ContractError:
		return t.Kind == e.Kind && t.Reason == e.Reason
	default:
		return false
	}
}
