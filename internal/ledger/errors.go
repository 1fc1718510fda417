package ledger

import xerrors "AIButler-Chain/internal/errors"

const (
	CodeInsufficientBalance xerrors.Code = "LEDGER_INSUFFICIENT_BALANCE"
	CodeZeroAddress         xerrors.Code = "LEDGER_ZERO_ADDRESS"
	CodeCallDepth           xerrors.Code = "LEDGER_CALL_DEPTH_EXCEEDED"
	CodeUnknownMethod       xerrors.Code = "LEDGER_UNKNOWN_METHOD"
	CodeNonPayable          xerrors.Code = "LEDGER_NON_PAYABLE"
	CodeNegativeValue       xerrors.Code = "LEDGER_NEGATIVE_VALUE"
	CodeOnlyOwner           xerrors.Code = "LEDGER_ONLY_OWNER"
	CodeReentrantCall       xerrors.Code = "LEDGER_REENTRANT_CALL"
	CodeDuplicateContract   xerrors.Code = "LEDGER_DUPLICATE_CONTRACT"
)

var (
	// ErrInsufficientBalance is returned when a sender cannot cover a transfer.
	ErrInsufficientBalance = xerrors.New(CodeInsufficientBalance, "insufficient funds")
	// ErrZeroAddress is returned for calls and transfers to the zero address.
	ErrZeroAddress = xerrors.New(CodeZeroAddress, "call to zero address")
	// ErrCallDepth is returned once nested calls exceed MaxCallDepth.
	ErrCallDepth = xerrors.New(CodeCallDepth, "max call depth exceeded")
	// ErrUnknownMethod is returned when calldata does not match any ABI method.
	ErrUnknownMethod = xerrors.New(CodeUnknownMethod, "unknown method selector")
	// ErrNonPayable is returned when value is attached to a non-payable entrypoint.
	ErrNonPayable = xerrors.New(CodeNonPayable, "function is not payable")
	// ErrNegativeValue is returned for negative transfer amounts.
	ErrNegativeValue = xerrors.New(CodeNegativeValue, "negative value")
	// ErrOnlyOwner is returned when a non-owner invokes an owner-only operation.
	ErrOnlyOwner = xerrors.New(CodeOnlyOwner, "caller is not the owner")
	// ErrReentrantCall is returned when a guarded entrypoint is re-entered.
	ErrReentrantCall = xerrors.New(CodeReentrantCall, "reentrant call")
)

func init() {
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{Message: "insufficient funds", Kind: xerrors.KindFunding, Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeZeroAddress, xerrors.Attributes{Message: "call to zero address", Kind: xerrors.KindInnerCall, Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeCallDepth, xerrors.Attributes{Message: "max call depth exceeded", Kind: xerrors.KindInnerCall, Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeUnknownMethod, xerrors.Attributes{Message: "unknown method selector", Kind: xerrors.KindInnerCall, Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeNonPayable, xerrors.Attributes{Message: "function is not payable", Kind: xerrors.KindValidation, Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeNegativeValue, xerrors.Attributes{Message: "negative value", Kind: xerrors.KindValidation, Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeOnlyOwner, xerrors.Attributes{Message: "caller is not the owner", Kind: xerrors.KindAuthorization, Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeReentrantCall, xerrors.Attributes{Message: "reentrant call", Kind: xerrors.KindReentrancy, Severity: xerrors.SeverityWarning, Alert: true})
	xerrors.Register(CodeDuplicateContract, xerrors.Attributes{Message: "contract already deployed", Kind: xerrors.KindStatus, Severity: xerrors.SeverityWarning})
}
