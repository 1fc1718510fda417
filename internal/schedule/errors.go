package schedule

import xerrors "AIButler-Chain/internal/errors"

const (
	CodeInvalidTarget       xerrors.Code = "SCHEDULE_INVALID_TARGET"
	CodeExecuteAfterInPast  xerrors.Code = "SCHEDULE_EXECUTE_AFTER_IN_PAST"
	CodeDelayTooShort       xerrors.Code = "SCHEDULE_DELAY_TOO_SHORT"
	CodeDelayTooLong        xerrors.Code = "SCHEDULE_DELAY_TOO_LONG"
	CodeInsufficientFunds   xerrors.Code = "SCHEDULE_INSUFFICIENT_FUNDS"
	CodeNotFound            xerrors.Code = "SCHEDULE_NOT_FOUND"
	CodeNotPending          xerrors.Code = "SCHEDULE_NOT_PENDING"
	CodeTooEarly            xerrors.Code = "SCHEDULE_TOO_EARLY"
	CodeWindowExpired       xerrors.Code = "SCHEDULE_WINDOW_EXPIRED"
	CodeUnauthorized        xerrors.Code = "SCHEDULE_UNAUTHORIZED"
	CodeInvalidDelayBounds  xerrors.Code = "SCHEDULE_INVALID_DELAY_BOUNDS"
	CodeEscrowRefundFailure xerrors.Code = "SCHEDULE_REFUND_FAILED"
)

var (
	ErrInvalidTarget      = xerrors.New(CodeInvalidTarget, "invalid target")
	ErrExecuteAfterInPast = xerrors.New(CodeExecuteAfterInPast, "execute time must be in the future")
	ErrDelayTooShort      = xerrors.New(CodeDelayTooShort, "delay too short")
	ErrDelayTooLong       = xerrors.New(CodeDelayTooLong, "delay too long")
	ErrInsufficientFunds  = xerrors.New(CodeInsufficientFunds, "insufficient funds")
	ErrNotFound           = xerrors.New(CodeNotFound, "schedule not found")
	ErrNotPending         = xerrors.New(CodeNotPending, "transaction not pending")
	ErrTooEarly           = xerrors.New(CodeTooEarly, "too early to execute")
	ErrWindowExpired      = xerrors.New(CodeWindowExpired, "execution window expired")
	ErrUnauthorized       = xerrors.New(CodeUnauthorized, "only creator can cancel")
	ErrInvalidDelayBounds = xerrors.New(CodeInvalidDelayBounds, "invalid delay bounds")
)

func init() {
	register := func(code xerrors.Code, message string, kind xerrors.Kind) {
		xerrors.Register(code, xerrors.Attributes{Message: message, Kind: kind, Severity: xerrors.SeverityInfo})
	}
	register(CodeInvalidTarget, "invalid target", xerrors.KindValidation)
	register(CodeExecuteAfterInPast, "execute time must be in the future", xerrors.KindTiming)
	register(CodeDelayTooShort, "delay too short", xerrors.KindTiming)
	register(CodeDelayTooLong, "delay too long", xerrors.KindTiming)
	register(CodeInsufficientFunds, "insufficient funds", xerrors.KindFunding)
	register(CodeNotFound, "schedule not found", xerrors.KindNotFound)
	register(CodeNotPending, "transaction not pending", xerrors.KindStatus)
	register(CodeTooEarly, "too early to execute", xerrors.KindTiming)
	register(CodeWindowExpired, "execution window expired", xerrors.KindTiming)
	register(CodeUnauthorized, "only creator can cancel", xerrors.KindAuthorization)
	register(CodeInvalidDelayBounds, "invalid delay bounds", xerrors.KindValidation)
	xerrors.Register(CodeEscrowRefundFailure, xerrors.Attributes{
		Message:  "escrow refund failed",
		Kind:     xerrors.KindInnerCall,
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}
