package flow

import xerrors "AIButler-Chain/internal/errors"

const (
	CodeInvalidActionCount  xerrors.Code = "FLOW_INVALID_ACTION_COUNT"
	CodeNotFound            xerrors.Code = "FLOW_NOT_FOUND"
	CodeNotPending          xerrors.Code = "FLOW_NOT_PENDING"
	CodeUnauthorized        xerrors.Code = "FLOW_UNAUTHORIZED"
	CodeInvalidIndex        xerrors.Code = "FLOW_INVALID_INDEX"
	CodeInvalidActionTarget xerrors.Code = "FLOW_INVALID_ACTION_TARGET"
	CodeActionFailed        xerrors.Code = "FLOW_ACTION_FAILED"
	CodeInvalidConnector    xerrors.Code = "FLOW_INVALID_CONNECTOR"
	CodeConnectorNotFound   xerrors.Code = "FLOW_CONNECTOR_NOT_REGISTERED"
	CodeUnknownActionType   xerrors.Code = "FLOW_UNKNOWN_ACTION_TYPE"
)

var (
	ErrInvalidActionCount  = xerrors.New(CodeInvalidActionCount, "invalid actions count")
	ErrNotFound            = xerrors.New(CodeNotFound, "workflow not found")
	ErrNotPending          = xerrors.New(CodeNotPending, "workflow not pending")
	ErrExecuteUnauthorized = xerrors.New(CodeUnauthorized, "only creator can execute")
	ErrCancelUnauthorized  = xerrors.New(CodeUnauthorized, "only creator can cancel")
	ErrInvalidIndex        = xerrors.New(CodeInvalidIndex, "invalid index")
	ErrInvalidActionTarget = xerrors.New(CodeInvalidActionTarget, "invalid action target")
	ErrActionFailed        = xerrors.New(CodeActionFailed, "action failed")
	ErrInvalidConnector    = xerrors.New(CodeInvalidConnector, "invalid connector")
	ErrConnectorNotFound   = xerrors.New(CodeConnectorNotFound, "connector not registered")
	ErrUnknownActionType   = xerrors.New(CodeUnknownActionType, "unknown action type")
)

func init() {
	register := func(code xerrors.Code, message string, kind xerrors.Kind) {
		xerrors.Register(code, xerrors.Attributes{Message: message, Kind: kind, Severity: xerrors.SeverityInfo})
	}
	register(CodeInvalidActionCount, "invalid actions count", xerrors.KindValidation)
	register(CodeNotFound, "workflow not found", xerrors.KindNotFound)
	register(CodeNotPending, "workflow not pending", xerrors.KindStatus)
	register(CodeUnauthorized, "caller is not the workflow creator", xerrors.KindAuthorization)
	register(CodeInvalidIndex, "invalid index", xerrors.KindValidation)
	register(CodeInvalidActionTarget, "invalid action target", xerrors.KindInnerCall)
	register(CodeActionFailed, "action failed", xerrors.KindInnerCall)
	register(CodeInvalidConnector, "invalid connector", xerrors.KindValidation)
	register(CodeConnectorNotFound, "connector not registered", xerrors.KindNotFound)
	register(CodeUnknownActionType, "unknown action type", xerrors.KindValidation)
}
