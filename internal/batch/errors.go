package batch

import xerrors "AIButler-Chain/internal/errors"

const (
	CodeInvalidOperationCount xerrors.Code = "BATCH_INVALID_OPERATION_COUNT"
	CodeOperationFailed       xerrors.Code = "BATCH_OPERATION_FAILED"
)

var (
	// ErrInvalidOperationCount 表示批次为空或超过上限。
	ErrInvalidOperationCount = xerrors.New(CodeInvalidOperationCount, "invalid operations count")
	// ErrOperationFailed 包装导致严格模式批次中止的内部错误。
	ErrOperationFailed = xerrors.New(CodeOperationFailed, "operation failed")
)

func init() {
	xerrors.Register(CodeInvalidOperationCount, xerrors.Attributes{
		Message:  "invalid operations count",
		Kind:     xerrors.KindValidation,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeOperationFailed, xerrors.Attributes{
		Message:  "operation failed",
		Kind:     xerrors.KindInnerCall,
		Severity: xerrors.SeverityInfo,
	})
}
