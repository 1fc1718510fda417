// Package accounting 提供批量交易与工作流合约共用的资金核算：附带金额必须
// 覆盖各步骤声明金额之和，成功步骤未消耗的部分退还给调用者。
package accounting

import (
	"math/big"

	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/ledger"
)

const CodeInsufficientValue xerrors.Code = "ACCOUNTING_INSUFFICIENT_VALUE"

// ErrInsufficientValue 表示附带金额不足以覆盖声明总额。
var ErrInsufficientValue = xerrors.New(CodeInsufficientValue, "insufficient value sent")

func init() {
	xerrors.Register(CodeInsufficientValue, xerrors.Attributes{
		Message:  "insufficient value sent",
		Kind:     xerrors.KindFunding,
		Severity: xerrors.SeverityInfo,
	})
}

// Sum 求和，nil 视为零。
func Sum(values ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

// Tally 记录附带金额的消耗情况。
type Tally struct {
	attached *big.Int
	required *big.Int
	consumed *big.Int
}

// NewTally 校验声明金额非负且 attached 足以覆盖其总和。
func NewTally(attached *big.Int, declared []*big.Int) (*Tally, error) {
	if attached == nil {
		attached = new(big.Int)
	}
	for _, v := range declared {
		if v != nil && v.Sign() < 0 {
			return nil, ledger.ErrNegativeValue
		}
	}
	required := Sum(declared...)
	if attached.Cmp(required) < 0 {
		return nil, ErrInsufficientValue
	}
	return &Tally{
		attached: new(big.Int).Set(attached),
		required: required,
		consumed: new(big.Int),
	}, nil
}

// Consume 记录成功步骤转出的金额。
func (t *Tally) Consume(v *big.Int) {
	if v != nil {
		t.consumed.Add(t.consumed, v)
	}
}

// Required 返回声明总额。
func (t *Tally) Required() *big.Int { return new(big.Int).Set(t.required) }

// Consumed 返回成功步骤已转出的金额。
func (t *Tally) Consumed() *big.Int { return new(big.Int).Set(t.consumed) }

// Refund 返回应退还的金额，即附带金额减去已消耗金额。
func (t *Tally) Refund() *big.Int {
	refund := new(big.Int).Sub(t.attached, t.consumed)
	if refund.Sign() < 0 {
		return new(big.Int)
	}
	return refund
}

// Settle 将退款转给当前调用者并返回退款金额，退款失败会使整个操作失败。
func Settle(env *ledger.Env, t *Tally) (*big.Int, error) {
	refund := t.Refund()
	if refund.Sign() == 0 {
		return refund, nil
	}
	if err := env.Transfer(env.Caller(), refund); err != nil {
		return nil, err
	}
	return refund, nil
}
