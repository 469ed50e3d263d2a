package approval

import (
	"errors"

	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
)

var (
	// ErrInvalidTransition は終端状態や下書きの経費に承認操作を行った場合に返却されます。
	ErrInvalidTransition = expense.ErrInvalidTransition
	// ErrApproverNotEligible は操作者が未判断の承認者でない場合に返却されます。
	ErrApproverNotEligible = errors.New("approver is not eligible for this expense")
	// ErrOutOfSequence は順次承認で先行する承認者が未判断の場合に返却されます。
	ErrOutOfSequence = errors.New("approver acted out of sequence")
	// ErrInvalidPolicy は承認ポリシーの設定値が不正な場合に返却されます。
	ErrInvalidPolicy = errors.New("invalid approval policy")
)
