// Package approval は経費の承認判定を行う純粋なロジックを提供します。
// I/O を持たず、入力の経費を変更せずに新しい状態を返します。
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
)

// NoApproversPolicy は承認者が 0 人で提出された経費の扱いです。
type NoApproversPolicy string

const (
	// NoApproversAutoApprove は提出と同時に system 名義で承認します。
	NoApproversAutoApprove NoApproversPolicy = "auto_approve"
	// NoApproversHold は提出済みのまま保留します。
	NoApproversHold NoApproversPolicy = "hold"
)

// ThresholdMode は必須承認者条件と承認率条件の組み合わせ方です。
type ThresholdMode string

const (
	ThresholdAll        ThresholdMode = "all"
	ThresholdRequired   ThresholdMode = "required"
	ThresholdPercentage ThresholdMode = "percentage"
	ThresholdAny        ThresholdMode = "any"
)

// AutoApproveNote は自動承認時に履歴へ残す注記です。
const AutoApproveNote = "auto-approved: no approvers configured"

// ParseNoApproversPolicy は設定値を NoApproversPolicy に変換します。空文字は auto_approve です。
func ParseNoApproversPolicy(raw string) (NoApproversPolicy, error) {
	switch p := NoApproversPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return NoApproversAutoApprove, nil
	case NoApproversAutoApprove, NoApproversHold:
		return p, nil
	default:
		return "", fmt.Errorf("no_approvers_policy %q: %w", raw, ErrInvalidPolicy)
	}
}

// ParseThresholdMode は設定値を ThresholdMode に変換します。空文字は all です。
func ParseThresholdMode(raw string) (ThresholdMode, error) {
	switch m := ThresholdMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ThresholdAll, nil
	case ThresholdAll, ThresholdRequired, ThresholdPercentage, ThresholdAny:
		return m, nil
	default:
		return "", fmt.Errorf("threshold_mode %q: %w", raw, ErrInvalidPolicy)
	}
}

// Policy はエンジンの判定方針です。ゼロ値は auto_approve / all として扱います。
type Policy struct {
	NoApprovers NoApproversPolicy
	Threshold   ThresholdMode
}

// Manager は承認者として差し込まれる上長です。
type Manager struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

// Engine は承認判定を行います。
type Engine struct {
	policy Policy
}

// NewEngine は Engine を生成します。
func NewEngine(policy Policy) *Engine {
	if policy.NoApprovers == "" {
		policy.NoApprovers = NoApproversAutoApprove
	}
	if policy.Threshold == "" {
		policy.Threshold = ThresholdAll
	}
	return &Engine{policy: policy}
}

// Policy は適用中の判定方針を返します。
func (e *Engine) Policy() Policy {
	return e.policy
}

// Roster は rule と manager から提出時の承認者一覧を組み立てます。
// 無効なルールや nil の場合は空です。上長は必須承認者として先頭に置き、後続の重複は除きます。
func Roster(r *rule.Rule, manager *Manager) []expense.Approver {
	if r == nil || !r.IsActive {
		return nil
	}

	roster := make([]expense.Approver, 0, len(r.Approvers)+1)
	managerID := ""
	if r.IsManagerApprover && manager != nil {
		managerID = manager.UserID
		roster = append(roster, expense.Approver{
			UserID:   manager.UserID,
			Name:     manager.Name,
			Email:    manager.Email,
			Role:     manager.Role,
			Required: true,
			Status:   expense.ApproverPending,
		})
	}

	for _, a := range r.Approvers {
		if managerID != "" && a.UserID == managerID {
			continue
		}
		roster = append(roster, expense.Approver{
			UserID:   a.UserID,
			Name:     a.Name,
			Email:    a.Email,
			Role:     a.Role,
			Required: a.Required,
			Status:   expense.ApproverPending,
		})
	}

	if len(roster) == 0 {
		return nil
	}
	return roster
}

// Submit は下書きを提出し、承認者のスナップショットを確定します。
func (e *Engine) Submit(exp *expense.Expense, r *rule.Rule, manager *Manager, now time.Time) (*expense.Expense, error) {
	if exp == nil {
		return nil, expense.ErrExpenseNotFound
	}
	if exp.Status != expense.StatusDraft {
		return nil, fmt.Errorf("submit %s expense: %w", exp.Status, ErrInvalidTransition)
	}

	next := exp.Clone()
	submittedAt := now
	next.Status = expense.StatusSubmitted
	next.SubmittedAt = &submittedAt
	next.UpdatedAt = now
	next.Approvers = Roster(r, manager)
	next.RuleID = ""
	next.IsSequential = false
	next.MinimumApprovalPercentage = 0

	if r != nil && r.IsActive {
		next.RuleID = r.ID
		next.IsSequential = r.IsSequential
		next.MinimumApprovalPercentage = r.MinimumApprovalPercentage
	}

	if len(next.Approvers) == 0 && e.policy.NoApprovers == NoApproversAutoApprove {
		approvedAt := now
		next.Status = expense.StatusApproved
		next.ApprovedAt = &approvedAt
		next.ApprovalHistory = append(next.ApprovalHistory, expense.HistoryEntry{
			Approver:  expense.SystemApprover,
			Action:    expense.ActionApproved,
			Note:      AutoApproveNote,
			Timestamp: now,
		})
	}

	return next, nil
}

// Approve は approverID の承認を記録し、閾値を満たした場合は経費を承認済みにします。
// 閾値未達は正常な結果であり、経費は提出済みのまま返ります。
func (e *Engine) Approve(exp *expense.Expense, approverID, note string, now time.Time) (*expense.Expense, error) {
	idx, err := e.checkActor(exp, approverID)
	if err != nil {
		return nil, err
	}

	next := exp.Clone()
	e.record(next, idx, expense.ApproverApproved, expense.ActionApproved, note, now)

	if e.thresholdMet(next) {
		approvedAt := now
		next.Status = expense.StatusApproved
		next.ApprovedAt = &approvedAt
	}

	return next, nil
}

// Reject は approverID の却下を記録し、経費を却下済みにします。1 人の却下で全体が却下されます。
func (e *Engine) Reject(exp *expense.Expense, approverID, note string, now time.Time) (*expense.Expense, error) {
	idx, err := e.checkActor(exp, approverID)
	if err != nil {
		return nil, err
	}

	next := exp.Clone()
	e.record(next, idx, expense.ApproverRejected, expense.ActionRejected, note, now)

	rejectedAt := now
	next.Status = expense.StatusRejected
	next.RejectedAt = &rejectedAt
	next.ApprovedAt = nil

	return next, nil
}

// PendingApprovers は exp で現在判断できる承認者を返します。
// 順次承認では次の 1 人、並行承認では未判断者全員です。
func PendingApprovers(exp *expense.Expense) []expense.Approver {
	if exp == nil {
		return nil
	}
	idx := exp.ActionableApprovers()
	out := make([]expense.Approver, 0, len(idx))
	for _, i := range idx {
		out = append(out, exp.Approvers[i])
	}
	return out
}

// Progress は承認済み人数と承認者総数を返します。
func Progress(exp *expense.Expense) (approved, total int) {
	for _, a := range exp.Approvers {
		if a.Status == expense.ApproverApproved {
			approved++
		}
	}
	return approved, len(exp.Approvers)
}

func (e *Engine) checkActor(exp *expense.Expense, approverID string) (int, error) {
	if exp == nil {
		return -1, expense.ErrExpenseNotFound
	}
	if exp.Status != expense.StatusSubmitted {
		return -1, fmt.Errorf("decide on %s expense: %w", exp.Status, ErrInvalidTransition)
	}

	idx := exp.IndexOfApprover(strings.TrimSpace(approverID))
	if idx < 0 || exp.Approvers[idx].Status != expense.ApproverPending {
		return -1, fmt.Errorf("approver %q: %w", approverID, ErrApproverNotEligible)
	}

	if exp.IsSequential {
		for i := 0; i < idx; i++ {
			if exp.Approvers[i].Status == expense.ApproverPending {
				return -1, fmt.Errorf("approver %q waits for %q: %w", approverID, exp.Approvers[i].UserID, ErrOutOfSequence)
			}
		}
	}

	return idx, nil
}

func (e *Engine) record(exp *expense.Expense, idx int, status expense.ApproverStatus, action expense.Action, note string, now time.Time) {
	decidedAt := now
	exp.Approvers[idx].Status = status
	exp.Approvers[idx].DecidedAt = &decidedAt
	exp.ApprovalHistory = append(exp.ApprovalHistory, expense.HistoryEntry{
		ApproverID: exp.Approvers[idx].UserID,
		Approver:   exp.Approvers[idx].Name,
		Action:     action,
		Note:       strings.TrimSpace(note),
		Timestamp:  now,
	})
	exp.UpdatedAt = now
}

// thresholdMet は必須承認者条件と承認率条件を Policy.Threshold に従って組み合わせます。
// 必須承認者がいない場合の必須条件、承認率 0 の場合の承認率条件はいずれも成立とみなします。
func (e *Engine) thresholdMet(exp *expense.Expense) bool {
	requiredMet := true
	for _, a := range exp.Approvers {
		if a.Required && a.Status != expense.ApproverApproved {
			requiredMet = false
			break
		}
	}

	approved, total := Progress(exp)
	pct := exp.MinimumApprovalPercentage
	percentMet := pct <= 0 || approved*100 >= pct*total

	switch e.policy.Threshold {
	case ThresholdRequired:
		return requiredMet
	case ThresholdPercentage:
		return percentMet
	case ThresholdAny:
		return requiredMet || percentMet
	default:
		return requiredMet && percentMet
	}
}
