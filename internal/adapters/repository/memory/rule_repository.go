package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
)

// RuleRepository は rule.Repository のメモリ実装です。
type RuleRepository struct {
	t *table[ruleRecord]
}

// NewRuleRepository は空の RuleRepository を生成します。
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{t: newTable[ruleRecord]("rule")}
}

// Create はルールを保存します。ID が空の場合は採番します。
func (r *RuleRepository) Create(_ context.Context, in *rule.Rule) (*rule.Rule, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	rec := toRuleRecord(in)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.IsActive && r.hasOtherActiveLocked(rec.UserID, rec.ID) {
		return nil, rule.ErrActiveRuleExists
	}
	if err := r.t.putLocked(rec.ID, rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Update は既存ルールを置き換えます。
func (r *RuleRepository) Update(_ context.Context, in *rule.Rule) (*rule.Rule, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	if _, ok, err := r.t.getLocked(in.ID); err != nil {
		return nil, err
	} else if !ok {
		return nil, rule.ErrRuleNotFound
	}

	rec := toRuleRecord(in)
	if rec.IsActive && r.hasOtherActiveLocked(rec.UserID, rec.ID) {
		return nil, rule.ErrActiveRuleExists
	}
	if err := r.t.putLocked(rec.ID, rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Delete はルールを削除します。
func (r *RuleRepository) Delete(_ context.Context, id string) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	if !r.t.removeLocked(id) {
		return rule.ErrRuleNotFound
	}
	return nil
}

// FindByID は ID でルールを取得します。
func (r *RuleRepository) FindByID(_ context.Context, id string) (*rule.Rule, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	rec, ok, err := r.t.getLocked(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rule.ErrRuleNotFound
	}
	return rec.toDomain(), nil
}

// FindActiveByUserID は対象ユーザーの有効なルールのうち最も新しいものを返します。
func (r *RuleRepository) FindActiveByUserID(_ context.Context, userID string) (*rule.Rule, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	var found *rule.Rule
	err := r.t.scanLocked(func(rec ruleRecord) bool {
		if rec.UserID == userID && rec.IsActive {
			found = rec.toDomain()
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, rule.ErrRuleNotFound
	}
	return found, nil
}

// List はフィルタ条件でルール一覧を新しい順に返します。
func (r *RuleRepository) List(_ context.Context, filter rule.ListRulesFilter) ([]*rule.Rule, string, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	var rules []*rule.Rule
	err := r.t.scanLocked(func(rec ruleRecord) bool {
		if filter.UserID != "" && rec.UserID != filter.UserID {
			return true
		}
		if filter.ActiveOnly && !rec.IsActive {
			return true
		}
		rules = append(rules, rec.toDomain())
		return true
	})
	if err != nil {
		return nil, "", err
	}

	items, next := page(rules, filter.Limit, filter.Offset)
	return items, next, nil
}

func (r *RuleRepository) hasOtherActiveLocked(userID, exceptID string) bool {
	exists := false
	_ = r.t.scanLocked(func(rec ruleRecord) bool {
		if rec.ID != exceptID && rec.UserID == userID && rec.IsActive {
			exists = true
			return false
		}
		return true
	})
	return exists
}
