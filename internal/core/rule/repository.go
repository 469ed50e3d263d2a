package rule

import "context"

// Repository は承認ルール永続化の抽象です。
type Repository interface {
	Create(ctx context.Context, rule *Rule) (*Rule, error)
	Update(ctx context.Context, rule *Rule) (*Rule, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Rule, error)
	// FindActiveByUserID は対象ユーザーの有効なルールを返します。存在しない場合は ErrRuleNotFound です。
	FindActiveByUserID(ctx context.Context, userID string) (*Rule, error)
	List(ctx context.Context, filter ListRulesFilter) ([]*Rule, string, error)
}

// ListRulesFilter は一覧取得用フィルタです。
type ListRulesFilter struct {
	UserID     string
	ActiveOnly bool
	Limit      int
	Offset     int
}
