package rule

import "time"

// Rule は従業員ごとの承認ルールです。
type Rule struct {
	ID                        string
	UserID                    string
	Description               string
	ManagerID                 *string
	IsManagerApprover         bool
	Approvers                 []Approver
	IsSequential              bool
	MinimumApprovalPercentage int
	IsActive                  bool
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Approver はルールに設定された承認者です。並び順は IsSequential のときのみ意味を持ちます。
type Approver struct {
	UserID   string
	Name     string
	Email    string
	Role     string
	Required bool
}

// Clone は r のディープコピーを返します。
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	clone := *r
	if r.ManagerID != nil {
		id := *r.ManagerID
		clone.ManagerID = &id
	}
	if r.Approvers != nil {
		clone.Approvers = append([]Approver(nil), r.Approvers...)
	}
	return &clone
}
