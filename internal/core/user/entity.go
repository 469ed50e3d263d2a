package user

import "time"

// Status はユーザーの状態を表します。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Role はユーザーの権限を表します。
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// User はユーザーエンティティです。
//
// ManagerID は上長への安定した参照です。ManagerName は表示名のみを保持する
// 既存レコードとの互換のために残しています。
type User struct {
	ID          string
	Email       string
	Name        string
	Role        Role
	ManagerID   *string
	ManagerName string
	Department  string
	Phone       string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive はユーザーが有効かどうかを返します。
func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}
