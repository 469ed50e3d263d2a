package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

// UserRepository は user.Repository のメモリ実装です。
type UserRepository struct {
	t *table[userRecord]
}

// NewUserRepository は空の UserRepository を生成します。
func NewUserRepository() *UserRepository {
	return &UserRepository{t: newTable[userRecord]("user")}
}

// Create はユーザーを保存します。ID が空の場合は採番します。
func (r *UserRepository) Create(_ context.Context, u *user.User) (*user.User, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	rec := toUserRecord(u)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, ok, err := r.t.getLocked(rec.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("memory: user %s already exists", rec.ID)
	}
	if r.emailTakenLocked(rec.Email, rec.ID) {
		return nil, user.ErrEmailAlreadyExists
	}
	if err := r.t.putLocked(rec.ID, rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// Update は既存ユーザーを置き換えます。
func (r *UserRepository) Update(_ context.Context, u *user.User) (*user.User, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	if _, ok, err := r.t.getLocked(u.ID); err != nil {
		return nil, err
	} else if !ok {
		return nil, user.ErrUserNotFound
	}

	rec := toUserRecord(u)
	if r.emailTakenLocked(rec.Email, rec.ID) {
		return nil, user.ErrEmailAlreadyExists
	}
	if err := r.t.putLocked(rec.ID, rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// FindByID は ID でユーザーを取得します。
func (r *UserRepository) FindByID(_ context.Context, id string) (*user.User, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	rec, ok, err := r.t.getLocked(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return rec.toDomain(), nil
}

// FindByEmail はメールアドレスでユーザーを取得します。大文字小文字は区別しません。
func (r *UserRepository) FindByEmail(_ context.Context, email string) (*user.User, error) {
	return r.findFirst(func(rec userRecord) bool {
		return strings.EqualFold(rec.Email, email)
	})
}

// FindByName は表示名が一致するユーザーを返します。同名の場合は最も新しいユーザーです。
func (r *UserRepository) FindByName(_ context.Context, name string) (*user.User, error) {
	name = strings.TrimSpace(name)
	return r.findFirst(func(rec userRecord) bool {
		return rec.Name == name
	})
}

// List はフィルタ条件でユーザー一覧を新しい順に返します。
func (r *UserRepository) List(_ context.Context, filter user.ListUsersFilter) ([]*user.User, string, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	var users []*user.User
	err := r.t.scanLocked(func(rec userRecord) bool {
		if filter.Status != nil && user.Status(rec.Status) != *filter.Status {
			return true
		}
		if filter.Role != nil && user.Role(rec.Role) != *filter.Role {
			return true
		}
		users = append(users, rec.toDomain())
		return true
	})
	if err != nil {
		return nil, "", err
	}

	items, next := page(users, filter.Limit, filter.Offset)
	return items, next, nil
}

func (r *UserRepository) findFirst(match func(userRecord) bool) (*user.User, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()

	var found *user.User
	err := r.t.scanLocked(func(rec userRecord) bool {
		if match(rec) {
			found = rec.toDomain()
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, user.ErrUserNotFound
	}
	return found, nil
}

func (r *UserRepository) emailTakenLocked(email, exceptID string) bool {
	taken := false
	_ = r.t.scanLocked(func(rec userRecord) bool {
		if rec.ID != exceptID && strings.EqualFold(rec.Email, email) {
			taken = true
			return false
		}
		return true
	})
	return taken
}
