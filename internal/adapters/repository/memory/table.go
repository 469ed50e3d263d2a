// Package memory はプロセス内のキーバリューストアによるリポジトリ実装です。
// レコードは JSON で保持するため、読み出しは常に独立したコピーになります。
package memory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// table は ID をキーに JSON レコードを保持します。order は挿入順です。
// *Locked メソッドは呼び出し側が mu を保持している前提です。
type table[R any] struct {
	name  string
	mu    sync.RWMutex
	rows  map[string][]byte
	order []string
}

func newTable[R any](name string) *table[R] {
	return &table[R]{name: name, rows: make(map[string][]byte)}
}

func (t *table[R]) getLocked(id string) (R, bool, error) {
	var rec R
	raw, ok := t.rows[id]
	if !ok {
		return rec, false, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false, fmt.Errorf("memory: decode %s %s: %w", t.name, id, err)
	}
	return rec, true, nil
}

func (t *table[R]) putLocked(id string, rec R) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: encode %s %s: %w", t.name, id, err)
	}
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = raw
	return nil
}

func (t *table[R]) removeLocked(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// scanLocked は新しい順にレコードを走査します。fn が false を返すと打ち切ります。
func (t *table[R]) scanLocked(fn func(R) bool) error {
	for i := len(t.order) - 1; i >= 0; i-- {
		rec, ok, err := t.getLocked(t.order[i])
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

// page は絞り込み済みの一覧から offset/limit の範囲と次ページトークンを返します。
func page[T any](items []T, limit, offset int) ([]T, string) {
	if offset >= len(items) {
		return []T{}, ""
	}
	end := offset + limit
	if end >= len(items) {
		return items[offset:], ""
	}
	return items[offset:end], strconv.Itoa(end)
}
