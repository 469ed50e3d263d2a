package user

import "errors"

var (
	// ErrUserNotFound はユーザーが存在しない場合に返却されます。
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailAlreadyExists はメールアドレス重複時に返却されます。
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrInvalidEmail はメールアドレスが不正な場合に返却されます。
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidName は名前が不正な場合に返却されます。
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidStatus はステータスが不正な場合に返却されます。
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidRole は権限が不正な場合に返却されます。
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidManager は上長の指定が不正な場合に返却されます。
	ErrInvalidManager = errors.New("invalid manager")
	// ErrInvalidID はIDが不正な場合に返却されます。
	ErrInvalidID = errors.New("invalid id")
	// ErrInvalidPageSize は一覧取得時のページサイズが不正な場合に返却されます。
	ErrInvalidPageSize = errors.New("invalid page size")
	// ErrInvalidPageToken は一覧取得時のページトークンが不正な場合に返却されます。
	ErrInvalidPageToken = errors.New("invalid page token")
)
