package handler

import (
	"context"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/transport"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

// UserGrpcHandler は UserService の gRPC 実装です。
type UserGrpcHandler struct {
	svc user.UseCase
}

var _ UserServiceServer = (*UserGrpcHandler)(nil)

// NewUserGrpcHandler は UserGrpcHandler を生成します。
func NewUserGrpcHandler(svc user.UseCase) *UserGrpcHandler {
	return &UserGrpcHandler{svc: svc}
}

type updateUserRequest struct {
	ID string `json:"id"`
	transport.UpdateUserRequest
}

type listUsersRequest struct {
	PageSize  int    `json:"pageSize"`
	PageToken string `json:"pageToken"`
	Status    string `json:"status"`
	Role      string `json:"role"`
}

// CreateUser はユーザーを作成します。
func (h *UserGrpcHandler) CreateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body transport.CreateUserRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	created, err := h.svc.CreateUser(ctx, body.ToInput())
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromUser(created))
}

// UpdateUser はユーザー情報を更新します。
func (h *UserGrpcHandler) UpdateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body updateUserRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	updated, err := h.svc.UpdateUser(ctx, body.ToInput(body.ID))
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromUser(updated))
}

// DeactivateUser はユーザーを無効化します。
func (h *UserGrpcHandler) DeactivateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body idRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	deactivated, err := h.svc.DeactivateUser(ctx, user.DeactivateUserInput{ID: body.ID})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromUser(deactivated))
}

// GetUser はユーザーを取得します。
func (h *UserGrpcHandler) GetUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body idRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	found, err := h.svc.GetUser(ctx, user.GetUserInput{ID: body.ID})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromUser(found))
}

// ListUsers はユーザーの一覧を取得します。
func (h *UserGrpcHandler) ListUsers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body listUsersRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}

	in := user.ListUsersInput{PageSize: body.PageSize, PageToken: body.PageToken}
	if raw := strings.ToLower(strings.TrimSpace(body.Status)); raw != "" {
		status := user.Status(raw)
		in.Status = &status
	}
	if raw := strings.ToLower(strings.TrimSpace(body.Role)); raw != "" {
		role := user.Role(raw)
		in.Role = &role
	}

	result, err := h.svc.ListUsers(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(transport.FromUsers(result.Users, result.NextPageToken))
}
