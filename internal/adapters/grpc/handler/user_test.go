package handler

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

type stubUserUseCase struct {
	createInput user.CreateUserInput
	createErr   error
	createOut   *user.User

	updateInput user.UpdateUserInput
	updateErr   error
	updateOut   *user.User

	deactivateInput user.DeactivateUserInput
	deactivateErr   error
	deactivateOut   *user.User

	listInput user.ListUsersInput
	listOut   *user.ListUsersResult
}

func (s *stubUserUseCase) CreateUser(ctx context.Context, in user.CreateUserInput) (*user.User, error) {
	s.createInput = in
	return s.createOut, s.createErr
}

func (s *stubUserUseCase) UpdateUser(ctx context.Context, in user.UpdateUserInput) (*user.User, error) {
	s.updateInput = in
	return s.updateOut, s.updateErr
}

func (s *stubUserUseCase) DeactivateUser(ctx context.Context, in user.DeactivateUserInput) (*user.User, error) {
	s.deactivateInput = in
	return s.deactivateOut, s.deactivateErr
}

func (s *stubUserUseCase) GetUser(ctx context.Context, in user.GetUserInput) (*user.User, error) {
	return nil, user.ErrUserNotFound
}

func (s *stubUserUseCase) ListUsers(ctx context.Context, in user.ListUsersInput) (*user.ListUsersResult, error) {
	s.listInput = in
	return s.listOut, nil
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()

	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("failed to build struct: %v", err)
	}
	return s
}

func TestUserGrpcHandler_CreateUser(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stub := &stubUserUseCase{
		createOut: &user.User{
			ID:        "user-1",
			Email:     "user@example.com",
			Name:      "User",
			Role:      user.RoleEmployee,
			Status:    user.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	handler := NewUserGrpcHandler(stub)

	resp, err := handler.CreateUser(context.Background(), mustStruct(t, map[string]any{"email": "user@example.com", "name": "User", "role": "EMPLOYEE"}))
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if stub.createInput.Email != "user@example.com" || stub.createInput.Role != user.RoleEmployee {
		t.Errorf("unexpected input passed through: %+v", stub.createInput)
	}

	if got := resp.GetFields()["id"].GetStringValue(); got != "user-1" {
		t.Errorf("expected id user-1, got %s", got)
	}
	if !resp.GetFields()["isActive"].GetBoolValue() {
		t.Errorf("expected isActive true")
	}
}

func TestUserGrpcHandler_CreateUser_ErrorMapping(t *testing.T) {
	t.Parallel()

	stub := &stubUserUseCase{createErr: user.ErrEmailAlreadyExists}
	handler := NewUserGrpcHandler(stub)

	_, err := handler.CreateUser(context.Background(), mustStruct(t, map[string]any{}))
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", status.Code(err))
	}
}

func TestUserGrpcHandler_UpdateUser_ClearsManager(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stub := &stubUserUseCase{
		updateOut: &user.User{ID: "user-1", Name: "Updated", Status: user.StatusInactive, CreatedAt: now, UpdatedAt: now},
	}

	handler := NewUserGrpcHandler(stub)

	resp, err := handler.UpdateUser(context.Background(), mustStruct(t, map[string]any{
		"id":        "user-1",
		"name":      "Updated",
		"status":    "inactive",
		"managerId": nil,
	}))
	if err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}

	if stub.updateInput.Status == nil || *stub.updateInput.Status != user.StatusInactive {
		t.Fatalf("expected status to be converted to domain inactive")
	}
	if !stub.updateInput.ManagerIDSet || stub.updateInput.ManagerID != nil {
		t.Fatalf("expected managerId null to clear the manager, got %+v", stub.updateInput)
	}

	if got := resp.GetFields()["status"].GetStringValue(); got != "inactive" {
		t.Fatalf("expected response status inactive, got %s", got)
	}
}

func TestUserGrpcHandler_DeactivateUser_Error(t *testing.T) {
	t.Parallel()

	stub := &stubUserUseCase{deactivateErr: user.ErrUserNotFound}
	handler := NewUserGrpcHandler(stub)

	_, err := handler.DeactivateUser(context.Background(), mustStruct(t, map[string]any{"id": "missing"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", status.Code(err))
	}
	if stub.deactivateInput.ID != "missing" {
		t.Fatalf("expected id passed through, got %s", stub.deactivateInput.ID)
	}
}

func TestUserGrpcHandler_ValidatesRequest(t *testing.T) {
	t.Parallel()

	handler := NewUserGrpcHandler(&stubUserUseCase{})

	_, err := handler.GetUser(context.Background(), nil)
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument status, got %v", err)
	}
}

func TestUserGrpcHandler_ListUsers(t *testing.T) {
	t.Parallel()

	stub := &stubUserUseCase{listOut: &user.ListUsersResult{Users: []*user.User{{ID: "u-1"}}, NextPageToken: "1"}}
	handler := NewUserGrpcHandler(stub)

	resp, err := handler.ListUsers(context.Background(), mustStruct(t, map[string]any{"pageSize": 1, "status": "Active", "role": "manager"}))
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}

	if stub.listInput.PageSize != 1 || stub.listInput.Status == nil || *stub.listInput.Status != user.StatusActive {
		t.Fatalf("unexpected list input: %+v", stub.listInput)
	}
	if stub.listInput.Role == nil || *stub.listInput.Role != user.RoleManager {
		t.Fatalf("expected role filter, got %v", stub.listInput.Role)
	}
	if got := resp.GetFields()["nextPageToken"].GetStringValue(); got != "1" {
		t.Fatalf("expected next page token 1, got %s", got)
	}
	if n := len(resp.GetFields()["users"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
}
