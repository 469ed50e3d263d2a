package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// サービスの完全修飾名。
const (
	ServiceName     = "expense.v1.ExpenseService"
	UserServiceName = "expense.v1.UserService"
)

// ExpenseServiceServer は expense.v1.ExpenseService のサーバー側インターフェースです。
// メッセージは google.protobuf.Struct で、キーは HTTP API と同じ camelCase です。
type ExpenseServiceServer interface {
	CreateExpense(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetExpense(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListExpenses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitExpense(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveExpense(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectExpense(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPendingApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetExpenseStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateApprovalRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateApprovalRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApprovalRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UserServiceServer は expense.v1.UserService のサーバー側インターフェースです。
type UserServiceServer interface {
	CreateUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeactivateUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUsers(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall[S any] func(srv S, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler[S any](service, method string, call unaryCall[S]) grpc.MethodHandler {
	fullMethod := "/" + service + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func expenseMethod(name string, call unaryCall[ExpenseServiceServer]) grpc.MethodDesc {
	return grpc.MethodDesc{MethodName: name, Handler: unaryHandler(ServiceName, name, call)}
}

func userMethod(name string, call unaryCall[UserServiceServer]) grpc.MethodDesc {
	return grpc.MethodDesc{MethodName: name, Handler: unaryHandler(UserServiceName, name, call)}
}

// ExpenseServiceDesc は ExpenseService の grpc.ServiceDesc です。
var ExpenseServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExpenseServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		expenseMethod("CreateExpense", ExpenseServiceServer.CreateExpense),
		expenseMethod("GetExpense", ExpenseServiceServer.GetExpense),
		expenseMethod("ListExpenses", ExpenseServiceServer.ListExpenses),
		expenseMethod("SubmitExpense", ExpenseServiceServer.SubmitExpense),
		expenseMethod("ApproveExpense", ExpenseServiceServer.ApproveExpense),
		expenseMethod("RejectExpense", ExpenseServiceServer.RejectExpense),
		expenseMethod("ListPendingApprovals", ExpenseServiceServer.ListPendingApprovals),
		expenseMethod("GetExpenseStats", ExpenseServiceServer.GetExpenseStats),
		expenseMethod("CreateApprovalRule", ExpenseServiceServer.CreateApprovalRule),
		expenseMethod("UpdateApprovalRule", ExpenseServiceServer.UpdateApprovalRule),
		expenseMethod("GetApprovalRule", ExpenseServiceServer.GetApprovalRule),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "expense/v1/expense.proto",
}

// UserServiceDesc は UserService の grpc.ServiceDesc です。
var UserServiceDesc = grpc.ServiceDesc{
	ServiceName: UserServiceName,
	HandlerType: (*UserServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		userMethod("CreateUser", UserServiceServer.CreateUser),
		userMethod("GetUser", UserServiceServer.GetUser),
		userMethod("UpdateUser", UserServiceServer.UpdateUser),
		userMethod("DeactivateUser", UserServiceServer.DeactivateUser),
		userMethod("ListUsers", UserServiceServer.ListUsers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "expense/v1/user.proto",
}

// RegisterExpenseServiceServer は srv を s に登録します。
func RegisterExpenseServiceServer(s grpc.ServiceRegistrar, srv ExpenseServiceServer) {
	s.RegisterService(&ExpenseServiceDesc, srv)
}

// RegisterUserServiceServer は srv を s に登録します。
func RegisterUserServiceServer(s grpc.ServiceRegistrar, srv UserServiceServer) {
	s.RegisterService(&UserServiceDesc, srv)
}

// ServiceClient は Struct メッセージのサービスを呼び出すクライアントです。
type ServiceClient struct {
	cc      grpc.ClientConnInterface
	service string
}

// NewExpenseServiceClient は ExpenseService のクライアントを生成します。
func NewExpenseServiceClient(cc grpc.ClientConnInterface) *ServiceClient {
	return &ServiceClient{cc: cc, service: ServiceName}
}

// NewUserServiceClient は UserService のクライアントを生成します。
func NewUserServiceClient(cc grpc.ClientConnInterface) *ServiceClient {
	return &ServiceClient{cc: cc, service: UserServiceName}
}

// Call は method を呼び出します。
func (c *ServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+c.service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
