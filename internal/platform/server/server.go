package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/grpc/handler"
)

// Server は gRPC サーバーのライフサイクルを管理します。
type Server struct {
	listenAddr string
	grpcServer *grpc.Server
	health     *health.Server
	logger     zerolog.Logger
}

// New は指定されたアドレスで待ち受ける gRPC サーバーを構築します。
// 経費サービス、ユーザーサービス、grpc.health.v1.Health を登録し、ログと panic 回復のインターセプタを設定します。
func New(listenAddr string, expenses handler.ExpenseServiceServer, users handler.UserServiceServer, logger zerolog.Logger, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			handler.RecoveryInterceptor(logger),
			handler.LoggingInterceptor(logger),
		),
	}, opts...)
	srv := grpc.NewServer(opts...)

	handler.RegisterExpenseServiceServer(srv, expenses)
	handler.RegisterUserServiceServer(srv, users)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	healthSrv.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(handler.UserServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		listenAddr: listenAddr,
		grpcServer: srv,
		health:     healthSrv,
		logger:     logger,
	}
}

// Run はサーバーを起動し、コンテキストがキャンセルされると GracefulStop します。
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listenAddr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve は lis で待ち受けます。テストでは bufconn のリスナーを渡します。
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	return nil
}

// GracefulStop はヘルスチェックを NOT_SERVING にしてからサーバーを安全に停止します。
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
