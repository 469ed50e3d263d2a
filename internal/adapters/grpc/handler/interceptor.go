package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor は unary 呼び出しのメソッド、ステータス、所要時間を記録します。
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := logger.Info()
		switch code {
		case codes.OK:
		case codes.Internal, codes.Unknown:
			event = logger.Error().Err(err)
		default:
			event = logger.Warn().Str("reason", ReasonOf(err))
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("grpc request")

		return resp, err
	}
}

// RecoveryInterceptor はハンドラの panic を Internal エラーに変換します。
func RecoveryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("grpc handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
