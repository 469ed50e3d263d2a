package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"github.com/ogurasousui/codex-expense-approval/internal/platform/config"
)

// BuildPoolConfig は database 設定から pgxpool.Config を構築します。
func BuildPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	return poolCfg, nil
}

// NewPool は pgxpool.Pool を生成し疎通確認を行います。クエリの警告以上は logger に出力します。
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := BuildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	poolCfg.ConnConfig.Tracer = NewTracer(logger, tracelog.LogLevelWarn)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return pool, nil
}

// NewTracer は pgx のクエリトレースを zerolog に流す Tracer を返します。
func NewTracer(logger zerolog.Logger, level tracelog.LogLevel) *tracelog.TraceLog {
	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(_ context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
			logger.WithLevel(zerologLevel(lvl)).Fields(data).Str("component", "pgx").Msg(msg)
		}),
		LogLevel: level,
	}
}

func zerologLevel(lvl tracelog.LogLevel) zerolog.Level {
	switch lvl {
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelInfo:
		return zerolog.InfoLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	case tracelog.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}
