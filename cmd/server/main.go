package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	grpchandler "github.com/ogurasousui/codex-expense-approval/internal/adapters/grpc/handler"
	httphandler "github.com/ogurasousui/codex-expense-approval/internal/adapters/http/handler"
	"github.com/ogurasousui/codex-expense-approval/internal/adapters/repository/memory"
	"github.com/ogurasousui/codex-expense-approval/internal/adapters/repository/postgres"
	"github.com/ogurasousui/codex-expense-approval/internal/core/approval"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
	"github.com/ogurasousui/codex-expense-approval/internal/core/workflow"
	"github.com/ogurasousui/codex-expense-approval/internal/platform/config"
	"github.com/ogurasousui/codex-expense-approval/internal/platform/currency"
	pg "github.com/ogurasousui/codex-expense-approval/internal/platform/db/postgres"
	"github.com/ogurasousui/codex-expense-approval/internal/platform/logging"
	"github.com/ogurasousui/codex-expense-approval/internal/platform/server"
)

// txManager は各ユースケースが要求するトランザクション制御をまとめたものです。
type txManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type repositories struct {
	users    user.Repository
	rules    rule.Repository
	expenses expense.Repository
	tx       txManager
	close    func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfgPath := config.PathFromEnv()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to build logger")
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repos.close()

	policy, err := approvalPolicy(cfg.Approval)
	if err != nil {
		return err
	}
	engine := approval.NewEngine(policy)
	logger.Info().
		Str("no_approvers_policy", string(engine.Policy().NoApprovers)).
		Str("threshold_mode", string(engine.Policy().Threshold)).
		Msg("approval policy loaded")

	conv, err := newConverter(cfg.Currency)
	if err != nil {
		return err
	}
	logger.Info().
		Str("company_currency", cfg.Currency.CompanyCurrency).
		Strs("currencies", conv.Codes()).
		Msg("currency rate table loaded")

	userSvc := user.NewService(repos.users, nil, repos.tx)
	ruleSvc := rule.NewService(repos.rules, repos.users, nil, repos.tx)
	expenseSvc := expense.NewService(repos.expenses, nil, repos.tx,
		expense.WithConverter(conv),
		expense.WithCompanyCurrency(cfg.Currency.CompanyCurrency),
		expense.WithLogger(logger),
	)
	workflowSvc := workflow.NewService(repos.expenses, repos.rules, repos.users, engine, nil, repos.tx, logger)

	grpcServer := server.New(cfg.Server.ListenAddr,
		grpchandler.NewExpenseGrpcHandler(expenseSvc, workflowSvc, ruleSvc),
		grpchandler.NewUserGrpcHandler(userSvc),
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.ListenAddr).Str("storage", cfg.Storage.Driver).Msg("gRPC server listening")
		return grpcServer.Run(gctx)
	})

	if cfg.Server.HTTPAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		httpServer := &http.Server{
			Addr: cfg.Server.HTTPAddr,
			Handler: httphandler.NewRouter(httphandler.Services{
				Expenses: expenseSvc,
				Workflow: workflowSvc,
				Rules:    ruleSvc,
				Users:    userSvc,
			}, logger),
		}

		g.Go(func() error {
			logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info().Msg("servers stopped")
	return err
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		return &repositories{
			users:    memory.NewUserRepository(),
			rules:    memory.NewRuleRepository(),
			expenses: memory.NewExpenseRepository(),
			close:    func() {},
		}, nil
	}

	pool, err := pg.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize database pool: %w", err)
	}

	return &repositories{
		users:    postgres.NewUserRepository(pool),
		rules:    postgres.NewRuleRepository(pool),
		expenses: postgres.NewExpenseRepository(pool),
		tx:       pg.NewTransactionManager(pool, pg.WithIsoLevel(pgx.TxIsoLevel(cfg.Database.IsolationLevel))),
		close:    pool.Close,
	}, nil
}

// newConverter は設定のレート表から換算器を生成し、会社通貨が換算できることを確認します。
func newConverter(cfg config.CurrencyConfig) (*currency.StaticConverter, error) {
	conv := currency.NewStaticConverter()
	if len(cfg.Rates) > 0 {
		custom, err := currency.NewStaticConverterWithRates(cfg.Rates)
		if err != nil {
			return nil, fmt.Errorf("currency rates: %w", err)
		}
		conv = custom
	}
	if !conv.Supports(cfg.CompanyCurrency) {
		return nil, fmt.Errorf("company currency %s is not one of %s: %w",
			cfg.CompanyCurrency, strings.Join(conv.Codes(), ","), currency.ErrUnsupportedCurrency)
	}
	return conv, nil
}

func approvalPolicy(cfg config.ApprovalConfig) (approval.Policy, error) {
	noApprovers, err := approval.ParseNoApproversPolicy(cfg.NoApproversPolicy)
	if err != nil {
		return approval.Policy{}, err
	}
	threshold, err := approval.ParseThresholdMode(cfg.ThresholdMode)
	if err != nil {
		return approval.Policy{}, err
	}
	return approval.Policy{NoApprovers: noApprovers, Threshold: threshold}, nil
}
