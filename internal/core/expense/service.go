package expense

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Converter は金額を別通貨に換算します。
// Supports(code string) bool を併せて実装する場合、登録・集計時に通貨コードを検査します。
type Converter interface {
	Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

type currencySupporter interface {
	Supports(code string) bool
}

const (
	defaultListPageSize = 50
	maxListPageSize     = 200
	defaultCurrency     = "USD"
	// maxAmountScale と maxAmountDigits は NUMERIC(18,4) 列に収まる金額の範囲です。
	maxAmountScale  = 4
	maxAmountDigits = 14
)

// Service は経費の登録・照会ユースケースをまとめます。提出・承認・却下は workflow パッケージが扱います。
type Service struct {
	repo     Repository
	clock    Clock
	tx       TransactionManager
	conv     Converter
	currency string
	logger   zerolog.Logger
}

// UseCase は経費ユースケースの公開インターフェースです。
type UseCase interface {
	CreateExpense(ctx context.Context, in CreateExpenseInput) (*Expense, error)
	UpdateExpense(ctx context.Context, in UpdateExpenseInput) (*Expense, error)
	DeleteExpense(ctx context.Context, in DeleteExpenseInput) error
	GetExpense(ctx context.Context, in GetExpenseInput) (*Expense, error)
	ListExpenses(ctx context.Context, in ListExpensesInput) (*ListExpensesResult, error)
	ListPendingApprovals(ctx context.Context, in ListPendingApprovalsInput) ([]*Expense, error)
	Stats(ctx context.Context, in StatsInput) (*Stats, error)
}

// Option は Service の任意設定です。
type Option func(*Service)

// WithConverter は集計時に使う通貨換算を設定します。
func WithConverter(conv Converter) Option {
	return func(s *Service) { s.conv = conv }
}

// WithCompanyCurrency は集計の既定通貨を設定します。
func WithCompanyCurrency(code string) Option {
	return func(s *Service) {
		if normalized, err := normalizeCurrency(code); err == nil {
			s.currency = normalized
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager, opts ...Option) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	s := &Service{
		repo:     repo,
		clock:    clock,
		tx:       tx,
		currency: defaultCurrency,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateExpenseInput は経費作成時の入力です。
type CreateExpenseInput struct {
	EmployeeID    string
	EmployeeName  string
	EmployeeEmail string
	Description   string
	Category      string
	Amount        decimal.Decimal
	Currency      string
	ExpenseDate   time.Time
	PaidBy        string
	Remarks       string
}

// UpdateExpenseInput は下書き更新時の入力です。nil のフィールドは変更しません。
type UpdateExpenseInput struct {
	ID          string
	Description *string
	Category    *string
	Amount      *decimal.Decimal
	Currency    *string
	ExpenseDate *time.Time
	PaidBy      *string
	Remarks     *string
}

// DeleteExpenseInput は下書き削除時の入力です。
type DeleteExpenseInput struct {
	ID string
}

// GetExpenseInput は経費取得時の入力です。
type GetExpenseInput struct {
	ID string
}

// ListExpensesInput は一覧取得時の入力です。
type ListExpensesInput struct {
	EmployeeID string
	Status     *Status
	PageSize   int
	PageToken  string
}

// ListExpensesResult は一覧取得結果を表します。
type ListExpensesResult struct {
	Expenses      []*Expense
	NextPageToken string
}

// ListPendingApprovalsInput は承認待ち一覧の入力です。
type ListPendingApprovalsInput struct {
	ApproverID string
}

// StatsInput は集計の入力です。Currency が空の場合は会社通貨で集計します。
type StatsInput struct {
	EmployeeID string
	Currency   string
}

// Stats はステータス別の件数と換算後の合計金額です。
type Stats struct {
	Currency       string
	TotalExpenses  int
	TotalAmount    decimal.Decimal
	ApprovedAmount decimal.Decimal
	PendingAmount  decimal.Decimal
	DraftAmount    decimal.Decimal
	RejectedAmount decimal.Decimal
	ApprovedCount  int
	PendingCount   int
	DraftCount     int
	RejectedCount  int
}

// CreateExpense は下書き状態の経費を作成します。
func (s *Service) CreateExpense(ctx context.Context, in CreateExpenseInput) (*Expense, error) {
	employeeID := strings.TrimSpace(in.EmployeeID)
	if employeeID == "" {
		return nil, ErrInvalidEmployee
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, ErrInvalidDescription
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, ErrInvalidCategory
	}

	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	currency, err := s.currencyCode(in.Currency)
	if err != nil {
		return nil, err
	}

	if in.ExpenseDate.IsZero() {
		return nil, ErrInvalidExpenseDate
	}

	var created *Expense
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		e := &Expense{
			EmployeeID:    employeeID,
			EmployeeName:  strings.TrimSpace(in.EmployeeName),
			EmployeeEmail: strings.ToLower(strings.TrimSpace(in.EmployeeEmail)),
			Description:   description,
			Category:      category,
			Amount:        in.Amount,
			Currency:      currency,
			ExpenseDate:   in.ExpenseDate.UTC(),
			PaidBy:        strings.TrimSpace(in.PaidBy),
			Remarks:       strings.TrimSpace(in.Remarks),
			Status:        StatusDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
			Version:       1,
		}

		result, err := s.repo.Create(txCtx, e)
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("expense_id", created.ID).Str("employee_id", created.EmployeeID).Msg("expense draft created")
	return created, nil
}

// UpdateExpense は下書きの内容を更新します。提出後の経費は ErrInvalidTransition です。
func (s *Service) UpdateExpense(ctx context.Context, in UpdateExpenseInput) (*Expense, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var updated *Expense
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, in.ID)
		if err != nil {
			return err
		}

		if existing.Status != StatusDraft {
			return fmt.Errorf("update %s expense: %w", existing.Status, ErrInvalidTransition)
		}

		if in.Description != nil {
			description := strings.TrimSpace(*in.Description)
			if description == "" {
				return ErrInvalidDescription
			}
			existing.Description = description
		}

		if in.Category != nil {
			category := strings.TrimSpace(*in.Category)
			if category == "" {
				return ErrInvalidCategory
			}
			existing.Category = category
		}

		if in.Amount != nil {
			if err := validateAmount(*in.Amount); err != nil {
				return err
			}
			existing.Amount = *in.Amount
		}

		if in.Currency != nil {
			currency, err := s.currencyCode(*in.Currency)
			if err != nil {
				return err
			}
			existing.Currency = currency
		}

		if in.ExpenseDate != nil {
			if in.ExpenseDate.IsZero() {
				return ErrInvalidExpenseDate
			}
			existing.ExpenseDate = in.ExpenseDate.UTC()
		}

		if in.PaidBy != nil {
			existing.PaidBy = strings.TrimSpace(*in.PaidBy)
		}

		if in.Remarks != nil {
			existing.Remarks = strings.TrimSpace(*in.Remarks)
		}

		existing.UpdatedAt = s.clock.Now()

		result, err := s.repo.Update(txCtx, existing)
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteExpense は下書きを削除します。
func (s *Service) DeleteExpense(ctx context.Context, in DeleteExpenseInput) error {
	if strings.TrimSpace(in.ID) == "" {
		return fmt.Errorf("id: %w", ErrInvalidID)
	}

	return s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, in.ID)
		if err != nil {
			return err
		}
		if existing.Status != StatusDraft {
			return fmt.Errorf("delete %s expense: %w", existing.Status, ErrInvalidTransition)
		}
		return s.repo.Delete(txCtx, in.ID)
	})
}

// GetExpense は ID で経費を取得します。
func (s *Service) GetExpense(ctx context.Context, in GetExpenseInput) (*Expense, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var found *Expense
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, err := s.repo.FindByID(txCtx, in.ID)
		if err != nil {
			return err
		}
		found = result
		return nil
	}); err != nil {
		return nil, err
	}

	return found, nil
}

// ListExpenses は経費の一覧を取得します。
func (s *Service) ListExpenses(ctx context.Context, in ListExpensesInput) (*ListExpensesResult, error) {
	limit, err := normalizePageSize(in.PageSize)
	if err != nil {
		return nil, err
	}

	offset, err := parsePageToken(in.PageToken)
	if err != nil {
		return nil, err
	}

	var statusPtr *Status
	if in.Status != nil {
		if !isValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		status := *in.Status
		statusPtr = &status
	}

	var (
		expenses  []*Expense
		nextToken string
	)

	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, token, err := s.repo.List(txCtx, ListExpensesFilter{
			EmployeeID: strings.TrimSpace(in.EmployeeID),
			Status:     statusPtr,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			return err
		}
		expenses = result
		nextToken = token
		return nil
	}); err != nil {
		return nil, err
	}

	return &ListExpensesResult{Expenses: expenses, NextPageToken: nextToken}, nil
}

// ListPendingApprovals は approverID が現時点で判断できる提出済み経費を返します。
// 順次承認の経費は、approverID の順番が来ているものだけを含みます。
func (s *Service) ListPendingApprovals(ctx context.Context, in ListPendingApprovalsInput) ([]*Expense, error) {
	approverID := strings.TrimSpace(in.ApproverID)
	if approverID == "" {
		return nil, ErrInvalidApprover
	}

	var pending []*Expense
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		candidates, err := s.repo.ListSubmittedByApprover(txCtx, approverID)
		if err != nil {
			return err
		}
		pending = make([]*Expense, 0, len(candidates))
		for _, e := range candidates {
			if e.IsActionableBy(approverID) {
				pending = append(pending, e)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return pending, nil
}

// Stats はステータス別の件数と合計金額を返します。金額はすべて集計通貨に換算してから合算し、
// 換算できない経費があれば集計全体を失敗させます。
func (s *Service) Stats(ctx context.Context, in StatsInput) (*Stats, error) {
	target := s.currency
	if strings.TrimSpace(in.Currency) != "" {
		normalized, err := s.currencyCode(in.Currency)
		if err != nil {
			return nil, err
		}
		target = normalized
	}

	stats := &Stats{Currency: target}
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		offset := 0
		for {
			page, next, err := s.repo.List(txCtx, ListExpensesFilter{
				EmployeeID: strings.TrimSpace(in.EmployeeID),
				Limit:      maxListPageSize,
				Offset:     offset,
			})
			if err != nil {
				return err
			}
			for _, e := range page {
				if err := s.accumulate(stats, e); err != nil {
					return err
				}
			}
			if next == "" {
				return nil
			}
			if offset, err = strconv.Atoi(next); err != nil {
				return fmt.Errorf("stats page token %q: %w", next, ErrInvalidPageToken)
			}
		}
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *Service) accumulate(stats *Stats, e *Expense) error {
	amount, err := s.convert(e, stats.Currency)
	if err != nil {
		return err
	}

	stats.TotalExpenses++
	stats.TotalAmount = stats.TotalAmount.Add(amount)

	switch e.Status {
	case StatusApproved:
		stats.ApprovedCount++
		stats.ApprovedAmount = stats.ApprovedAmount.Add(amount)
	case StatusSubmitted:
		stats.PendingCount++
		stats.PendingAmount = stats.PendingAmount.Add(amount)
	case StatusDraft:
		stats.DraftCount++
		stats.DraftAmount = stats.DraftAmount.Add(amount)
	case StatusRejected:
		stats.RejectedCount++
		stats.RejectedAmount = stats.RejectedAmount.Add(amount)
	}
	return nil
}

func (s *Service) convert(e *Expense, to string) (decimal.Decimal, error) {
	if s.conv == nil || e.Currency == to {
		return e.Amount, nil
	}
	converted, err := s.conv.Convert(e.Amount, e.Currency, to)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("expense_id", e.ID).
			Str("from", e.Currency).
			Str("to", to).
			Msg("currency conversion failed")
		return decimal.Zero, fmt.Errorf("convert expense %s from %s to %s: %w: %w", e.ID, e.Currency, to, ErrUnsupportedCurrency, err)
	}
	return converted, nil
}

// currencyCode は通貨コードを正規化し、換算器が扱えるかを確認します。
func (s *Service) currencyCode(raw string) (string, error) {
	code, err := normalizeCurrency(raw)
	if err != nil {
		return "", err
	}
	if sup, ok := s.conv.(currencySupporter); ok && !sup.Supports(code) {
		return "", fmt.Errorf("currency %s: %w", code, ErrUnsupportedCurrency)
	}
	return code, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.Exponent() < -maxAmountScale && !amount.Equal(amount.Truncate(maxAmountScale)) {
		return fmt.Errorf("amount %s has more than %d decimal places: %w", amount.String(), maxAmountScale, ErrInvalidAmount)
	}
	if amount.GreaterThanOrEqual(decimal.New(1, maxAmountDigits)) {
		return fmt.Errorf("amount %s exceeds %d integer digits: %w", amount.String(), maxAmountDigits, ErrInvalidAmount)
	}
	return nil
}

func normalizeCurrency(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

func isValidStatus(status Status) bool {
	switch status {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

func normalizePageSize(pageSize int) (int, error) {
	if pageSize <= 0 {
		return defaultListPageSize, nil
	}
	if pageSize > maxListPageSize {
		return 0, ErrInvalidPageSize
	}
	return pageSize, nil
}

func parsePageToken(token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, ErrInvalidPageToken
	}

	return offset, nil
}
