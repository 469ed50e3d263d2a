package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ogurasousui/codex-expense-approval/internal/core/approval"
	"github.com/ogurasousui/codex-expense-approval/internal/core/expense"
	"github.com/ogurasousui/codex-expense-approval/internal/core/rule"
	"github.com/ogurasousui/codex-expense-approval/internal/core/user"
)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

type fakeExpenses struct {
	mu       sync.Mutex
	expenses map[string]*expense.Expense
	// staleWrites は次の Update を何回 ErrStaleExpense で失敗させるかです。
	staleWrites int
	updates     int
}

func newFakeExpenses(seed ...*expense.Expense) *fakeExpenses {
	f := &fakeExpenses{expenses: make(map[string]*expense.Expense)}
	for _, e := range seed {
		f.expenses[e.ID] = e.Clone()
	}
	return f
}

func (f *fakeExpenses) Create(_ context.Context, e *expense.Expense) (*expense.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expenses[e.ID] = e.Clone()
	return e.Clone(), nil
}

func (f *fakeExpenses) Update(_ context.Context, e *expense.Expense) (*expense.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	stored, ok := f.expenses[e.ID]
	if !ok {
		return nil, expense.ErrExpenseNotFound
	}
	if f.staleWrites > 0 {
		f.staleWrites--
		stored.Version++
		return nil, expense.ErrStaleExpense
	}
	if stored.Version != e.Version {
		return nil, expense.ErrStaleExpense
	}
	clone := e.Clone()
	clone.Version++
	f.expenses[e.ID] = clone
	return clone.Clone(), nil
}

func (f *fakeExpenses) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.expenses, id)
	return nil
}

func (f *fakeExpenses) FindByID(_ context.Context, id string) (*expense.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.expenses[id]
	if !ok {
		return nil, expense.ErrExpenseNotFound
	}
	return e.Clone(), nil
}

func (f *fakeExpenses) List(context.Context, expense.ListExpensesFilter) ([]*expense.Expense, string, error) {
	return nil, "", nil
}

func (f *fakeExpenses) ListSubmittedByApprover(context.Context, string) ([]*expense.Expense, error) {
	return nil, nil
}

type fakeRules struct {
	byUser map[string]*rule.Rule
}

func (f fakeRules) FindActiveByUserID(_ context.Context, userID string) (*rule.Rule, error) {
	r, ok := f.byUser[userID]
	if !ok || !r.IsActive {
		return nil, rule.ErrRuleNotFound
	}
	return r.Clone(), nil
}

type fakeUsers struct {
	users map[string]*user.User
}

func (f fakeUsers) FindByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (f fakeUsers) FindByName(_ context.Context, name string) (*user.User, error) {
	for _, u := range f.users {
		if u.Name == name {
			clone := *u
			return &clone, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func strPtr(s string) *string { return &s }

func newDraft(id string) *expense.Expense {
	return &expense.Expense{
		ID:          id,
		EmployeeID:  "emp",
		Description: "Hotel",
		Category:    "Travel",
		Amount:      decimal.NewFromInt(120),
		Currency:    "EUR",
		Status:      expense.StatusDraft,
		Version:     1,
	}
}

func directory() fakeUsers {
	return fakeUsers{users: map[string]*user.User{
		"emp":    {ID: "emp", Name: "Emma", ManagerID: strPtr("mgr"), ManagerName: "Mark", Status: user.StatusActive},
		"legacy": {ID: "legacy", Name: "Liam", ManagerName: "Mark", Status: user.StatusActive},
		"orphan": {ID: "orphan", Name: "Olga", Status: user.StatusActive},
		"mgr":    {ID: "mgr", Name: "Mark", Email: "mark@example.com", Role: user.RoleManager, Status: user.StatusActive},
		"cfo":    {ID: "cfo", Name: "Cleo", Email: "cleo@example.com", Role: user.RoleAdmin, Status: user.StatusActive},
		"fin":    {ID: "fin", Name: "Fiona", Role: user.RoleManager, Status: user.StatusActive},
	}}
}

func newTestService(exp *fakeExpenses, rules fakeRules, policy approval.Policy) *Service {
	clock := &stubClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(exp, rules, directory(), approval.NewEngine(policy), clock, nil, zerolog.Nop())
}

func TestService_SubmitApproveFlow(t *testing.T) {
	t.Parallel()

	repo := newFakeExpenses(newDraft("exp-1"))
	rules := fakeRules{byUser: map[string]*rule.Rule{
		"emp": {
			ID:                "rule-1",
			UserID:            "emp",
			IsManagerApprover: true,
			Approvers:         []rule.Approver{{UserID: "fin", Name: "Fiona", Required: true}},
			IsSequential:      true,
			IsActive:          true,
		},
	}}
	svc := newTestService(repo, rules, approval.Policy{})
	ctx := context.Background()

	submitted, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != expense.StatusSubmitted || submitted.Version != 2 {
		t.Fatalf("unexpected submitted expense: status=%s version=%d", submitted.Status, submitted.Version)
	}
	if len(submitted.Approvers) != 2 || submitted.Approvers[0].UserID != "mgr" || submitted.Approvers[0].Name != "Mark" {
		t.Fatalf("expected manager first from employee.ManagerID, got %+v", submitted.Approvers)
	}

	if _, err := svc.ApproveExpense(ctx, DecisionInput{ID: "exp-1", ApproverID: "fin"}); !errors.Is(err, approval.ErrOutOfSequence) {
		t.Fatalf("expected ErrOutOfSequence, got %v", err)
	}

	afterMgr, err := svc.ApproveExpense(ctx, DecisionInput{ID: "exp-1", ApproverID: "mgr", Note: "ok"})
	if err != nil {
		t.Fatalf("approve mgr: %v", err)
	}
	if afterMgr.Status != expense.StatusSubmitted {
		t.Fatalf("expected submitted after manager, got %s", afterMgr.Status)
	}

	final, err := svc.ApproveExpense(ctx, DecisionInput{ID: "exp-1", ApproverID: "fin"})
	if err != nil {
		t.Fatalf("approve fin: %v", err)
	}
	if final.Status != expense.StatusApproved || final.ApprovedAt == nil {
		t.Fatalf("expected approved, got %s", final.Status)
	}

	if _, err := svc.RejectExpense(ctx, DecisionInput{ID: "exp-1", ApproverID: "fin"}); !errors.Is(err, approval.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after approval, got %v", err)
	}

	stored, _ := repo.FindByID(ctx, "exp-1")
	if len(stored.ApprovalHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(stored.ApprovalHistory))
	}
}

func TestService_SubmitWithoutRule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	auto := newTestService(newFakeExpenses(newDraft("exp-1")), fakeRules{}, approval.Policy{})
	got, err := auto.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != expense.StatusApproved || len(got.Approvers) != 0 {
		t.Fatalf("expected auto approval with empty roster, got %s/%d", got.Status, len(got.Approvers))
	}

	hold := newTestService(newFakeExpenses(newDraft("exp-1")), fakeRules{}, approval.Policy{NoApprovers: approval.NoApproversHold})
	got, err = hold.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != expense.StatusSubmitted {
		t.Fatalf("expected held submission, got %s", got.Status)
	}
}

func TestService_ManagerResolution(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		employee string
		override *string
		wantID   string
		wantErr  error
	}{
		{name: "rule override", employee: "emp", override: strPtr("cfo"), wantID: "cfo"},
		{name: "employee manager id", employee: "emp", wantID: "mgr"},
		{name: "legacy manager name", employee: "legacy", wantID: "mgr"},
		{name: "override unknown falls back", employee: "emp", override: strPtr("ghost"), wantID: "mgr"},
		{name: "unresolved", employee: "orphan", wantErr: ErrManagerUnresolved},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			draft := newDraft("exp-1")
			draft.EmployeeID = tc.employee
			repo := newFakeExpenses(draft)
			rules := fakeRules{byUser: map[string]*rule.Rule{
				tc.employee: {ID: "r", UserID: tc.employee, ManagerID: tc.override, IsManagerApprover: true, IsActive: true},
			}}
			svc := newTestService(repo, rules, approval.Policy{})

			got, err := svc.SubmitExpense(context.Background(), SubmitExpenseInput{ID: "exp-1"})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				stored, _ := repo.FindByID(context.Background(), "exp-1")
				if stored.Status != expense.StatusDraft {
					t.Fatalf("failed submit must not persist, got %s", stored.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got.Approvers) != 1 || got.Approvers[0].UserID != tc.wantID || !got.Approvers[0].Required {
				t.Fatalf("expected required manager %s, got %+v", tc.wantID, got.Approvers)
			}
		})
	}
}

func TestService_SubmitSkipsInactiveUsers(t *testing.T) {
	t.Parallel()

	users := directory()
	users.users["mgr"].Status = user.StatusInactive
	users.users["fin"].Status = user.StatusInactive
	users.users["cfo"].Status = user.StatusInactive
	users.users["mark2"] = &user.User{ID: "mark2", Name: "Mark", Status: user.StatusInactive}
	users.users["aud"] = &user.User{ID: "aud", Name: "Ada", Role: user.RoleManager, Status: user.StatusActive}
	clock := &stubClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	t.Run("inactive manager is unresolved", func(t *testing.T) {
		t.Parallel()

		repo := newFakeExpenses(newDraft("exp-1"))
		rules := fakeRules{byUser: map[string]*rule.Rule{
			"emp": {ID: "r", UserID: "emp", ManagerID: strPtr("cfo"), IsManagerApprover: true, IsActive: true},
		}}
		svc := NewService(repo, rules, users, approval.NewEngine(approval.Policy{}), clock, nil, zerolog.Nop())

		if _, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"}); !errors.Is(err, ErrManagerUnresolved) {
			t.Fatalf("expected ErrManagerUnresolved, got %v", err)
		}
		stored, _ := repo.FindByID(ctx, "exp-1")
		if stored.Status != expense.StatusDraft || len(stored.Approvers) != 0 {
			t.Fatalf("failed submit must not persist, got %s %+v", stored.Status, stored.Approvers)
		}
	})

	t.Run("inactive manager by name is unresolved", func(t *testing.T) {
		t.Parallel()

		draft := newDraft("exp-1")
		draft.EmployeeID = "legacy"
		repo := newFakeExpenses(draft)
		rules := fakeRules{byUser: map[string]*rule.Rule{
			"legacy": {ID: "r", UserID: "legacy", IsManagerApprover: true, IsActive: true},
		}}
		svc := NewService(repo, rules, fakeUsers{users: map[string]*user.User{
			"legacy": users.users["legacy"],
			"mark2":  users.users["mark2"],
		}}, approval.NewEngine(approval.Policy{}), clock, nil, zerolog.Nop())

		if _, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"}); !errors.Is(err, ErrManagerUnresolved) {
			t.Fatalf("expected ErrManagerUnresolved, got %v", err)
		}
	})

	t.Run("inactive and removed rule approvers are dropped", func(t *testing.T) {
		t.Parallel()

		repo := newFakeExpenses(newDraft("exp-1"))
		rules := fakeRules{byUser: map[string]*rule.Rule{
			"emp": {
				ID:     "r",
				UserID: "emp",
				Approvers: []rule.Approver{
					{UserID: "fin", Name: "Fiona", Required: true},
					{UserID: "gone", Name: "Gus", Required: true},
					{UserID: "aud", Name: "Ada", Required: true},
				},
				IsActive: true,
			},
		}}
		svc := NewService(repo, rules, users, approval.NewEngine(approval.Policy{}), clock, nil, zerolog.Nop())

		got, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if len(got.Approvers) != 1 || got.Approvers[0].UserID != "aud" {
			t.Fatalf("expected only the active approver on the roster, got %+v", got.Approvers)
		}
		if got.Status != expense.StatusSubmitted {
			t.Fatalf("expected submitted, got %s", got.Status)
		}
		if len(rules.byUser["emp"].Approvers) != 3 {
			t.Fatalf("stored rule must not be modified, got %+v", rules.byUser["emp"].Approvers)
		}
	})

	t.Run("missing employee", func(t *testing.T) {
		t.Parallel()

		draft := newDraft("exp-1")
		draft.EmployeeID = "ghost-employee"
		repo := newFakeExpenses(draft)
		svc := NewService(repo, fakeRules{}, users, approval.NewEngine(approval.Policy{}), clock, nil, zerolog.Nop())

		if _, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"}); !errors.Is(err, user.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
		stored, _ := repo.FindByID(ctx, "exp-1")
		if stored.Status != expense.StatusDraft {
			t.Fatalf("expected draft to stay unsubmitted, got %s", stored.Status)
		}
	})
}

func TestService_RetriesStaleWrites(t *testing.T) {
	t.Parallel()

	repo := newFakeExpenses(newDraft("exp-1"))
	repo.staleWrites = 2
	svc := newTestService(repo, fakeRules{}, approval.Policy{NoApprovers: approval.NoApproversHold})

	got, err := svc.SubmitExpense(context.Background(), SubmitExpenseInput{ID: "exp-1"})
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if got.Status != expense.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", got.Status)
	}
	if repo.updates != 3 {
		t.Fatalf("expected 3 update attempts, got %d", repo.updates)
	}

	repo2 := newFakeExpenses(newDraft("exp-2"))
	repo2.staleWrites = maxAttempts
	svc2 := newTestService(repo2, fakeRules{}, approval.Policy{})
	if _, err := svc2.SubmitExpense(context.Background(), SubmitExpenseInput{ID: "exp-2"}); !errors.Is(err, expense.ErrStaleExpense) {
		t.Fatalf("expected ErrStaleExpense after exhausting retries, got %v", err)
	}
}

func TestService_Errors(t *testing.T) {
	t.Parallel()

	repo := newFakeExpenses(newDraft("exp-1"))
	svc := newTestService(repo, fakeRules{}, approval.Policy{NoApprovers: approval.NoApproversHold})
	ctx := context.Background()

	if _, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "missing"}); !errors.Is(err, expense.ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound, got %v", err)
	}
	if _, err := svc.SubmitExpense(ctx, SubmitExpenseInput{}); !errors.Is(err, expense.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := svc.ApproveExpense(ctx, DecisionInput{ID: "exp-1"}); !errors.Is(err, expense.ErrInvalidApprover) {
		t.Fatalf("expected ErrInvalidApprover, got %v", err)
	}
	if _, err := svc.ApproveExpense(ctx, DecisionInput{ID: "exp-1", ApproverID: "mgr"}); !errors.Is(err, approval.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for draft, got %v", err)
	}

	if _, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.SubmitExpense(ctx, SubmitExpenseInput{ID: "exp-1"}); !errors.Is(err, approval.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on resubmit, got %v", err)
	}
	if _, err := svc.RejectExpense(ctx, DecisionInput{ID: "exp-1", ApproverID: "mgr"}); !errors.Is(err, approval.ErrApproverNotEligible) {
		t.Fatalf("expected ErrApproverNotEligible on empty roster, got %v", err)
	}
}
