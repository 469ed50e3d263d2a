package rule

import "errors"

var (
	ErrRuleNotFound       = errors.New("rule: not found")
	ErrActiveRuleExists   = errors.New("rule: active rule already exists for user")
	ErrInvalidID          = errors.New("rule: invalid id")
	ErrInvalidUserID      = errors.New("rule: invalid user id")
	ErrInvalidDescription = errors.New("rule: invalid description")
	ErrInvalidManager     = errors.New("rule: invalid manager")
	ErrInvalidApprover    = errors.New("rule: invalid approver")
	ErrDuplicateApprover  = errors.New("rule: duplicate approver")
	ErrInvalidPercentage  = errors.New("rule: minimum approval percentage must be between 0 and 100")
	ErrInvalidPageSize    = errors.New("rule: invalid page size")
	ErrInvalidPageToken   = errors.New("rule: invalid page token")
)
