package handler

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	"github.com/ogurasousui/codex-expense-approval/internal/adapters/transport"
)

// ErrorDomain は ErrorInfo に載せるドメイン名です。
const ErrorDomain = "expense.v1"

// toStatusError はドメインエラーを gRPC ステータスに変換し、種別を ErrorInfo.Reason に載せます。
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	problem := transport.Classify(err)
	message := err.Error()
	if problem.Kind == transport.KindInternal {
		message = "internal error"
	}

	st := status.New(problem.Code, message)
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(problem.Kind),
		Domain: ErrorDomain,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ReasonOf は gRPC エラーに付与された ErrorInfo.Reason を返します。
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
