package breaker

import "github.com/ceyewan/harvest/xerrors"

var (
	// ErrKeyEmpty 熔断键为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: key is empty")

	// ErrInvalidConfig 熔断参数不合法
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: invalid config")

	// ErrOpenState 熔断器拒绝请求：处于打开状态，或半开状态下已有探测请求在途
	ErrOpenState = xerrors.WithCode(xerrors.Wrap(xerrors.ErrUnavailable, "breaker: circuit breaker is open"), xerrors.CodeBreakerOpen)
)
