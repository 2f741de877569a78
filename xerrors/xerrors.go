// Package xerrors 提供 harvest 各组件共用的错误工具：上下文包装、错误码、聚合与公共哨兵错误。
package xerrors

import (
	"errors"
	"fmt"
	"strings"
)

// 公共哨兵错误，各组件在其 errors.go 中以 Wrap 的方式细化。
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrTimeout      = errors.New("timeout")
)

// 错误码，写入 CodedError 供日志和 Admin API 分类使用。
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeTransient     = "TRANSIENT"
	CodeRateLimited   = "RATE_LIMITED"
	CodeClient        = "CLIENT_ERROR"
	CodeBreakerOpen   = "BREAKER_OPEN"
	CodeParse         = "PARSE_ERROR"
	CodeStorage       = "STORAGE_ERROR"
)

// Wrap 用上下文信息包装错误，保留错误链。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithCode 用错误码包装错误。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// Config 构造一个配置错误，既匹配 ErrInvalidInput，也携带 CONFIG_INVALID 错误码。
func Config(format string, args ...any) error {
	return WithCode(Wrapf(ErrInvalidInput, format, args...), CodeConfigInvalid)
}

// CodedError 带有机器可读错误码的错误。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("[%s]", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// GetCode 从错误链中提取最外层的错误码。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// Must 如果 err 不为 nil，则 panic。仅用于初始化阶段。
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// Collector 收集多个错误，Err 返回合并后的结果。
//
// 零值可用，非并发安全。
type Collector struct {
	errs []error
}

func (c *Collector) Collect(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Len 返回已收集的错误数量。
func (c *Collector) Len() int {
	return len(c.errs)
}

func (c *Collector) Err() error {
	return Combine(c.errs...)
}

// MultiError 合并多个错误。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	msgs := make([]string, 0, len(m.Errors))
	for _, err := range m.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d errors: %s", len(m.Errors), strings.Join(msgs, "; "))
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个，忽略 nil。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// 标准库函数再导出
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
