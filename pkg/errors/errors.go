// Package errors 提供统一错误辅助与错误分类，不依赖 internal
package errors

import (
	"context"
	"errors"
	"fmt"
)

// 错误分类哨兵：core 以 %w 包装，调用方用 errors.Is 判定
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidArg          = errors.New("invalid argument")
	ErrInvalidState        = errors.New("invalid state")
	ErrConnectionFailure   = errors.New("connection failure")
	ErrTransactionConflict = errors.New("transaction conflict")
)

// 稳定错误码，HTTP 层据此映射状态码
const (
	KindNotFound            = "not_found"
	KindInvalidArg          = "invalid_argument"
	KindInvalidState        = "invalid_state"
	KindConnectionFailure   = "connection_failure"
	KindTransactionConflict = "transaction_conflict"
	KindCanceled            = "canceled" // 调用方取消（如客户端断开）
	KindInternal            = "internal"
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// KindOf 返回 err 所属分类；nil 返回空串，未识别的归为 internal
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArg):
		return KindInvalidArg
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrTransactionConflict):
		return KindTransactionConflict
	case errors.Is(err, ErrConnectionFailure), errors.Is(err, context.DeadlineExceeded):
		return KindConnectionFailure
	default:
		return KindInternal
	}
}
