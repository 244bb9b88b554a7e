package models

import (
	"errors"
	"fmt"
)

// ErrNotFound 表示床位行不存在
var ErrNotFound = errors.New("bed not found")

// ValidationError 违反状态机前置条件；在任何本地修改之前同步返回
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// ConflictError 本地状态相对远端已过期（目标床位被占用、版本比较失败）
// 调用方需要重新读取后再重试
type ConflictError struct {
	BedID  string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on bed %s: %s", e.BedID, e.Reason)
}

// TransientIOError 远端存储或变更流不可达；由周期性全量同步兜底
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

// Invalid builds a ValidationError.
func Invalid(op, format string, args ...interface{}) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsTransient reports whether err is a TransientIOError.
func IsTransient(err error) bool {
	var target *TransientIOError
	return errors.As(err, &target)
}
