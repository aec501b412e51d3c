package domain

import (
	"errors"
	"fmt"
)

const (
	// ErrCodeIO 表示文件不可读/已消失，或动作执行失败（就地恢复，记为 failed）。
	ErrCodeIO = "io_error"
	// ErrCodeUnsupportedFormat 不是错误，而是分类结果：该文件没有 approx 键。
	ErrCodeUnsupportedFormat = "unsupported_format"
	// ErrCodePolicyViolation 表示试图构造空保留集合（致命）。
	ErrCodePolicyViolation = "policy_violation"
	// ErrCodeDestinationCollision 仅在改名探测次数耗尽时出现（随后按 io_error 记录）。
	ErrCodeDestinationCollision = "destination_collision"
	// ErrCodeStale 表示扫描后文件已被移动/修改，或已在本次运行中被其他组处理。
	ErrCodeStale = "stale_entry"
	// ErrCodeCrossDevice 表示跨文件系统 rename（EXDEV）。
	ErrCodeCrossDevice = "cross_device"
	// ErrCodeCanceled 表示扫描被取消，本次结果全部丢弃。
	ErrCodeCanceled = "canceled"
	// ErrCodeAuditClosed 表示审计记录关闭后仍被追加（并发修改，致命）。
	ErrCodeAuditClosed = "audit_closed"
)

// Error 是引擎内部的结构化错误（带 error code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s：%q", e.Code, e.Path)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsFatal 判断错误是否必须中止本次运行。
func IsFatal(err error) bool {
	switch Code(err) {
	case ErrCodePolicyViolation, ErrCodeAuditClosed, ErrCodeCanceled:
		return true
	default:
		return false
	}
}
