package util

import (
	"errors"
	"fmt"
)

// Kind 业务错误分类，控制器据此映射 HTTP 状态码
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindSchedulingConflict Kind = "scheduling_conflict"
	KindInvalid            Kind = "invalid"
	KindForbidden          Kind = "forbidden"
)

// Error 带分类的业务错误；哨兵值可用 errors.Is 比较，errors.As 取分类
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func Conflictf(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

func SchedulingConflictf(format string, args ...interface{}) error {
	return newError(KindSchedulingConflict, format, args...)
}

func Invalidf(format string, args ...interface{}) error {
	return newError(KindInvalid, format, args...)
}

func Forbiddenf(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args...)
}

// KindOf 返回错误链上第一个 *Error 的分类，非业务错误返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

var (
	ErrTestNotFound     = &Error{Kind: KindNotFound, Msg: "test not found"}
	ErrAttemptNotFound  = &Error{Kind: KindNotFound, Msg: "attempt not found"}
	ErrQuestionNotFound = &Error{Kind: KindNotFound, Msg: "question not found"}
	ErrAnswerNotFound   = &Error{Kind: KindNotFound, Msg: "answer not found"}

	ErrTestNotAvailable   = &Error{Kind: KindSchedulingConflict, Msg: "test is not open for attempts"}
	ErrMaxAttempts        = &Error{Kind: KindConflict, Msg: "maximum attempts reached"}
	ErrAttemptInProgress  = &Error{Kind: KindConflict, Msg: "an attempt is already in progress"}
	ErrAttemptNotActive   = &Error{Kind: KindConflict, Msg: "attempt is not in progress"}
	ErrAttemptExpired     = &Error{Kind: KindConflict, Msg: "attempt time is over"}
	ErrSectionLocked      = &Error{Kind: KindConflict, Msg: "section is locked"}
	ErrSectionNotStarted  = &Error{Kind: KindConflict, Msg: "section has not been started"}
	ErrUngradedRemaining  = &Error{Kind: KindConflict, Msg: "ungraded answers remain"}
	ErrAttemptNotGradable = &Error{Kind: KindConflict, Msg: "attempt is not submitted"}
	ErrInvalidTransition  = &Error{Kind: KindConflict, Msg: "invalid status transition"}

	ErrResultsHidden = &Error{Kind: KindForbidden, Msg: "results are not available"}
	ErrNotOwner      = &Error{Kind: KindForbidden, Msg: "attempt belongs to another student"}
)
