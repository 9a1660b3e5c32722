package wait

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest 请求缺少该条件类型要求的字段
var ErrInvalidRequest = errors.New("invalid wait request")

// ErrCheckDeadline 单次求值到等待截止时仍未返回
var ErrCheckDeadline = errors.New("condition check still running at deadline")

// ConditionTimeout 条件在超时时间内未满足
type ConditionTimeout struct {
	Kind    Kind
	Elapsed time.Duration
	Timeout time.Duration
	// Last 轮询过程中最后一次查询错误，可能为 nil
	Last error
}

func (e *ConditionTimeout) Error() string {
	msg := fmt.Sprintf("condition %s not met after %s", e.Kind, e.Elapsed)
	if e.Last != nil {
		msg += ": last error: " + e.Last.Error()
	}
	return msg
}

func (e *ConditionTimeout) Unwrap() error { return e.Last }

// IsTimeout 判断错误链中是否包含 ConditionTimeout
func IsTimeout(err error) bool {
	var ct *ConditionTimeout
	return errors.As(err, &ct)
}
