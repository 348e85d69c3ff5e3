package trader

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable 行情/余额获取失败，本轮跳过决策
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrExecution 下单失败，不发生状态迁移
	ErrExecution = errors.New("order execution failed")
	// ErrParameter 手动参数不合法，原参数保持不变
	ErrParameter = errors.New("invalid trading parameter")

	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrBelowMinimumSize  = errors.New("below minimum trade size")
	ErrAlreadyOpen       = errors.New("position already open")
	ErrAlreadyFlat       = errors.New("no open position")
	ErrCooldownActive    = errors.New("trade cooldown active")
)

// RejectReason 状态迁移被拒绝的原因
type RejectReason string

const (
	ReasonAlreadyOpen         RejectReason = "ALREADY_OPEN"
	ReasonAlreadyFlat         RejectReason = "ALREADY_FLAT"
	ReasonInsufficientBalance RejectReason = "INSUFFICIENT_BALANCE"
	ReasonBelowMinimumSize    RejectReason = "BELOW_MINIMUM_SIZE"
	ReasonCooldownActive      RejectReason = "COOLDOWN_ACTIVE"
)

var reasonErrors = map[RejectReason]error{
	ReasonAlreadyOpen:         ErrAlreadyOpen,
	ReasonAlreadyFlat:         ErrAlreadyFlat,
	ReasonInsufficientBalance: ErrInsufficientFunds,
	ReasonBelowMinimumSize:    ErrBelowMinimumSize,
	ReasonCooldownActive:      ErrCooldownActive,
}

// Rejection 预期内的非致命拒绝，可用 errors.Is 匹配对应的哨兵错误
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return reasonErrors[r.Reason]
}

func reject(reason RejectReason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RejectionReason 提取拒绝原因
func RejectionReason(err error) (RejectReason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

func dataUnavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, what, err)
}
