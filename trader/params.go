package trader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Params 运行时可调的交易参数
type Params struct {
	// OrderSizeFraction 每次开仓投入的可用计价币比例（名义范围 (0,1]）。
	OrderSizeFraction float64 `yaml:"order_size_fraction" json:"order_size_fraction"`
	// ProfitThreshold 止盈收益率，如 0.03 表示 +3%。
	ProfitThreshold float64 `yaml:"profit_threshold" json:"profit_threshold"`
	// StopLossThreshold 止损亏损率，如 0.05 表示 -5%。
	StopLossThreshold float64 `yaml:"stop_loss_threshold" json:"stop_loss_threshold"`
}

// DefaultParams 默认参数：高风险设置
func DefaultParams() Params {
	return Params{
		OrderSizeFraction: 0.85,
		ProfitThreshold:   0.03,
		StopLossThreshold: 0.05,
	}
}

// Validate 三个参数都必须为有限正数，除此之外不做上限约束
func (p Params) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"order_size_fraction", p.OrderSizeFraction},
		{"profit_threshold", p.ProfitThreshold},
		{"stop_loss_threshold", p.StopLossThreshold},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || c.value <= 0 {
			return fmt.Errorf("%w: %s must be a positive number, got %v", ErrParameter, c.name, c.value)
		}
	}
	return nil
}

// ParseParams 解析手动输入的三个参数
func ParseParams(orderSize, profit, stopLoss string) (Params, error) {
	raw := []string{orderSize, profit, stopLoss}
	names := []string{"order_size_fraction", "profit_threshold", "stop_loss_threshold"}
	values := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s %q is not a number", ErrParameter, names[i], s)
		}
		values[i] = v
	}

	p := Params{OrderSizeFraction: values[0], ProfitThreshold: values[1], StopLossThreshold: values[2]}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// ParamStore 并发安全的参数存储，每轮开始时读取一次副本
type ParamStore struct {
	mu     sync.RWMutex
	params Params
}

// NewParamStore 创建参数存储
func NewParamStore(p Params) (*ParamStore, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &ParamStore{params: p}, nil
}

// Get 返回当前参数副本
func (s *ParamStore) Get() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Set 校验后整体替换，校验失败时保持原值
func (s *ParamStore) Set(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}
