package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pibot/decision"
)

// State 持仓状态
type State string

const (
	StateFlat State = "FLAT"
	StateLong State = "LONG"
)

// Position 单一持仓记录，EntryPrice/Amount 仅在 FLAT→LONG 时写入
type Position struct {
	State      State     `json:"state"`
	EntryPrice float64   `json:"entry_price"`
	Amount     float64   `json:"amount"` // 开仓成交的 base 数量
	OpenedAt   time.Time `json:"opened_at"`
}

// Fill 订单成交结果
type Fill struct {
	OrderID     string  `json:"order_id"`
	BaseAmount  float64 `json:"base_amount"`
	QuoteAmount float64 `json:"quote_amount"`
	AvgPrice    float64 `json:"avg_price"`
}

// Trade 一次平仓的盈亏结算
type Trade struct {
	Reason     decision.ExitReason `json:"reason"`
	EntryPrice float64             `json:"entry_price"`
	ExitPrice  float64             `json:"exit_price"`
	Amount     float64             `json:"amount"`
	PnL        float64             `json:"pnl"`     // Amount*(ExitPrice-EntryPrice)
	PnLPct     float64             `json:"pnl_pct"` // (ExitPrice-EntryPrice)/EntryPrice
	OpenedAt   time.Time           `json:"opened_at"`
	ClosedAt   time.Time           `json:"closed_at"`
	Fill       Fill                `json:"fill"`
}

// LedgerSnapshot 持仓与冷却时钟的一致视图
type LedgerSnapshot struct {
	Position
	LastTradeAt time.Time `json:"last_trade_at"`
}

// OpenRequest 开仓请求；Execute 在临界区内执行（查余额、下单）
type OpenRequest struct {
	Price    float64
	Manual   bool // 手动开仓不受冷却限制
	Cooldown time.Duration
	Execute  func(ctx context.Context) (Fill, error)
}

// CloseRequest 平仓请求；Execute 在临界区内执行
type CloseRequest struct {
	Price   float64
	Reason  decision.ExitReason
	Execute func(ctx context.Context, pos Position) (Fill, error)
}

// Ledger 持仓账本：自动循环与手动命令共享，所有迁移在同一把锁内完成
type Ledger struct {
	mu          sync.Mutex
	pos         Position
	lastTradeAt time.Time
	now         func() time.Time
}

// NewLedger 创建空仓账本，冷却时钟未设置
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{pos: Position{State: StateFlat}, now: now}
}

// Snapshot 返回当前状态副本
func (l *Ledger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerSnapshot{Position: l.pos, LastTradeAt: l.lastTradeAt}
}

// CooldownRemaining 距离冷却结束的剩余时间，未交易过或已结束时为 0
func (l *Ledger) CooldownRemaining(cooldown time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cooldownRemainingLocked(cooldown)
}

func (l *Ledger) cooldownRemainingLocked(cooldown time.Duration) time.Duration {
	if l.lastTradeAt.IsZero() || cooldown <= 0 {
		return 0
	}
	elapsed := l.now().Sub(l.lastTradeAt)
	if elapsed >= cooldown {
		return 0
	}
	return cooldown - elapsed
}

// TryOpen FLAT→LONG。下单返回前不会释放锁，因此并发的开仓请求只有一个能成功
func (l *Ledger) TryOpen(ctx context.Context, req OpenRequest) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos.State == StateLong {
		return l.pos, reject(ReasonAlreadyOpen, "entry %.8f", l.pos.EntryPrice)
	}
	if !req.Manual {
		if remaining := l.cooldownRemainingLocked(req.Cooldown); remaining > 0 {
			return l.pos, reject(ReasonCooldownActive, "%s remaining", remaining.Round(time.Second))
		}
	}
	if req.Price <= 0 {
		return l.pos, fmt.Errorf("%w: invalid price %v", ErrDataUnavailable, req.Price)
	}

	fill, err := req.Execute(ctx)
	if err != nil {
		return l.pos, err
	}

	now := l.now()
	l.pos = Position{
		State:      StateLong,
		EntryPrice: req.Price,
		Amount:     fill.BaseAmount,
		OpenedAt:   now,
	}
	l.lastTradeAt = now
	return l.pos, nil
}

// TryClose LONG→FLAT，盈亏按决策价格结算
func (l *Ledger) TryClose(ctx context.Context, req CloseRequest) (*Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos.State != StateLong {
		return nil, reject(ReasonAlreadyFlat, "nothing to close")
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: invalid price %v", ErrDataUnavailable, req.Price)
	}

	fill, err := req.Execute(ctx, l.pos)
	if err != nil {
		return nil, err
	}

	now := l.now()
	trade := Settle(l.pos, req.Price, fill.BaseAmount)
	trade.Reason = req.Reason
	trade.ClosedAt = now
	trade.Fill = fill

	l.pos = Position{State: StateFlat}
	l.lastTradeAt = now
	return trade, nil
}

// Settle 计算平仓盈亏：PnL = amount*(exit-entry)，PnLPct = (exit-entry)/entry
func Settle(pos Position, exitPrice, amount float64) *Trade {
	return &Trade{
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Amount:     amount,
		PnL:        amount * (exitPrice - pos.EntryPrice),
		PnLPct:     decision.ProfitPct(pos.EntryPrice, exitPrice),
		OpenedAt:   pos.OpenedAt,
	}
}
