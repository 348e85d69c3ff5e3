package trader

import (
	"context"
	"time"
)

// EventKind 通知事件类型
type EventKind string

const (
	EventStartup        EventKind = "startup"
	EventAnalysis       EventKind = "analysis"
	EventBuy            EventKind = "buy"
	EventSell           EventKind = "sell"
	EventRejected       EventKind = "rejected"
	EventDataError      EventKind = "data_error"
	EventExecutionError EventKind = "execution_error"
)

// Event 交易引擎对外发布的事件，文本格式化由具体通知渠道负责
type Event struct {
	Kind   EventKind `json:"kind"`
	Time   time.Time `json:"time"`
	Pair   string    `json:"pair"`
	Manual bool      `json:"manual,omitempty"`

	Price      float64 `json:"price,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Quote      float64 `json:"quote,omitempty"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	PnL        float64 `json:"pnl,omitempty"`
	PnLPct     float64 `json:"pnl_pct,omitempty"`
	Target     float64 `json:"target,omitempty"`
	Stop       float64 `json:"stop,omitempty"`
	RiskScore  int     `json:"risk_score,omitempty"`

	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Notifier 通知渠道，尽力而为：返回的错误只记录日志
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc 函数适配器
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// JournalEntry 成交流水，仅用于审计，不参与重启恢复
type JournalEntry struct {
	ID         string    `json:"id"`
	Pair       string    `json:"pair"`
	Side       string    `json:"side"`
	Manual     bool      `json:"manual"`
	Reason     string    `json:"reason,omitempty"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Quote      float64   `json:"quote"`
	EntryPrice float64   `json:"entry_price,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`
	PnLPct     float64   `json:"pnl_pct,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	At         time.Time `json:"at"`
}

// Journal 成交流水写入端
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// History 成交流水查询端
type History interface {
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)
}
