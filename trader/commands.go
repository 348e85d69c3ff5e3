package trader

import (
	"context"
	"time"

	"pibot/decision"
)

// Operator 手动命令入口，与传输方式无关（Telegram、HTTP）
type Operator interface {
	Status(ctx context.Context) (*StatusReport, error)
	ManualBuy(ctx context.Context) (*Position, error)
	ManualSell(ctx context.Context) (*Trade, error)
	SetParams(orderSize, profit, stopLoss string) (Params, error)
	Params() Params
	Position() LedgerSnapshot
}

var _ Operator = (*Engine)(nil)

// StatusReport 状态查询结果
type StatusReport struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	FreeQuote float64   `json:"free_quote"`
	FreeBase  float64   `json:"free_base"`
	Params    Params    `json:"params"`
	Time      time.Time `json:"time"`

	Position          Position      `json:"position"`
	LastTradeAt       time.Time     `json:"last_trade_at"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`

	// 以下字段仅在 LONG 时有意义
	UnrealizedPnL    float64 `json:"unrealized_pnl,omitempty"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct,omitempty"`
	Target           float64 `json:"target,omitempty"`
	Stop             float64 `json:"stop,omitempty"`
}

// Status 当前价格、24h 涨跌、余额及持仓盈亏
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
	ticker, err := e.exchange.FetchTicker(ctx, e.opts.Pair)
	if err != nil {
		return nil, dataUnavailable("fetch ticker", err)
	}
	freeQuote, freeBase, err := e.executor.Balances(ctx)
	if err != nil {
		return nil, err
	}

	params := e.params.Get()
	snap := e.ledger.Snapshot()
	report := &StatusReport{
		Pair:              e.opts.Pair.String(),
		Price:             ticker.Last,
		Change24h:         ticker.Change24h,
		FreeQuote:         freeQuote,
		FreeBase:          freeBase,
		Params:            params,
		Time:              e.now(),
		Position:          snap.Position,
		LastTradeAt:       snap.LastTradeAt,
		CooldownRemaining: e.ledger.CooldownRemaining(e.opts.Cooldown),
	}
	if snap.State == StateLong {
		report.UnrealizedPnL = snap.Amount * (ticker.Last - snap.EntryPrice)
		report.UnrealizedPnLPct = decision.ProfitPct(snap.EntryPrice, ticker.Last)
		report.Target, report.Stop = decision.TargetPrices(snap.EntryPrice, params.ProfitThreshold, params.StopLossThreshold)
	}
	return report, nil
}

// ManualBuy 跳过信号与冷却，仍受余额与最小下单额约束
func (e *Engine) ManualBuy(ctx context.Context) (*Position, error) {
	if snap := e.ledger.Snapshot(); snap.State == StateLong {
		return nil, reject(ReasonAlreadyOpen, "entry %.8f", snap.EntryPrice)
	}

	e.log.Info().Msg("🖐  [手动] 收到买入指令")
	ticker, err := e.exchange.FetchTicker(ctx, e.opts.Pair)
	if err != nil {
		err = dataUnavailable("fetch ticker", err)
		e.handleFailure(ctx, err, true)
		return nil, err
	}

	pos, err := e.openPosition(ctx, ticker.Last, e.params.Get(), true, 0)
	if err != nil {
		e.handleFailure(ctx, err, true)
		return nil, err
	}
	return &pos, nil
}

// ManualSell 跳过止盈止损判断直接平仓，空仓时直接拒绝且不下单
func (e *Engine) ManualSell(ctx context.Context) (*Trade, error) {
	if snap := e.ledger.Snapshot(); snap.State != StateLong {
		return nil, reject(ReasonAlreadyFlat, "nothing to close")
	}

	e.log.Info().Msg("🖐  [手动] 收到卖出指令")
	ticker, err := e.exchange.FetchTicker(ctx, e.opts.Pair)
	if err != nil {
		err = dataUnavailable("fetch ticker", err)
		e.handleFailure(ctx, err, true)
		return nil, err
	}

	trade, err := e.closePosition(ctx, ticker.Last, decision.ExitManual, true)
	if err != nil {
		e.handleFailure(ctx, err, true)
		return nil, err
	}
	return trade, nil
}

// SetParams 三个参数全部合法才整体替换，下一轮生效
func (e *Engine) SetParams(orderSize, profit, stopLoss string) (Params, error) {
	p, err := ParseParams(orderSize, profit, stopLoss)
	if err != nil {
		e.log.Warn().Err(err).Msg("⚠️  [参数] 参数不合法，保持原值")
		return e.params.Get(), err
	}
	if err := e.params.Set(p); err != nil {
		return e.params.Get(), err
	}
	e.log.Info().
		Float64("order_size_fraction", p.OrderSizeFraction).
		Float64("profit_threshold", p.ProfitThreshold).
		Float64("stop_loss_threshold", p.StopLossThreshold).
		Msg("🔧 [参数] 交易参数已更新")
	return p, nil
}

// Params 当前参数
func (e *Engine) Params() Params { return e.params.Get() }

// Position 当前持仓快照
func (e *Engine) Position() LedgerSnapshot { return e.ledger.Snapshot() }
