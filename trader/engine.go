package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pibot/decision"
	"pibot/market"
	"pibot/metrics"

	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval      = 60 * time.Second
	DefaultCooldown          = 300 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultMinNotional       = 10.0
	DefaultKlineInterval     = "5m"
	DefaultKlineLimit        = 20
	DefaultNotifyTimeout     = 10 * time.Second

	// AnalysisChatterProbability 空仓且冷却结束的轮次发送分析播报的概率
	AnalysisChatterProbability = 0.3
)

// Options 交易循环配置，零值字段在 NewEngine 中补默认值
type Options struct {
	Pair              market.Pair
	KlineInterval     string
	KlineLimit        int
	PollInterval      time.Duration
	Cooldown          time.Duration
	BackoffMultiplier float64
	MinNotional       float64 // 最小下单额（计价币）
	NotifyTimeout     time.Duration
}

// DefaultOptions 默认配置
func DefaultOptions(pair market.Pair) Options {
	return Options{
		Pair:              pair,
		KlineInterval:     DefaultKlineInterval,
		KlineLimit:        DefaultKlineLimit,
		PollInterval:      DefaultPollInterval,
		Cooldown:          DefaultCooldown,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MinNotional:       DefaultMinNotional,
		NotifyTimeout:     DefaultNotifyTimeout,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions(o.Pair)
	if o.KlineInterval == "" {
		o.KlineInterval = def.KlineInterval
	}
	if o.KlineLimit <= 0 {
		o.KlineLimit = def.KlineLimit
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.Cooldown <= 0 {
		o.Cooldown = def.Cooldown
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = def.BackoffMultiplier
	}
	if o.MinNotional <= 0 {
		o.MinNotional = def.MinNotional
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = def.NotifyTimeout
	}
	return o
}

// Deps 交易引擎依赖
type Deps struct {
	Exchange market.Exchange
	Analyzer *decision.Analyzer
	Params   *ParamStore
	Notifier Notifier
	Journal  Journal             // 可选
	Metrics  *metrics.Metrics    // 可选
	Chatter  decision.RandSource // 可选，为 nil 时不发送分析播报
	Logger   zerolog.Logger
	Now      func() time.Time
}

// CycleOutcome 单轮结果
type CycleOutcome string

const (
	OutcomeHold           CycleOutcome = "hold"
	OutcomeNoSignal       CycleOutcome = "no_signal"
	OutcomeCooldown       CycleOutcome = "cooldown"
	OutcomeEntered        CycleOutcome = "entered"
	OutcomeExited         CycleOutcome = "exited"
	OutcomeRejected       CycleOutcome = "rejected"
	OutcomeDataError      CycleOutcome = "data_error"
	OutcomeExecutionError CycleOutcome = "execution_error"
)

// CycleResult 单轮执行结果
type CycleResult struct {
	Outcome    CycleOutcome
	Price      float64
	PnLPct     float64 // 持仓时的浮动收益率
	Evaluation *decision.Evaluation
	Position   *Position
	Trade      *Trade
}

// Engine 交易引擎：自动轮询循环 + 手动命令，共享同一个 Ledger
type Engine struct {
	opts     Options
	exchange market.Exchange
	executor *Executor
	analyzer *decision.Analyzer
	params   *ParamStore
	ledger   *Ledger
	notifier Notifier
	journal  Journal
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	chatterMu sync.Mutex
	chatter   decision.RandSource

	mu        sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
	isRunning bool
}

// NewEngine 创建交易引擎，初始为空仓且冷却时钟未设置
func NewEngine(opts Options, deps Deps) (*Engine, error) {
	if deps.Exchange == nil {
		return nil, errors.New("trader: exchange is required")
	}
	if opts.Pair.Base == "" || opts.Pair.Quote == "" {
		return nil, fmt.Errorf("trader: invalid pair %q", opts.Pair.String())
	}
	opts = opts.withDefaults()

	if deps.Analyzer == nil {
		deps.Analyzer = decision.NewAnalyzer(decision.DefaultVolatilityThreshold, nil)
	}
	if deps.Params == nil {
		store, err := NewParamStore(DefaultParams())
		if err != nil {
			return nil, err
		}
		deps.Params = store
	}
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(func(context.Context, Event) error { return nil })
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	log := deps.Logger.With().Str("component", "engine").Str("pair", opts.Pair.String()).Logger()
	return &Engine{
		opts:     opts,
		exchange: deps.Exchange,
		executor: NewExecutor(deps.Exchange, opts.Pair, deps.Logger),
		analyzer: deps.Analyzer,
		params:   deps.Params,
		ledger:   NewLedger(deps.Now),
		notifier: deps.Notifier,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		log:      log,
		now:      deps.Now,
		chatter:  deps.Chatter,
	}, nil
}

// Options 返回生效中的配置
func (e *Engine) Options() Options { return e.opts }

// Ledger 持仓账本
func (e *Engine) Ledger() *Ledger { return e.ledger }

// RunCycle 执行一轮：持仓时检查止盈止损，空仓且冷却结束时评估入场信号
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	params := e.params.Get()

	ticker, err := e.exchange.FetchTicker(ctx, e.opts.Pair)
	if err != nil {
		err = dataUnavailable("fetch ticker", err)
		return e.finish(ctx, CycleResult{Outcome: e.handleFailure(ctx, err, false)}, err)
	}
	price := ticker.Last
	e.metrics.SetPrice(price)
	result := CycleResult{Price: price}

	snap := e.ledger.Snapshot()
	if snap.State == StateLong {
		reason, pct := decision.CheckExit(snap.EntryPrice, price, params.ProfitThreshold, params.StopLossThreshold)
		result.PnLPct = pct
		if reason == decision.ExitNone {
			e.log.Debug().
				Float64("entry", snap.EntryPrice).
				Float64("price", price).
				Float64("pnl_pct", pct*100).
				Msg("📊 [持仓] 未触发止盈止损，继续持有")
			result.Outcome = OutcomeHold
			return e.finish(ctx, result, nil)
		}

		trade, err := e.closePosition(ctx, price, reason, false)
		if err != nil {
			result.Outcome = e.handleFailure(ctx, err, false)
			return e.finish(ctx, result, err)
		}
		result.Outcome = OutcomeExited
		result.Trade = trade
		return e.finish(ctx, result, nil)
	}

	if remaining := e.ledger.CooldownRemaining(e.opts.Cooldown); remaining > 0 {
		e.log.Debug().Dur("remaining", remaining).Msg("⏳ [冷却] 冷却期内，跳过入场评估")
		result.Outcome = OutcomeCooldown
		return e.finish(ctx, result, nil)
	}

	e.maybeChatter(ctx)

	klines, err := e.exchange.FetchOHLCV(ctx, e.opts.Pair, e.opts.KlineInterval, e.opts.KlineLimit)
	if err != nil {
		err = dataUnavailable("fetch klines", err)
		result.Outcome = e.handleFailure(ctx, err, false)
		return e.finish(ctx, result, err)
	}

	eval, err := e.analyzer.Evaluate(klines, ticker.Change24h)
	if err != nil {
		err = dataUnavailable("analyze klines", err)
		result.Outcome = e.handleFailure(ctx, err, false)
		return e.finish(ctx, result, err)
	}
	result.Evaluation = eval
	e.metrics.SetRiskScore(eval.RiskScore)
	e.log.Info().
		Int("risk_score", eval.RiskScore).
		Float64("rsi", eval.RSI).
		Float64("volatility", eval.Volatility).
		Float64("short_sma", eval.ShortSMA).
		Float64("long_sma", eval.LongSMA).
		Bool("buy_signal", eval.BuySignal).
		Msg("🧮 [信号] 市场分析完成")

	if !eval.BuySignal {
		result.Outcome = OutcomeNoSignal
		return e.finish(ctx, result, nil)
	}

	pos, err := e.openPosition(ctx, price, params, false, eval.RiskScore)
	if err != nil {
		result.Outcome = e.handleFailure(ctx, err, false)
		return e.finish(ctx, result, err)
	}
	result.Outcome = OutcomeEntered
	result.Position = &pos
	return e.finish(ctx, result, nil)
}

// maybeChatter 按概率发送一条分析播报，不影响决策
func (e *Engine) maybeChatter(ctx context.Context) {
	if e.chatter == nil {
		return
	}
	e.chatterMu.Lock()
	draw := e.chatter.Float64()
	e.chatterMu.Unlock()
	if draw < AnalysisChatterProbability {
		e.notify(ctx, Event{Kind: EventAnalysis})
	}
}

func (e *Engine) finish(_ context.Context, result CycleResult, err error) (CycleResult, error) {
	e.metrics.ObserveCycle(string(result.Outcome))
	return result, err
}

// openPosition 在 Ledger 临界区内查询余额、计算下单额并市价买入
func (e *Engine) openPosition(ctx context.Context, price float64, params Params, manual bool, riskScore int) (Position, error) {
	var fill Fill
	pos, err := e.ledger.TryOpen(ctx, OpenRequest{
		Price:    price,
		Manual:   manual,
		Cooldown: e.opts.Cooldown,
		Execute: func(ctx context.Context) (Fill, error) {
			// 已提交的订单必须等到结果，不随上层取消中断
			orderCtx := context.WithoutCancel(ctx)
			freeQuote, _, err := e.executor.Balances(orderCtx)
			if err != nil {
				return Fill{}, err
			}
			notional, err := PlanEntry(freeQuote, params.OrderSizeFraction, e.opts.MinNotional)
			if err != nil {
				return Fill{}, err
			}
			fill, err = e.executor.Buy(orderCtx, notional, price)
			return fill, err
		},
	})
	if err != nil {
		return pos, err
	}
	// 订单已成交，通知与流水不随上层取消丢失
	ctx = context.WithoutCancel(ctx)

	target, stop := decision.TargetPrices(pos.EntryPrice, params.ProfitThreshold, params.StopLossThreshold)
	e.log.Info().
		Bool("manual", manual).
		Float64("entry", pos.EntryPrice).
		Float64("amount", pos.Amount).
		Float64("quote", fill.QuoteAmount).
		Float64("target", target).
		Float64("stop", stop).
		Msg("🟢 [开仓] 买入成功")

	e.metrics.ObserveTrade("buy", manual)
	e.metrics.SetPosition(true, pos.EntryPrice)
	e.notify(ctx, Event{
		Kind:      EventBuy,
		Manual:    manual,
		Price:     pos.EntryPrice,
		Amount:    pos.Amount,
		Quote:     fill.QuoteAmount,
		Target:    target,
		Stop:      stop,
		RiskScore: riskScore,
	})
	e.record(ctx, JournalEntry{
		Side:    "buy",
		Manual:  manual,
		Price:   pos.EntryPrice,
		Amount:  pos.Amount,
		Quote:   fill.QuoteAmount,
		OrderID: fill.OrderID,
		At:      pos.OpenedAt,
	})
	return pos, nil
}

// closePosition 在 Ledger 临界区内卖出全部可用 base 币，粉尘仓位保持 LONG
func (e *Engine) closePosition(ctx context.Context, price float64, reason decision.ExitReason, manual bool) (*Trade, error) {
	trade, err := e.ledger.TryClose(ctx, CloseRequest{
		Price:  price,
		Reason: reason,
		Execute: func(ctx context.Context, _ Position) (Fill, error) {
			orderCtx := context.WithoutCancel(ctx)
			_, freeBase, err := e.executor.Balances(orderCtx)
			if err != nil {
				return Fill{}, err
			}
			amount, err := PlanExit(freeBase, price, e.opts.MinNotional)
			if err != nil {
				return Fill{}, err
			}
			return e.executor.Sell(orderCtx, amount, price)
		},
	})
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	e.log.Info().
		Str("reason", string(trade.Reason)).
		Float64("entry", trade.EntryPrice).
		Float64("exit", trade.ExitPrice).
		Float64("amount", trade.Amount).
		Float64("pnl", trade.PnL).
		Float64("pnl_pct", trade.PnLPct*100).
		Msg("🔴 [平仓] 卖出成功")

	e.metrics.ObserveTrade("sell", manual)
	e.metrics.SetPosition(false, 0)
	e.metrics.AddRealizedPnL(trade.PnL)
	e.notify(ctx, Event{
		Kind:       EventSell,
		Manual:     manual,
		Price:      trade.ExitPrice,
		Amount:     trade.Amount,
		Quote:      trade.Fill.QuoteAmount,
		EntryPrice: trade.EntryPrice,
		PnL:        trade.PnL,
		PnLPct:     trade.PnLPct,
		Reason:     string(trade.Reason),
	})
	e.record(ctx, JournalEntry{
		Side:       "sell",
		Manual:     manual,
		Reason:     string(trade.Reason),
		Price:      trade.ExitPrice,
		Amount:     trade.Amount,
		Quote:      trade.Fill.QuoteAmount,
		EntryPrice: trade.EntryPrice,
		PnL:        trade.PnL,
		PnLPct:     trade.PnLPct,
		OrderID:    trade.Fill.OrderID,
		At:         trade.ClosedAt,
	})
	return trade, nil
}

// handleFailure 记录并上报失败。手动命令的失败由命令通道直接回复，不再重复通知
func (e *Engine) handleFailure(ctx context.Context, err error, manual bool) CycleOutcome {
	if reason, ok := RejectionReason(err); ok {
		e.metrics.ObserveRejection(string(reason))
		e.log.Warn().Err(err).Bool("manual", manual).Msg("⚠️  [风控] 状态迁移被拒绝")
		// 自动循环与手动命令竞争导致的状态变化已由对方的成交通知覆盖
		raced := reason == ReasonAlreadyOpen || reason == ReasonAlreadyFlat
		if !manual && !raced {
			e.notify(ctx, Event{Kind: EventRejected, Reason: string(reason), Message: err.Error()})
		}
		return OutcomeRejected
	}

	if errors.Is(err, ErrDataUnavailable) {
		e.metrics.ObserveError("data")
		e.log.Error().Err(err).Bool("manual", manual).Msg("❌ [行情] 数据获取失败，跳过本轮决策")
		if !manual {
			e.notify(ctx, Event{Kind: EventDataError, Message: err.Error()})
		}
		return OutcomeDataError
	}

	e.metrics.ObserveError("execution")
	e.log.Error().Err(err).Bool("manual", manual).Msg("❌ [下单] 执行失败，状态未变更")
	if !manual {
		e.notify(ctx, Event{Kind: EventExecutionError, Message: err.Error()})
	}
	return OutcomeExecutionError
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	if ev.Pair == "" {
		ev.Pair = e.opts.Pair.String()
	}

	// 通知尽力而为：超时后不再等待，避免卡住交易循环
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.NotifyTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.notifier.Notify(nctx, ev) }()

	select {
	case err := <-done:
		if err != nil {
			e.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("⚠️  [通知] 发送失败")
		}
	case <-nctx.Done():
		e.log.Warn().Dur("timeout", e.opts.NotifyTimeout).Str("kind", string(ev.Kind)).Msg("⚠️  [通知] 发送超时，已放弃等待")
	}
}

func (e *Engine) record(ctx context.Context, entry JournalEntry) {
	if e.journal == nil {
		return
	}
	if entry.Pair == "" {
		entry.Pair = e.opts.Pair.String()
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		e.log.Warn().Err(err).Str("side", entry.Side).Msg("⚠️  [流水] 写入失败")
	}
}

// nextWait 数据获取失败时按倍数退避
func (e *Engine) nextWait(err error) time.Duration {
	if errors.Is(err, ErrDataUnavailable) {
		return time.Duration(float64(e.opts.PollInterval) * e.opts.BackoffMultiplier)
	}
	return e.opts.PollInterval
}

// Start 启动自动交易循环（独立goroutine）；ctx 取消或 Stop 后退出
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		e.log.Warn().Msg("⚠️  [交易循环] 已在运行，跳过启动")
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.isRunning = true
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	go func() {
		defer close(doneCh)
		e.loop(ctx, stopCh)
	}()
}

// Stop 停止自动交易循环，等待当前一轮（含在途订单）完成
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = false
	// 只操作本次运行的通道，并发的 Start 会创建新的一组
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
	e.log.Info().Msg("✅ [交易循环] 已停止")
}

// Run 阻塞运行直到 ctx 取消
func (e *Engine) Run(ctx context.Context) {
	e.Start(ctx)
	<-ctx.Done()
	e.Stop()
}

func (e *Engine) loop(ctx context.Context, stopCh <-chan struct{}) {
	e.log.Info().
		Dur("poll_interval", e.opts.PollInterval).
		Dur("cooldown", e.opts.Cooldown).
		Msg("🚀 [交易循环] 启动")
	e.notify(ctx, Event{
		Kind:    EventStartup,
		Message: fmt.Sprintf("watching %s every %s", e.opts.Pair, e.opts.PollInterval),
	})

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			e.log.Info().Msg("⏹  [交易循环] 收到停止信号")
			return
		case <-ctx.Done():
			e.log.Info().Msg("⏹  [交易循环] 上下文取消")
			return
		case <-timer.C:
			_, err := e.RunCycle(ctx)
			timer.Reset(e.nextWait(err))
		}
	}
}
