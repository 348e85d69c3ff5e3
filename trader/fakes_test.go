package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pibot/decision"
	"pibot/market"

	"github.com/rs/zerolog"
)

var piUSDT = market.Pair{Base: "PI", Quote: "USDT"}

var errExchangeDown = errors.New("exchange unreachable")

// fakeExchange 内存交易所：按当前价格成交，余额同步变动
type fakeExchange struct {
	mu sync.Mutex

	price     float64
	change24h float64
	klines    []market.Kline
	balances  map[string]float64

	tickerErr  error
	klineErr   error
	balanceErr error
	orderErr   error
	orderDelay time.Duration

	tickerCalls int
	klineCalls  int
	buys        []float64
	sells       []float64
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		price:     100,
		change24h: -8,
		klines:    crashKlines(),
		balances:  map[string]float64{"USDT": 1000, "PI": 0},
	}
}

func (f *fakeExchange) setPrice(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

func (f *fakeExchange) setBalance(asset string, v float64) {
	f.mu.Lock()
	f.balances[asset] = v
	f.mu.Unlock()
}

func (f *fakeExchange) orderCounts() (buys, sells int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys), len(f.sells)
}

func (f *fakeExchange) FetchTicker(ctx context.Context, pair market.Pair) (*market.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickerCalls++
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	return &market.Ticker{Symbol: pair.Symbol(), Last: f.price, Change24h: f.change24h}, nil
}

func (f *fakeExchange) FetchOHLCV(ctx context.Context, pair market.Pair, interval string, limit int) ([]market.Kline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.klineCalls++
	if f.klineErr != nil {
		return nil, f.klineErr
	}
	return market.TakeLast(f.klines, limit), nil
}

func (f *fakeExchange) FetchBalance(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	out := make(map[string]float64, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExchange) CreateMarketBuyOrder(ctx context.Context, pair market.Pair, baseAmount float64) (*market.Order, error) {
	if f.orderDelay > 0 {
		time.Sleep(f.orderDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.buys = append(f.buys, baseAmount)
	cost := baseAmount * f.price
	f.balances[pair.Quote] -= cost
	f.balances[pair.Base] += baseAmount
	return &market.Order{
		ID: fmt.Sprintf("buy-%d", len(f.buys)), Symbol: pair.Symbol(), Side: market.SideBuy,
		Filled: baseAmount, Cost: cost, Average: f.price,
	}, nil
}

func (f *fakeExchange) CreateMarketSellOrder(ctx context.Context, pair market.Pair, baseAmount float64) (*market.Order, error) {
	if f.orderDelay > 0 {
		time.Sleep(f.orderDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.sells = append(f.sells, baseAmount)
	cost := baseAmount * f.price
	f.balances[pair.Quote] += cost
	f.balances[pair.Base] -= baseAmount
	return &market.Order{
		ID: fmt.Sprintf("sell-%d", len(f.sells)), Symbol: pair.Symbol(), Side: market.SideSell,
		Filled: baseAmount, Cost: cost, Average: f.price,
	}, nil
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// constRand 固定随机值
type constRand float64

func (r constRand) Float64() float64 { return float64(r) }

// recorder 记录所有通知事件
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ctx context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

// failingNotifier 每次发送都失败
type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *failingNotifier) Notify(ctx context.Context, ev Event) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("chat api unavailable")
}

func (f *failingNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// hungNotifier 忽略 ctx，直到 release 关闭才返回
type hungNotifier struct {
	release chan struct{}
}

func newHungNotifier(t *testing.T) *hungNotifier {
	n := &hungNotifier{release: make(chan struct{})}
	t.Cleanup(func() { close(n.release) })
	return n
}

func (n *hungNotifier) Notify(ctx context.Context, ev Event) error {
	<-n.release
	return nil
}

// memJournal 内存流水，同时记录写入时 ctx 的状态
type memJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
	ctxErrs []error
}

func (j *memJournal) Record(ctx context.Context, e JournalEntry) error {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.ctxErrs = append(j.ctxErrs, ctx.Err())
	j.mu.Unlock()
	return nil
}

// crashKlines 连续下跌的K线：RSI 超卖 + 高波动，配合 -8% 的 24h 跌幅评分为 7
func crashKlines() []market.Kline {
	klines := make([]market.Kline, 20)
	price := 10.0
	for i := range klines {
		klines[i] = market.Kline{OpenTime: int64(i) * 300_000, Open: price, High: price, Low: price, Close: price, Volume: 1}
		price *= 0.97
	}
	return klines
}

// risingKlines 连续上涨：趋势 +3，RSI 超买 -3，评分 0
func risingKlines() []market.Kline {
	klines := make([]market.Kline, 20)
	price := 1.0
	for i := range klines {
		klines[i] = market.Kline{OpenTime: int64(i) * 300_000, Open: price, High: price, Low: price, Close: price, Volume: 1}
		price *= 1.01
	}
	return klines
}

type testEngine struct {
	*Engine
	ex      *fakeExchange
	events  *recorder
	clock   *fakeClock
	journal *memJournal
}

func newTestEngine(t *testing.T, ex *fakeExchange, draw float64) *testEngine {
	t.Helper()
	events := &recorder{}
	clock := newFakeClock()
	journal := &memJournal{}

	opts := DefaultOptions(piUSDT)
	engine, err := NewEngine(opts, Deps{
		Exchange: ex,
		Analyzer: decision.NewAnalyzer(decision.DefaultVolatilityThreshold, constRand(draw)),
		Notifier: events,
		Journal:  journal,
		Logger:   zerolog.Nop(),
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &testEngine{Engine: engine, ex: ex, events: events, clock: clock, journal: journal}
}
