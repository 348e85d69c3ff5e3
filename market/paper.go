package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPaperInsufficientFunds 模拟账户余额不足
var ErrPaperInsufficientFunds = errors.New("paper: insufficient funds")

// MarketData 只读行情接口（模拟盘的数据来源）
type MarketData interface {
	FetchTicker(ctx context.Context, pair Pair) (*Ticker, error)
	FetchOHLCV(ctx context.Context, pair Pair, interval string, limit int) ([]Kline, error)
}

// PaperExchange 模拟盘：行情取自真实数据源，余额与成交在内存中模拟
type PaperExchange struct {
	data    MarketData
	feeRate float64

	mu       sync.Mutex
	balances map[string]float64
}

// NewPaperExchange 创建模拟盘，initial 为初始余额（币种 -> 数量）
func NewPaperExchange(data MarketData, initial map[string]float64, feeRate float64) *PaperExchange {
	balances := make(map[string]float64, len(initial))
	for asset, amount := range initial {
		balances[strings.ToUpper(asset)] = amount
	}
	return &PaperExchange{data: data, feeRate: feeRate, balances: balances}
}

func (p *PaperExchange) FetchTicker(ctx context.Context, pair Pair) (*Ticker, error) {
	return p.data.FetchTicker(ctx, pair)
}

func (p *PaperExchange) FetchOHLCV(ctx context.Context, pair Pair, interval string, limit int) ([]Kline, error) {
	return p.data.FetchOHLCV(ctx, pair, interval, limit)
}

// FetchBalance 返回余额副本
func (p *PaperExchange) FetchBalance(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

// CreateMarketBuyOrder 以最新价模拟买入，手续费从买到的 base 中扣除
func (p *PaperExchange) CreateMarketBuyOrder(ctx context.Context, pair Pair, baseAmount float64) (*Order, error) {
	if baseAmount <= 0 {
		return nil, fmt.Errorf("paper: 买入数量必须大于0")
	}
	price, err := p.lastPrice(ctx, pair)
	if err != nil {
		return nil, err
	}
	cost := baseAmount * price

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.balances[pair.Quote] < cost {
		return nil, fmt.Errorf("%w: 需要 %.4f %s，可用 %.4f", ErrPaperInsufficientFunds, cost, pair.Quote, p.balances[pair.Quote])
	}
	received := baseAmount * (1 - p.feeRate)
	p.balances[pair.Quote] -= cost
	p.balances[pair.Base] += received

	return p.order(pair, SideBuy, received, cost, price), nil
}

// CreateMarketSellOrder 以最新价模拟卖出，手续费从得到的 quote 中扣除
func (p *PaperExchange) CreateMarketSellOrder(ctx context.Context, pair Pair, baseAmount float64) (*Order, error) {
	if baseAmount <= 0 {
		return nil, fmt.Errorf("paper: 卖出数量必须大于0")
	}
	price, err := p.lastPrice(ctx, pair)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.balances[pair.Base] < baseAmount {
		return nil, fmt.Errorf("%w: 需要 %.4f %s，可用 %.4f", ErrPaperInsufficientFunds, baseAmount, pair.Base, p.balances[pair.Base])
	}
	proceeds := baseAmount * price * (1 - p.feeRate)
	p.balances[pair.Base] -= baseAmount
	p.balances[pair.Quote] += proceeds

	return p.order(pair, SideSell, baseAmount, proceeds, price), nil
}

func (p *PaperExchange) lastPrice(ctx context.Context, pair Pair) (float64, error) {
	ticker, err := p.data.FetchTicker(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("paper: 获取成交价失败: %w", err)
	}
	if ticker.Last <= 0 {
		return 0, fmt.Errorf("paper: 无效成交价 %v", ticker.Last)
	}
	return ticker.Last, nil
}

func (p *PaperExchange) order(pair Pair, side string, filled, cost, price float64) *Order {
	return &Order{
		ID:        uuid.New().String(),
		Symbol:    pair.Symbol(),
		Side:      side,
		Status:    "FILLED",
		Filled:    filled,
		Cost:      cost,
		Average:   price,
		Timestamp: time.Now().UTC(),
	}
}
