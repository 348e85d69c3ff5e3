package market

import (
	"context"
	"time"
)

// Pair 交易对（如 PI/USDT）
type Pair struct {
	Base  string `yaml:"base" json:"base"`
	Quote string `yaml:"quote" json:"quote"`
}

// String 返回 BASE/QUOTE 形式
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Symbol 返回交易所使用的连写形式（如 PIUSDT）
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}

// Kline K线数据（最新的在最后）
type Kline struct {
	OpenTime    int64   `json:"openTime"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	CloseTime   int64   `json:"closeTime"`
	QuoteVolume float64 `json:"quoteVolume"`
}

// Ticker 24小时行情
type Ticker struct {
	Symbol      string    `json:"symbol"`
	Last        float64   `json:"last"`
	QuoteVolume float64   `json:"quote_volume"`
	Change24h   float64   `json:"change_24h"` // 百分比，-5 表示 -5%
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Timestamp   time.Time `json:"timestamp"`
}

// Order 市价单成交回报
type Order struct {
	ID            string    `json:"id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Status        string    `json:"status"`
	Filled        float64   `json:"filled"`  // 成交的 base 数量
	Cost          float64   `json:"cost"`    // 成交的 quote 金额
	Average       float64   `json:"average"` // 成交均价
	Timestamp     time.Time `json:"timestamp"`
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Exchange 交易所最小接口，所有方法都可能因网络/鉴权/限频失败
type Exchange interface {
	FetchTicker(ctx context.Context, pair Pair) (*Ticker, error)
	FetchOHLCV(ctx context.Context, pair Pair, interval string, limit int) ([]Kline, error)
	FetchBalance(ctx context.Context) (map[string]float64, error)
	CreateMarketBuyOrder(ctx context.Context, pair Pair, baseAmount float64) (*Order, error)
	CreateMarketSellOrder(ctx context.Context, pair Pair, baseAmount float64) (*Order, error)
}
