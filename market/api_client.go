package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BinanceOptions 现货客户端参数
type BinanceOptions struct {
	APIKey            string
	SecretKey         string
	Testnet           bool
	BaseURL           string // 非空时覆盖默认地址
	QuantityPrecision int    // 下单数量保留的小数位
	Timeout           time.Duration
}

// BinanceClient 基于 go-binance 的现货交易所实现
type BinanceClient struct {
	client    *binance.Client
	precision int32
	log       zerolog.Logger
}

// NewBinanceClient 创建现货客户端
func NewBinanceClient(opts BinanceOptions, log zerolog.Logger) *BinanceClient {
	binance.UseTestnet = opts.Testnet
	client := binance.NewClient(opts.APIKey, opts.SecretKey)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	if opts.BaseURL != "" {
		client.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	precision := opts.QuantityPrecision
	if precision < 0 {
		precision = 0
	}

	return &BinanceClient{
		client:    client,
		precision: int32(precision),
		log:       log.With().Str("component", "binance").Logger(),
	}
}

// FetchTicker 获取24小时行情
func (c *BinanceClient) FetchTicker(ctx context.Context, pair Pair) (*Ticker, error) {
	stats, err := c.client.NewListPriceChangeStatsService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取%s行情失败: %w", pair, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("获取%s行情失败: 响应为空", pair)
	}
	return convertTicker(stats[0])
}

// FetchOHLCV 获取最近 limit 根K线（最旧的在前）
func (c *BinanceClient) FetchOHLCV(ctx context.Context, pair Pair, interval string, limit int) ([]Kline, error) {
	raw, err := c.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取%s %s K线失败: %w", pair, interval, err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, kr := range raw {
		kline, err := convertKline(kr)
		if err != nil {
			c.log.Warn().Err(err).Msg("⚠️  解析K线数据失败，跳过")
			continue
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

// FetchBalance 获取各币种可用余额
func (c *BinanceClient) FetchBalance(ctx context.Context) (map[string]float64, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取账户余额失败: %w", err)
	}

	balances := make(map[string]float64, len(account.Balances))
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			continue
		}
		balances[strings.ToUpper(b.Asset)] = free
	}
	return balances, nil
}

// CreateMarketBuyOrder 市价买入 baseAmount 个 base 币
func (c *BinanceClient) CreateMarketBuyOrder(ctx context.Context, pair Pair, baseAmount float64) (*Order, error) {
	return c.createMarketOrder(ctx, pair, binance.SideTypeBuy, baseAmount)
}

// CreateMarketSellOrder 市价卖出 baseAmount 个 base 币
func (c *BinanceClient) CreateMarketSellOrder(ctx context.Context, pair Pair, baseAmount float64) (*Order, error) {
	return c.createMarketOrder(ctx, pair, binance.SideTypeSell, baseAmount)
}

func (c *BinanceClient) createMarketOrder(ctx context.Context, pair Pair, side binance.SideType, baseAmount float64) (*Order, error) {
	qty, err := FormatQuantity(baseAmount, c.precision)
	if err != nil {
		return nil, err
	}

	clientOrderID := "pibot-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:20]
	c.log.Info().
		Str("symbol", pair.Symbol()).
		Str("side", string(side)).
		Str("qty", qty).
		Str("client_order_id", clientOrderID).
		Msg("📤 提交市价单")

	resp, err := c.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(qty).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s %s 市价单失败: %w", pair, side, err)
	}
	return convertOrder(resp), nil
}

// FormatQuantity 按精度截断下单数量（不四舍五入，避免超出可用余额）
func FormatQuantity(amount float64, precision int32) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("下单数量必须大于0: %v", amount)
	}
	qty := decimal.NewFromFloat(amount).Truncate(precision)
	if !qty.IsPositive() {
		return "", fmt.Errorf("下单数量 %v 在精度 %d 下为0", amount, precision)
	}
	return qty.String(), nil
}

func convertTicker(s *binance.PriceChangeStats) (*Ticker, error) {
	last, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("解析最新价失败: %w", err)
	}
	change, _ := strconv.ParseFloat(s.PriceChangePercent, 64)
	high, _ := strconv.ParseFloat(s.HighPrice, 64)
	low, _ := strconv.ParseFloat(s.LowPrice, 64)
	quoteVolume, _ := strconv.ParseFloat(s.QuoteVolume, 64)

	return &Ticker{
		Symbol:      s.Symbol,
		Last:        last,
		QuoteVolume: quoteVolume,
		Change24h:   change,
		High:        high,
		Low:         low,
		Timestamp:   time.UnixMilli(s.CloseTime),
	}, nil
}

func convertKline(k *binance.Kline) (Kline, error) {
	var kline Kline
	if k == nil {
		return kline, fmt.Errorf("invalid kline data")
	}

	var err error
	kline.OpenTime = k.OpenTime
	kline.CloseTime = k.CloseTime
	if kline.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return kline, err
	}
	if kline.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return kline, err
	}
	if kline.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return kline, err
	}
	if kline.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return kline, err
	}
	kline.Volume, _ = strconv.ParseFloat(k.Volume, 64)
	kline.QuoteVolume, _ = strconv.ParseFloat(k.QuoteAssetVolume, 64)
	return kline, nil
}

func convertOrder(resp *binance.CreateOrderResponse) *Order {
	filled, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	cost, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)

	// 优先用成交明细计算均价，明细缺失时退化为 cost/filled
	var avg float64
	var fillQty, fillCost float64
	for _, f := range resp.Fills {
		price, err1 := strconv.ParseFloat(f.Price, 64)
		qty, err2 := strconv.ParseFloat(f.Quantity, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		fillQty += qty
		fillCost += price * qty
	}
	switch {
	case fillQty > 0:
		avg = fillCost / fillQty
	case filled > 0:
		avg = cost / filled
	}

	return &Order{
		ID:            strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          string(resp.Side),
		Status:        string(resp.Status),
		Filled:        filled,
		Cost:          cost,
		Average:       avg,
		Timestamp:     time.UnixMilli(resp.TransactTime),
	}
}
