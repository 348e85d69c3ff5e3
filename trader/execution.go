package trader

import (
	"context"
	"fmt"

	"pibot/market"

	"github.com/rs/zerolog"
)

// Executor 下单封装：把买卖决策转换为交易所市价单
type Executor struct {
	exchange market.Exchange
	pair     market.Pair
	log      zerolog.Logger
}

// NewExecutor 创建下单执行器
func NewExecutor(ex market.Exchange, pair market.Pair, log zerolog.Logger) *Executor {
	return &Executor{exchange: ex, pair: pair, log: log.With().Str("component", "executor").Logger()}
}

// Balances 返回 (计价币可用, base 币可用)
func (e *Executor) Balances(ctx context.Context) (quote, base float64, err error) {
	balances, err := e.exchange.FetchBalance(ctx)
	if err != nil {
		return 0, 0, dataUnavailable("fetch balance", err)
	}
	return balances[e.pair.Quote], balances[e.pair.Base], nil
}

// Buy 用 quoteAmount 计价币按 price 折算数量市价买入
func (e *Executor) Buy(ctx context.Context, quoteAmount, price float64) (Fill, error) {
	if price <= 0 {
		return Fill{}, fmt.Errorf("%w: invalid price %v", ErrExecution, price)
	}
	baseAmount := quoteAmount / price

	order, err := e.exchange.CreateMarketBuyOrder(ctx, e.pair, baseAmount)
	if err != nil {
		e.log.Error().Err(err).Float64("base", baseAmount).Float64("price", price).Msg("❌ [下单] 市价买入失败")
		return Fill{}, fmt.Errorf("%w: buy %s: %v", ErrExecution, e.pair, err)
	}

	fill := fillFromOrder(order, baseAmount, price)
	e.log.Info().
		Str("order_id", fill.OrderID).
		Float64("base", fill.BaseAmount).
		Float64("quote", fill.QuoteAmount).
		Float64("avg_price", fill.AvgPrice).
		Msg("✅ [下单] 市价买入成交")
	return fill, nil
}

// Sell 市价卖出 baseAmount 个 base 币
func (e *Executor) Sell(ctx context.Context, baseAmount, price float64) (Fill, error) {
	order, err := e.exchange.CreateMarketSellOrder(ctx, e.pair, baseAmount)
	if err != nil {
		e.log.Error().Err(err).Float64("base", baseAmount).Float64("price", price).Msg("❌ [下单] 市价卖出失败")
		return Fill{}, fmt.Errorf("%w: sell %s: %v", ErrExecution, e.pair, err)
	}

	fill := fillFromOrder(order, baseAmount, price)
	e.log.Info().
		Str("order_id", fill.OrderID).
		Float64("base", fill.BaseAmount).
		Float64("quote", fill.QuoteAmount).
		Float64("avg_price", fill.AvgPrice).
		Msg("✅ [下单] 市价卖出成交")
	return fill, nil
}

// fillFromOrder 交易所未返回成交明细时，退化为请求数量 × 决策价格
func fillFromOrder(order *market.Order, requested, price float64) Fill {
	fill := Fill{BaseAmount: requested, AvgPrice: price}
	if order == nil {
		fill.QuoteAmount = requested * price
		return fill
	}
	fill.OrderID = order.ID
	if order.Filled > 0 {
		fill.BaseAmount = order.Filled
	}
	if order.Average > 0 {
		fill.AvgPrice = order.Average
	}
	if order.Cost > 0 {
		fill.QuoteAmount = order.Cost
	} else {
		fill.QuoteAmount = fill.BaseAmount * fill.AvgPrice
	}
	return fill
}

// PlanEntry 计算开仓投入的计价币金额
func PlanEntry(freeQuote, fraction, minNotional float64) (float64, error) {
	if freeQuote <= 0 {
		return 0, reject(ReasonInsufficientBalance, "free balance %.4f", freeQuote)
	}
	notional := freeQuote * fraction
	if notional > freeQuote {
		return 0, reject(ReasonInsufficientBalance, "order %.4f exceeds free balance %.4f", notional, freeQuote)
	}
	if notional < minNotional {
		return 0, reject(ReasonBelowMinimumSize, "order %.4f below minimum %.2f", notional, minNotional)
	}
	return notional, nil
}

// PlanExit 校验平仓数量，价值低于最小额视为粉尘
func PlanExit(freeBase, price, minNotional float64) (float64, error) {
	if freeBase <= 0 {
		return 0, reject(ReasonInsufficientBalance, "no base balance to sell")
	}
	if value := freeBase * price; value < minNotional {
		return 0, reject(ReasonBelowMinimumSize, "position value %.4f below minimum %.2f", value, minNotional)
	}
	return freeBase, nil
}
