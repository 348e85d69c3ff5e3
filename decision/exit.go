package decision

// ExitReason 平仓原因
type ExitReason string

const (
	ExitNone     ExitReason = ""
	ExitProfit   ExitReason = "profit"
	ExitStopLoss ExitReason = "stop_loss"
	ExitManual   ExitReason = "manual"
)

// ProfitPct 持仓收益率 (price-entry)/entry，entry<=0 时返回 0
func ProfitPct(entryPrice, price float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	return (price - entryPrice) / entryPrice
}

// CheckExit 判断是否触发止盈/止损，止盈优先
func CheckExit(entryPrice, price, profitThreshold, stopLossThreshold float64) (ExitReason, float64) {
	pct := ProfitPct(entryPrice, price)
	if entryPrice <= 0 {
		return ExitNone, pct
	}
	switch {
	case pct >= profitThreshold:
		return ExitProfit, pct
	case pct <= -stopLossThreshold:
		return ExitStopLoss, pct
	default:
		return ExitNone, pct
	}
}

// TargetPrices 止盈价与止损价
func TargetPrices(entryPrice, profitThreshold, stopLossThreshold float64) (target, stop float64) {
	return entryPrice * (1 + profitThreshold), entryPrice * (1 - stopLossThreshold)
}
