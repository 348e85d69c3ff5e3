package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pibot/market"
	"pibot/trader"
)

var (
	greetings = []string{
		"Good day, sir. Trading systems online and monitoring the market.",
		"At your service, sir. Market surveillance initialized.",
		"Booting up trading protocols. Ready when you are, sir.",
	}
	analysisLines = []string{
		"Analyzing %s market patterns. The volatility reminds me of your heart rate during test flights.",
		"Running technical analysis on %s. These market structures are quite fascinating.",
		"Market conditions for %s are changing rapidly. I'm monitoring closely.",
		"%s market assessment in progress. The algorithms are detecting interesting patterns.",
	}
	buyLines = []string{
		"Sir, I've detected a favorable entry point. Executing purchase protocol.",
		"Market conditions appear promising. Buying now, sir.",
		"Opportunity detected. Acquiring at what appears to be a discounted rate.",
	}
	profitLines = []string{
		"Sir, profit target achieved. Executing sell order.",
		"Position has reached optimal exit point. Selling now.",
		"Profit secured, sir. Would you like me to prepare a celebratory beverage?",
	}
	stopLines = []string{
		"Stop loss triggered, sir. Cutting our losses as instructed.",
		"Sometimes you win, sometimes you learn, sir. Exiting position.",
		"Strategic retreat initiated. Position liquidated to preserve capital.",
	}
	manualSellLines = []string{
		"Manual sell executed, sir. Position liquidated.",
	}
)

// pick 按事件时间选一句，同一事件总是得到同一句
func pick(lines []string, t time.Time) string {
	if len(lines) == 0 {
		return ""
	}
	i := int(t.Unix() % int64(len(lines)))
	if i < 0 {
		i = -i
	}
	return lines[i]
}

func base(pair string) string {
	if p, err := market.ParsePair(pair); err == nil {
		return p.Base
	}
	return pair
}

// FormatEvent 事件转为纯文本消息
func FormatEvent(ev trader.Event) string {
	var b strings.Builder
	asset := base(ev.Pair)

	switch ev.Kind {
	case trader.EventStartup:
		b.WriteString(pick(greetings, ev.Time))
		fmt.Fprintf(&b, "\n\nMonitoring %s for high-risk opportunities. Safety protocols minimized as requested, sir.", ev.Pair)
		if ev.Message != "" {
			fmt.Fprintf(&b, "\n(%s)", ev.Message)
		}

	case trader.EventAnalysis:
		fmt.Fprintf(&b, pick(analysisLines, ev.Time), asset)

	case trader.EventBuy:
		if ev.Manual {
			b.WriteString("Manual buy executed, sir.")
		} else {
			b.WriteString(pick(buyLines, ev.Time))
		}
		b.WriteString("\n\n📊 Trade Summary:\n")
		fmt.Fprintf(&b, "🔹 Bought: %.4f %s @ $%s\n", ev.Amount, asset, market.FormatPrice(ev.Price))
		fmt.Fprintf(&b, "🔹 Total: $%.2f\n", ev.Quote)
		fmt.Fprintf(&b, "🔹 Target: $%s\n", market.FormatPrice(ev.Target))
		fmt.Fprintf(&b, "🔹 Stop Loss: $%s", market.FormatPrice(ev.Stop))
		if !ev.Manual {
			fmt.Fprintf(&b, "\n\nRisk score %d. As you say, sir, 'No risk, no reward.'", ev.RiskScore)
		}

	case trader.EventSell:
		switch ev.Reason {
		case "profit":
			b.WriteString(pick(profitLines, ev.Time))
		case "stop_loss":
			b.WriteString(pick(stopLines, ev.Time))
		default:
			b.WriteString(pick(manualSellLines, ev.Time))
		}
		b.WriteString("\n\n📊 Trade Summary:\n")
		fmt.Fprintf(&b, "🔹 Sold: %.4f %s @ $%s\n", ev.Amount, asset, market.FormatPrice(ev.Price))
		fmt.Fprintf(&b, "🔹 Entry Price: $%s\n", market.FormatPrice(ev.EntryPrice))
		fmt.Fprintf(&b, "🔹 P/L: $%.2f (%.2f%%)\n\n", ev.PnL, ev.PnLPct*100)
		if ev.PnL >= 0 {
			b.WriteString("Another successful operation, sir.")
		} else {
			b.WriteString("We'll get them next time, sir.")
		}

	case trader.EventRejected:
		fmt.Fprintf(&b, "Trade skipped, sir: %s", ev.Message)

	case trader.EventDataError:
		fmt.Fprintf(&b, "Sir, we have a problem accessing market data: %s", ev.Message)

	case trader.EventExecutionError:
		fmt.Fprintf(&b, "Sir, the order failed to execute: %s", ev.Message)

	default:
		fmt.Fprintf(&b, "[%s] %s", ev.Kind, ev.Message)
	}
	return b.String()
}

// FormatStatus 状态报告
func FormatStatus(r *trader.StatusReport) string {
	var b strings.Builder
	asset := base(r.Pair)
	quote := r.Pair
	if p, err := market.ParsePair(r.Pair); err == nil {
		quote = p.Quote
	}

	fmt.Fprintf(&b, "📊 Status Report - %s\n\n", r.Time.Format("15:04:05"))
	fmt.Fprintf(&b, "🔹 %s Price: $%s\n", asset, market.FormatPrice(r.Price))
	fmt.Fprintf(&b, "🔹 24h Change: %.2f%%\n", r.Change24h)
	fmt.Fprintf(&b, "🔹 %s Balance: $%.2f\n", quote, r.FreeQuote)

	if r.Position.State == trader.StateLong {
		fmt.Fprintf(&b, "🔹 Position: LONG %s @ $%s\n", asset, market.FormatPrice(r.Position.EntryPrice))
		fmt.Fprintf(&b, "🔹 Current P/L: %.2f%%\n", r.UnrealizedPnLPct*100)
		fmt.Fprintf(&b, "🔹 Target Exit: $%s\n", market.FormatPrice(r.Target))
		fmt.Fprintf(&b, "🔹 Stop Loss: $%s\n", market.FormatPrice(r.Stop))
	} else {
		b.WriteString("🔹 Position: No active position\n")
	}
	if r.CooldownRemaining > 0 {
		fmt.Fprintf(&b, "🔹 Cooldown: %s remaining\n", r.CooldownRemaining.Round(time.Second))
	}
	return b.String()
}

// FormatParams 参数更新回复
func FormatParams(p trader.Params) string {
	return fmt.Sprintf("Parameters updated successfully, sir:\n"+
		"🔹 Order Size: %g%% of balance\n"+
		"🔹 Profit Target: %g%%\n"+
		"🔹 Stop Loss: %g%%",
		p.OrderSizeFraction*100, p.ProfitThreshold*100, p.StopLossThreshold*100)
}

// FormatError 手动命令失败时的回复
func FormatError(err error) string {
	if reason, ok := trader.RejectionReason(err); ok {
		switch reason {
		case trader.ReasonAlreadyOpen:
			return "Already in position, sir. Perhaps selling first would be prudent?"
		case trader.ReasonAlreadyFlat:
			return "No position to sell, sir. Perhaps we should acquire some first?"
		case trader.ReasonInsufficientBalance:
			return "Insufficient funds for that maneuver, sir. " + err.Error()
		case trader.ReasonBelowMinimumSize:
			return "That order is below the exchange minimum, sir. " + err.Error()
		}
		return err.Error()
	}
	switch {
	case errors.Is(err, trader.ErrParameter):
		return "Error updating parameters: " + err.Error()
	case errors.Is(err, trader.ErrDataUnavailable):
		return "Sir, we have a problem accessing market data: " + err.Error()
	case errors.Is(err, trader.ErrExecution):
		return "Sir, the order failed to execute: " + err.Error()
	}
	return "Sir, I've encountered an unexpected error: " + err.Error()
}

// FormatTrades 最近成交列表
func FormatTrades(entries []trader.JournalEntry) string {
	if len(entries) == 0 {
		return "No trades recorded yet, sir."
	}
	var b strings.Builder
	b.WriteString("📒 Recent trades:\n")
	for _, e := range entries {
		tag := "auto"
		if e.Manual {
			tag = "manual"
		}
		fmt.Fprintf(&b, "\n%s %s %.4f @ $%s (%s)",
			e.At.UTC().Format("01-02 15:04"), strings.ToUpper(e.Side), e.Amount, market.FormatPrice(e.Price), tag)
		if e.Side == "sell" {
			fmt.Fprintf(&b, " P/L $%.2f (%.2f%%)", e.PnL, e.PnLPct*100)
		}
	}
	return b.String()
}
