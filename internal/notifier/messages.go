package notifier

import (
	"fmt"
	"html"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/zeta-trader/internal/position"
	"github.com/amirphl/zeta-trader/internal/utils"
)

const botName = "Zeta Trader"

func SystemMessage(title, body string) string {
	return fmt.Sprintf("ℹ️ <b>%s Info</b>\n\n<b>%s</b>\n%s", botName, html.EscapeString(title), html.EscapeString(body))
}

func ErrorMessage(title, body string) string {
	return fmt.Sprintf("⚠️ <b>%s Error</b>\n\n<b>%s</b>\n%s", botName, html.EscapeString(title), html.EscapeString(body))
}

func EntryMessage(p *position.Position, mode string) string {
	return fmt.Sprintf("🚀 <b>New entry</b> (%s)\n\n📈 <b>Symbol:</b> %s\n💵 <b>Entry price:</b> %s\n💰 <b>Size:</b> %s USDT\n🛑 <b>Stop:</b> %s",
		mode, p.Symbol, p.EntryPrice, p.SizeNotional.StringFixed(2), p.CurrentStopPrice.StringFixed(8))
}

func ExitMessage(p *position.Position, exitPrice, pnl, pnlPct decimal.Decimal, reason position.ExitReason, exitTime time.Time, mode string) string {
	emoji := "✅"
	if pnl.IsNegative() {
		emoji = "❌"
	}
	return fmt.Sprintf("%s <b>Position closed</b> (%s)\n\n📈 <b>Symbol:</b> %s\nReason: %s\n\nEntry: %s\nExit: %s\nDuration: %s\n\n💰 <b>P&amp;L (USDT):</b> %s $\n📊 <b>P&amp;L (%%):</b> %s %%",
		emoji, mode, p.Symbol, reason, p.EntryPrice, exitPrice,
		utils.FormatDuration(exitTime.Sub(p.EntryTime)), signed(pnl), signed(pnlPct))
}

func ExitFailureMessage(p *position.Position, reason position.ExitReason, err error) string {
	return ErrorMessage(
		fmt.Sprintf("Exit failed: %s", p.Symbol),
		fmt.Sprintf("reason=%s failures=%d stop=%s: %v", reason, p.ExitFailures, p.CurrentStopPrice.StringFixed(8), err),
	)
}

// SafetyMessage reports a symbol entering a restricted mode.
func SafetyMessage(symbol, mode, detail string) string {
	switch mode {
	case "SAFE_MODE":
		return fmt.Sprintf("🔒 <b>Safe mode engaged</b>\n\nSymbol: %s\n%s", symbol, html.EscapeString(detail))
	case "COOLDOWN":
		return fmt.Sprintf("🚦 <b>Cooldown</b>\n\nSymbol: %s\n%s", symbol, html.EscapeString(detail))
	default:
		return fmt.Sprintf("🟢 <b>%s</b>\n\nSymbol: %s\n%s", mode, symbol, html.EscapeString(detail))
	}
}

func signed(v decimal.Decimal) string {
	s := v.StringFixed(2)
	if !v.IsNegative() {
		return "+" + s
	}
	return s
}
