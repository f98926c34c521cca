package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/keyshop/core/telegram/keyboard"
	"github.com/m3rciful/keyshop/core/telegram/state"
	"github.com/m3rciful/keyshop/internal/shop"
)

// Main menu reply-button labels. The registry routes them as command aliases.
const (
	buttonBuy     = "🔑 Buy Key"
	buttonFund    = "💰 Add Funds"
	buttonWallet  = "👛 Wallet"
	buttonSupport = "📞 Support"
)

// Callback keys.
const (
	cbBuy        = "buy"
	cbFund       = "fund"
	cbFundCustom = "fund_custom"
	cbApprove    = "approve"
	cbReject     = "reject"
)

const stateAwaitFundAmount state.State = "await_fund_amount"

const (
	msgUnknown       = "Please choose an option from the menu below 👇"
	msgSupport       = "📞 Support\n\nPlease contact the admin for assistance."
	msgEnterAmount   = "✏️ Enter custom amount:"
	msgBadAmount     = "Please send a positive whole number, e.g. 500"
	msgNoActiveReq   = "❌ No active payment request found.\nPlease use Add Funds again."
	msgReqExpired    = "❌ Payment request expired.\nPlease try again."
	msgProofReceived = "⏳ Screenshot sent. Waiting for admin approval."
	msgFailure       = "⚠️ Something went wrong. Please try again."
)

func mainMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{buttonBuy},
		[]string{buttonFund, buttonWallet},
		[]string{buttonSupport},
	)
}

func buyMenu(plans []shop.Plan, currency string) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(plans))
	for _, p := range plans {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s — %s", p.Title, formatMoney(p.Price, currency)),
			Unique: cbBuy,
			Data:   p.Duration,
		})
	}
	return keyboard.InlineButtons(buttons)
}

func fundMenu(presets []int64, currency string) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(presets)+1)
	for _, amount := range presets {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   formatMoney(amount, currency),
			Unique: cbFund,
			Data:   strconv.FormatInt(amount, 10),
		})
	}
	buttons = append(buttons, keyboard.InlineBtn{
		Text:   "➕ Custom Amount",
		Unique: cbFundCustom,
		Data:   "custom",
	})
	return keyboard.InlineButtons(buttons)
}

func reviewMenu(txnID string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Approve", Unique: cbApprove, Data: txnID},
		{Text: "❌ Reject", Unique: cbReject, Data: txnID},
	})
}

var currencySigns = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
}

func formatMoney(amount int64, currency string) string {
	if sign, ok := currencySigns[currency]; ok {
		return sign + strconv.FormatInt(amount, 10)
	}
	return fmt.Sprintf("%d %s", amount, currency)
}
