package bot

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/keyshop/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/keyshop/core/telegram/helpers"
	"github.com/m3rciful/keyshop/internal/shop"
)

// decideHandler builds the approve or reject callback handler. The service
// re-checks the caller identity; a non-admin press is dropped without a reply.
func (a *App) decideHandler(approve bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, "decide")
		txnID := callbacks.CallbackPayload(c)

		decision, err := a.svc.Decide(ctx, c.Sender().ID, txnID, approve)
		switch {
		case errors.Is(err, shop.ErrUnauthorized):
			return nil
		case errors.Is(err, shop.ErrAlreadyProcessed):
			return c.EditCaption("⚠️ Already processed")
		case err != nil:
			return err
		}

		user := &tele.User{ID: decision.AccountID}
		if decision.Approved {
			_, sendErr := c.Bot().Send(user, fmt.Sprintf("✅ %s credited to your wallet.",
				formatMoney(decision.Amount, a.cfg.Shop.Currency)))
			if sendErr != nil {
				// The credit already happened; the caption still flips so the
				// admin is not tempted to approve again.
				_ = c.EditCaption("✅ PAYMENT APPROVED (user not notified)")
				return sendErr
			}
			return c.EditCaption("✅ PAYMENT APPROVED")
		}
		_, _ = c.Bot().Send(user, "❌ Payment rejected. Contact support.")
		return c.EditCaption("❌ PAYMENT REJECTED")
	}
}

func (a *App) handleAddKey(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "addkey")
	parts := strings.SplitN(strings.TrimSpace(c.Message().Payload), " ", 2)
	if len(parts) != 2 || parts[0] == "" || strings.TrimSpace(parts[1]) == "" {
		return tghelpers.SendText(c, "Usage: /addkey <duration> <key>")
	}
	err := a.svc.Restock(ctx, parts[0], strings.TrimSpace(parts[1]))
	if errors.Is(err, shop.ErrUnknownPlan) {
		return tghelpers.SendText(c, "Unknown plan. Configured durations: "+a.planDurations())
	}
	if err != nil {
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}
	return tghelpers.SendText(c, "✅ Key added successfully")
}

func (a *App) handleStock(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "stock")
	counts, err := a.svc.StockCounts(ctx)
	if err != nil {
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}
	durations := make([]string, 0, len(counts))
	for d := range counts {
		durations = append(durations, d)
	}
	sort.Slice(durations, func(i, j int) bool {
		a, errA := strconv.Atoi(durations[i])
		b, errB := strconv.Atoi(durations[j])
		if errA != nil || errB != nil {
			return durations[i] < durations[j]
		}
		return a < b
	})
	var b strings.Builder
	b.WriteString("📦 KEY STOCK\n\n")
	for _, d := range durations {
		fmt.Fprintf(&b, "%s DAY → %d keys\n", d, counts[d])
	}
	return tghelpers.SendText(c, b.String())
}

func (a *App) handleAddBalance(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "addbalance")
	fields := strings.Fields(c.Message().Payload)
	if len(fields) != 2 {
		return tghelpers.SendText(c, "Usage: /addbalance <user_id> <amount>")
	}
	userID, errID := strconv.ParseInt(fields[0], 10, 64)
	amount, errAmt := strconv.ParseInt(fields[1], 10, 64)
	if errID != nil || errAmt != nil || userID == 0 {
		return tghelpers.SendText(c, "Usage: /addbalance <user_id> <amount>")
	}

	balance, err := a.svc.AdjustBalance(ctx, userID, amount)
	if err != nil {
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}
	_, _ = c.Bot().Send(&tele.User{ID: userID}, fmt.Sprintf("💰 %s added by admin",
		formatMoney(amount, a.cfg.Shop.Currency)))
	return tghelpers.SendText(c, fmt.Sprintf("✅ Balance updated: %s",
		formatMoney(balance, a.cfg.Shop.Currency)))
}

func (a *App) handleUserInfo(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "userinfo")
	fields := strings.Fields(c.Message().Payload)
	if len(fields) != 1 {
		return tghelpers.SendText(c, "Usage: /userinfo <user_id>")
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return tghelpers.SendText(c, "Usage: /userinfo <user_id>")
	}

	balance, err := a.svc.Balance(ctx, userID)
	if err != nil {
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}
	return tghelpers.SendText(c, fmt.Sprintf("User ID: %d\nBalance: %s",
		userID, formatMoney(balance, a.cfg.Shop.Currency)))
}

func (a *App) handleBroadcast(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "broadcast")
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return tghelpers.SendText(c, "Usage: /broadcast <message>")
	}

	announcement := "📢 ANNOUNCEMENT\n\n" + text
	report, err := a.svc.Broadcast(ctx, func(accountID int64) error {
		_, sendErr := c.Bot().Send(&tele.User{ID: accountID}, announcement)
		return sendErr
	})
	if err != nil {
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}
	summary := fmt.Sprintf("Broadcast sent to %d users", len(report.Sent))
	if len(report.Failed) > 0 {
		summary += fmt.Sprintf(", %d failed", len(report.Failed))
	}
	return tghelpers.SendText(c, summary)
}

func (a *App) planDurations() string {
	durations := make([]string, 0, len(a.cfg.Shop.Plans))
	for _, p := range a.cfg.Shop.Plans {
		durations = append(durations, p.Duration)
	}
	return strings.Join(durations, ", ")
}
