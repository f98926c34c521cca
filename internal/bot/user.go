package bot

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/keyshop/core/telegram/callbacks"
	"github.com/m3rciful/keyshop/core/telegram/format"
	tghelpers "github.com/m3rciful/keyshop/core/telegram/helpers"
	"github.com/m3rciful/keyshop/internal/shop"
)

func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	if err := a.svc.Register(ctx, c.Sender().ID); err != nil {
		return err
	}
	welcome := fmt.Sprintf(
		"🚀 Welcome to *%s*\n\n"+
			"🔐 Secure Wallet\n"+
			"⚡ Instant Key Delivery\n"+
			"💎 Trusted Premium Service\n\n"+
			"Please choose an option below 👇",
		format.EscapeMD(a.cfg.Shop.Merchant),
	)
	return tghelpers.SendMD(c, welcome, mainMenu())
}

func (a *App) handleBuyMenu(c tele.Context) error {
	return tghelpers.SendMD(c, "🔑 *Choose Your Plan*",
		buyMenu(a.cfg.Shop.Plans, a.cfg.Shop.Currency))
}

func (a *App) handleBuy(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "buy")
	duration := callbacks.CallbackPayload(c)

	receipt, err := a.svc.Purchase(ctx, c.Sender().ID, duration)
	switch {
	case errors.Is(err, shop.ErrInsufficientFunds):
		return tghelpers.SendText(c, "❌ Insufficient wallet balance")
	case errors.Is(err, shop.ErrOutOfStock):
		return tghelpers.SendText(c, "⚠️ Stock unavailable")
	case errors.Is(err, shop.ErrUnknownPlan):
		return tghelpers.SendText(c, msgUnknown)
	case err != nil:
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}

	text := fmt.Sprintf(
		"✅ *Purchase Successful*\n\n"+
			"📆 Plan: %s\n"+
			"🔑 Your Key:\n`%s`\n\n"+
			"⚠️ Keep this key private.",
		format.EscapeMD(receipt.Plan.Title), format.EscapeMDCode(receipt.Key),
	)
	return tghelpers.SendMD(c, text)
}

func (a *App) handleWallet(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "wallet")
	balance, err := a.svc.Balance(ctx, c.Sender().ID)
	if err != nil {
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}
	return tghelpers.SendMD(c, fmt.Sprintf("👛 *Wallet Balance*\n\n💰 %s",
		formatMoney(balance, a.cfg.Shop.Currency)))
}

func (a *App) handleFundMenu(c tele.Context) error {
	return tghelpers.SendMD(c, "💳 *Add Funds*\n\nSelect an amount:",
		fundMenu(a.cfg.Shop.FundPresets, a.cfg.Shop.Currency))
}

func (a *App) handleFundPreset(c tele.Context) error {
	amount, err := strconv.ParseInt(callbacks.CallbackPayload(c), 10, 64)
	if err != nil || amount <= 0 {
		return tghelpers.SendText(c, msgBadAmount)
	}
	return a.sendFundingCode(c, amount)
}

func (a *App) handleFundCustom(c tele.Context) error {
	a.fsm.SetState(c.Sender().ID, stateAwaitFundAmount)
	return tghelpers.SendText(c, msgEnterAmount)
}

func (a *App) handleCustomAmount(c tele.Context) error {
	raw := strings.TrimSpace(c.Text())
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		// Stay in the state; the user gets another try.
		return tghelpers.SendText(c, msgBadAmount)
	}
	a.fsm.ClearState(c.Sender().ID)
	return a.sendFundingCode(c, amount)
}

func (a *App) sendFundingCode(c tele.Context, amount int64) error {
	ctx := tghelpers.WithHandler(c, "fund")
	req, err := a.svc.RequestFunding(ctx, c.Sender().ID, amount)
	if errors.Is(err, shop.ErrBadAmount) {
		return tghelpers.SendText(c, msgBadAmount)
	}
	if err != nil {
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}

	caption := fmt.Sprintf(
		"💳 UPI Payment Request\n\n"+
			"💰 Amount: %s\n"+
			"🏦 UPI ID: %s\n"+
			"🆔 Transaction ID: %s\n\n"+
			"📸 Complete payment and send screenshot here.",
		formatMoney(req.Amount, req.Currency), req.Payee, req.TxnID,
	)
	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(req.Code)),
		Caption: caption,
	}
	return c.Send(photo)
}

func (a *App) handleProofPhoto(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "proof")
	photo := c.Message().Photo
	if photo == nil {
		return tghelpers.SendText(c, msgNoActiveReq)
	}

	admin := &tele.User{ID: a.cfg.Core.Telegram.AdminID}
	_, err := a.svc.SubmitProof(ctx, c.Sender().ID, func(review shop.ProofReview) error {
		forwarded := &tele.Photo{
			File: photo.File,
			Caption: fmt.Sprintf(
				"💰 PAYMENT VERIFICATION\n\n"+
					"User ID: %d\n"+
					"Amount: %s\n"+
					"Txn ID: %s",
				review.AccountID,
				formatMoney(review.Amount, a.cfg.Shop.Currency),
				review.TxnID,
			),
		}
		_, sendErr := c.Bot().Send(admin, forwarded, reviewMenu(review.TxnID))
		return sendErr
	})
	switch {
	case errors.Is(err, shop.ErrNoActiveRequest):
		return tghelpers.SendText(c, msgNoActiveReq)
	case errors.Is(err, shop.ErrRequestExpired):
		return tghelpers.SendText(c, msgReqExpired)
	case err != nil:
		_ = tghelpers.SendText(c, msgFailure)
		return err
	}
	return tghelpers.SendText(c, msgProofReceived)
}

func (a *App) handleSupport(c tele.Context) error {
	return tghelpers.SendText(c, msgSupport)
}
