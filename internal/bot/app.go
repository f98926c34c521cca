// Package bot wires the storefront onto the Telegram runtime. Everything here
// is presentation glue; the state machine lives in internal/shop.
package bot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/keyshop/core/bootstrap"
	coretelegram "github.com/m3rciful/keyshop/core/telegram"
	"github.com/m3rciful/keyshop/core/telegram/commands"
	"github.com/m3rciful/keyshop/core/telegram/router"
	"github.com/m3rciful/keyshop/core/telegram/state"
	appconfig "github.com/m3rciful/keyshop/internal/config"
	"github.com/m3rciful/keyshop/internal/payment"
	"github.com/m3rciful/keyshop/internal/shop"
	"github.com/m3rciful/keyshop/internal/store"
)

// App bundles the bot's services and registry for the core runner.
type App struct {
	cfg *appconfig.Config
	db  *sqlx.DB
	svc *shop.Service
	fsm state.Manager
	reg *coretelegram.Registry
}

// Bootstrap initializes infrastructure, builds the coordinator, and registers
// all handlers.
func Bootstrap(cfg *appconfig.Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Core,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	svc, err := shop.NewService(shop.Options{
		Config:    cfg.Shop,
		AdminID:   cfg.Core.Telegram.AdminID,
		Ledger:    store.NewLedgerStore(res.DB),
		Inventory: store.NewInventoryStore(res.DB),
		Pending:   store.NewPendingStore(res.DB),
		Codes:     payment.Generator{},
	})
	if err != nil {
		_ = res.DB.Close()
		return nil, fmt.Errorf("shop service init: %w", err)
	}

	app := &App{
		cfg: cfg,
		db:  res.DB,
		svc: svc,
		fsm: state.NewMemoryManager(),
		reg: coretelegram.NewRegistry(),
	}

	modules := bootstrap.Modules{
		Seeders: []bootstrap.Seeder{
			// The admin wallet exists from the first start so that balance
			// lookups and broadcasts include it before any interaction.
			bootstrap.SeederFunc(func(ctx context.Context, _ bootstrap.Storage) error {
				return svc.Register(ctx, cfg.Core.Telegram.AdminID)
			}),
		},
	}
	for _, seeder := range modules.Seeders {
		if err := seeder.Seed(context.Background(), res.DB); err != nil {
			_ = res.DB.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	app.registerHandlers()
	return app, nil
}

func (a *App) registerHandlers() {
	a.reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Open the storefront",
	})
	a.reg.RegisterCommand("/buy", commands.Command{
		Handler:     a.handleBuyMenu,
		Description: "Buy an access key",
		Aliases:     []string{buttonBuy},
	})
	a.reg.RegisterCommand("/wallet", commands.Command{
		Handler:     a.handleWallet,
		Description: "Show wallet balance",
		Aliases:     []string{buttonWallet},
	})
	a.reg.RegisterCommand("/fund", commands.Command{
		Handler:     a.handleFundMenu,
		Description: "Add funds to the wallet",
		Aliases:     []string{buttonFund},
	})
	a.reg.RegisterCommand("/support", commands.Command{
		Handler:     a.handleSupport,
		Description: "Contact support",
		Aliases:     []string{buttonSupport},
	})

	a.reg.RegisterCommand("/addkey", commands.Command{
		Handler:     a.handleAddKey,
		Description: "Append a key to a plan queue",
		AdminOnly:   true,
		Hidden:      true,
	})
	a.reg.RegisterCommand("/stock", commands.Command{
		Handler:     a.handleStock,
		Description: "Show key stock per plan",
		AdminOnly:   true,
		Hidden:      true,
	})
	a.reg.RegisterCommand("/addbalance", commands.Command{
		Handler:     a.handleAddBalance,
		Description: "Adjust a user's balance",
		AdminOnly:   true,
		Hidden:      true,
	})
	a.reg.RegisterCommand("/userinfo", commands.Command{
		Handler:     a.handleUserInfo,
		Description: "Look up a user's balance",
		AdminOnly:   true,
		Hidden:      true,
	})
	a.reg.RegisterCommand("/broadcast", commands.Command{
		Handler:     a.handleBroadcast,
		Description: "Message every known user",
		AdminOnly:   true,
		Hidden:      true,
	})

	_ = a.reg.RegisterCallback(cbBuy, a.handleBuy)
	_ = a.reg.RegisterCallback(cbFund, a.handleFundPreset)
	_ = a.reg.RegisterCallback(cbFundCustom, a.handleFundCustom)
	_ = a.reg.RegisterCallback(cbApprove, a.decideHandler(true))
	_ = a.reg.RegisterCallback(cbReject, a.decideHandler(false))

	state.RegisterHandler(stateAwaitFundAmount, a.handleCustomAmount)

	a.reg.SetTextFallback(func(c tele.Context) error {
		return c.Send(msgUnknown, mainMenu())
	})
}

// TelegramRunOptions builds the runtime options for the core runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.fsm, a.reg, router.TextOptions{})...)
	routes = append(routes, router.PhotoRoute(a.handleProofPhoto))

	return coretelegram.RunOptions{
		Config:      &a.cfg.Core,
		Registry:    a.reg,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Core, nil),
		Routes:      routes,
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			return a.db.Close()
		},
	}, nil
}
