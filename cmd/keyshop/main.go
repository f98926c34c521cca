package main

import (
	"log"

	"github.com/m3rciful/keyshop/core/cmd"
	"github.com/m3rciful/keyshop/internal/bot"
	appconfig "github.com/m3rciful/keyshop/internal/config"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return appconfig.Load(path)
		},
		Bootstrap: func(cfg cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			return bot.Bootstrap(cfg.(*appconfig.Config))
		},
	})
	if err != nil {
		log.Fatalf("keyshop: %v", err)
	}
}
