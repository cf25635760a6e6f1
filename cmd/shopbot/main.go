// Command shopbot runs the Telegram storefront and its payment webhook server.
package main

import (
	"log"

	corecmd "github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/shop/app"
	"github.com/m3rciful/shopbot/shop/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "SHOPBOT_CONFIG",
		DefaultConfigPath: "configs/shopbot.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatal(err)
	}
}
