package main

import (
	"log"

	"github.com/jaennil/plateserve/internal/app"
	"github.com/jaennil/plateserve/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}
