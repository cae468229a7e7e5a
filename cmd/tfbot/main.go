package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tfbot "github.com/Aireo88/TFBot/internal/cmd/tfbot"
)

func main() {
	cfg, err := tfbot.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[TFBOT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tfbot.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
