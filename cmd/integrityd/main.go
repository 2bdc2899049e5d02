package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	integritycmd "github.com/jobchain/integrity/internal/cmd/integrityd"
)

func main() {
	cfg, err := integritycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[INTEGRITY] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := integritycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
