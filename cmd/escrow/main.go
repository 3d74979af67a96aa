// Package main starts the escrow API server.
//
// This process owns the contract lifecycle: proposal validation,
// accept/reject decisions, and manual milestone release.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	escrowcmd "github.com/lockupfinance/lockup/internal/cmd/escrow"
)

func main() {
	cfg, err := escrowcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ESCROW] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := escrowcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
