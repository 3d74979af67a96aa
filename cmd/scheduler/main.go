// Package main starts the auto-release scheduler.
//
// This process polls for due milestones of active auto-release
// contracts and pays them using each contract's own sender identity.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	schedulercmd "github.com/lockupfinance/lockup/internal/cmd/scheduler"
)

func main() {
	cfg, err := schedulercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SCHEDULER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := schedulercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("scheduler stopped: %v", err)
	}
}
