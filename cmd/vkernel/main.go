package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/vkernel/internal/connection"
	"github.com/danmuck/vkernel/internal/kernel"
	"github.com/danmuck/vkernel/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vkernel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: vkernel <connection-file>")
	}
	logging.ConfigureRuntime()

	info, err := connection.Load(os.Args[1])
	if err != nil {
		return err
	}
	cfg, err := connection.LoadConfig("")
	if err != nil {
		return err
	}

	svc, err := kernel.NewService(info, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
