package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/stagedesk/booking-service/internal/cmd/backfill"
	"github.com/stagedesk/booking-service/internal/cmd/migrate"
	"github.com/stagedesk/booking-service/internal/cmd/repair"
	"github.com/stagedesk/booking-service/internal/cmd/serve"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "booking-service",
		Usage: "Multi-tenant booking/CRM entity service",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			backfill.Command(),
			repair.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
