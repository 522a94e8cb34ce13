// Package backfill is the CLI entry point for the tenant backfill job.
// Exit codes: 0 clean run, 1 completed with unresolved documents, 2 fatal.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/stagedesk/booking-service/internal/cmd/serve"
	"github.com/stagedesk/booking-service/internal/config"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/service"
	"github.com/urfave/cli/v3"

	_ "github.com/stagedesk/booking-service/internal/plugin/store/memory"
	_ "github.com/stagedesk/booking-service/internal/plugin/store/mongo"
	_ "github.com/stagedesk/booking-service/internal/plugin/store/postgres"
)

// Command returns the backfill sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	cfg.DatastoreMigrateAtStart = false
	var (
		collection   string
		tenantID     string
		dryRun       bool
		resumeCursor string
	)
	fs := serve.DataFlags(&cfg)
	fs = append(fs,
		&cli.StringFlag{
			Name:        "collection",
			Destination: &collection,
			Usage:       "Entity type to backfill (e.g. Venue)",
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "tenant-id",
			Destination: &tenantID,
			Usage:       "Tenant to assign to untagged documents",
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Destination: &dryRun,
			Usage:       "Report what would change without writing",
		},
		&cli.StringFlag{
			Name:        "resume-cursor",
			Destination: &resumeCursor,
			Usage:       "Cursor from a previous interrupted run",
		},
	)

	return &cli.Command{
		Name:  "backfill",
		Usage: "Tag historical documents that predate tenant scoping",
		Flags: fs,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = config.WithContext(ctx, &cfg)

			storeLoader, err := registrystore.Select(cfg.DatastoreType)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			store, err := storeLoader(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to initialize store: %v", err), 2)
			}
			defer store.Close(context.Background())

			var cursor *string
			if resumeCursor != "" {
				cursor = &resumeCursor
			}

			job := service.NewBackfillJob(store, cfg.BatchPageSize, dryRun)
			report, err := job.Run(ctx, collection, tenantID, cursor)
			printReport(report)
			if err != nil {
				return cli.Exit(fmt.Sprintf("backfill aborted: %v", err), 2)
			}
			if report.Partial > 0 {
				return cli.Exit("backfill completed with unresolved documents", 1)
			}
			return nil
		},
	}
}

func printReport(report *service.Report) {
	if report == nil {
		return
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Error("Failed to render report", "err", err)
		return
	}
	fmt.Fprintln(os.Stdout, string(out))
}
