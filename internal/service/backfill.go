// Package service holds the offline batch jobs: the tenant backfill and the
// relation repair. Both are cursor-paged, resumable, and idempotent, so an
// interrupted run can be restarted or re-run without harm.
package service

import (
	"context"

	"github.com/charmbracelet/log"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/security"
)

// Report summarizes one batch run. Cursor is set when the run stopped early
// (context cancelled) and can seed the next run's resume point.
type Report struct {
	Scanned  int     `json:"scanned"`
	Repaired int     `json:"repaired"`
	Skipped  int     `json:"skipped"`
	Partial  int     `json:"partial"`
	Cursor   *string `json:"cursor,omitempty"`
}

// BackfillJob tags historical documents that predate tenant scoping.
type BackfillJob struct {
	store    registrystore.DocumentStore
	pageSize int
	dryRun   bool
}

// NewBackfillJob builds a backfill runner.
func NewBackfillJob(store registrystore.DocumentStore, pageSize int, dryRun bool) *BackfillJob {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &BackfillJob{store: store, pageSize: pageSize, dryRun: dryRun}
}

// Run walks every document of the type and tags the untagged ones with
// tenantID. Documents that already carry a tenant are skipped, never
// overwritten, which is what makes a re-run a no-op. Documents that carry a
// legacy accountId field are tagged with that value instead, preserving the
// ownership recorded before tenant scoping existed.
func (j *BackfillJob) Run(ctx context.Context, typ, tenantID string, resumeCursor *string) (*Report, error) {
	report := &Report{}
	cursor := resumeCursor

	log.Info("Backfill: starting", "type", typ, "tenant", tenantID, "dryRun", j.dryRun)
	for {
		if err := ctx.Err(); err != nil {
			report.Cursor = cursor
			return report, err
		}

		docs, next, err := j.store.ScanAll(ctx, typ, cursor, j.pageSize)
		if err != nil {
			report.Cursor = cursor
			return report, err
		}

		for i := range docs {
			doc := &docs[i]
			report.Scanned++

			if doc.TenantID != "" {
				report.Skipped++
				observeRepair("backfill", "skipped")
				continue
			}

			target := tenantID
			if legacy, ok := doc.Fields["accountId"].(string); ok && legacy != "" {
				target = legacy
			}

			if j.dryRun {
				report.Repaired++
				observeRepair("backfill", "would_repair")
				continue
			}

			tagged, err := j.store.TagTenant(ctx, typ, doc.ID, target)
			if err != nil {
				log.Error("Backfill: tag failed", "type", typ, "id", doc.ID, "err", err)
				report.Partial++
				observeRepair("backfill", "failed")
				continue
			}
			if tagged {
				report.Repaired++
				observeRepair("backfill", "repaired")
			} else {
				// Another writer tagged it between the scan and the write.
				report.Skipped++
				observeRepair("backfill", "skipped")
			}
		}

		if next == nil {
			break
		}
		cursor = next
	}

	log.Info("Backfill: completed",
		"type", typ, "scanned", report.Scanned, "repaired", report.Repaired,
		"skipped", report.Skipped, "partial", report.Partial)
	return report, nil
}

func observeRepair(job, outcome string) {
	if security.RepairDocsTotal != nil {
		security.RepairDocsTotal.WithLabelValues(job, outcome).Inc()
	}
}
