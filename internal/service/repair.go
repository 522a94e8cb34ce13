package service

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/stagedesk/booking-service/internal/entity"
	"github.com/stagedesk/booking-service/internal/model"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/schema"
)

// RepairJob restores relation symmetry for one relation definition. The
// forward side (the relation owner's field) is treated as the source of
// truth: missing inverse references are added, stale inverse references are
// removed.
type RepairJob struct {
	store    registrystore.DocumentStore
	registry *schema.Registry
	sync     *entity.Synchronizer
	pageSize int
	dryRun   bool
}

// NewRepairJob builds a repair runner.
func NewRepairJob(store registrystore.DocumentStore, registry *schema.Registry, sync *entity.Synchronizer, pageSize int, dryRun bool) *RepairJob {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &RepairJob{store: store, registry: registry, sync: sync, pageSize: pageSize, dryRun: dryRun}
}

// Run repairs the named relation across all tenants. Per-document failures
// are counted and logged, never fatal: the job keeps walking so one bad
// document cannot block the rest of the sweep. Untagged documents are skipped;
// they need a tenant backfill before relation state can be trusted. Scanned
// covers both sweeps, so one run over N owners and M targets reports N+M.
func (j *RepairJob) Run(ctx context.Context, relationName string, resumeCursor *string) (*Report, error) {
	rel, err := j.registry.RelationByName(relationName)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	log.Info("Repair: starting", "relation", rel.Name, "dryRun", j.dryRun)

	if err := j.forwardSweep(ctx, rel, resumeCursor, report); err != nil {
		return report, err
	}
	if err := j.inverseSweep(ctx, rel, report); err != nil {
		return report, err
	}

	log.Info("Repair: completed",
		"relation", rel.Name, "scanned", report.Scanned, "repaired", report.Repaired,
		"skipped", report.Skipped, "partial", report.Partial)
	return report, nil
}

// forwardSweep walks the owning side: every id the owner lists must appear in
// the target's inverse field.
func (j *RepairJob) forwardSweep(ctx context.Context, rel *model.RelationDefinition, resumeCursor *string, report *Report) error {
	cursor := resumeCursor
	for {
		if err := ctx.Err(); err != nil {
			report.Cursor = cursor
			return err
		}

		docs, next, err := j.store.ScanAll(ctx, rel.FromType, cursor, j.pageSize)
		if err != nil {
			report.Cursor = cursor
			return err
		}

		for i := range docs {
			doc := &docs[i]
			report.Scanned++
			outcome := j.repairForward(ctx, rel, doc)
			switch outcome {
			case "repaired":
				report.Repaired++
			case "partial":
				report.Partial++
			default:
				report.Skipped++
			}
			observeRepair("repair", outcome)
		}

		if next == nil {
			return nil
		}
		cursor = next
	}
}

func (j *RepairJob) repairForward(ctx context.Context, rel *model.RelationDefinition, doc *model.Entity) string {
	if doc.TenantID == "" {
		return "skipped"
	}
	var missing []string
	failed := false
	for _, targetID := range doc.RelationIDs(rel.FromField) {
		target, err := j.store.Get(ctx, rel.ToType, targetID, doc.TenantID)
		if err != nil {
			var notFound *registrystore.NotFoundError
			if errors.As(err, &notFound) {
				// Dangling or foreign-tenant target. Reported, never
				// auto-fixed: deciding which side is wrong needs an operator.
				log.Warn("Repair: unresolvable target",
					"relation", rel.Name, "from", doc.ID, "target", targetID, "tenant", doc.TenantID)
				failed = true
				continue
			}
			log.Error("Repair: target read failed", "relation", rel.Name, "target", targetID, "err", err)
			failed = true
			continue
		}
		if !containsID(target.RelationIDs(rel.ToField), doc.ID) {
			missing = append(missing, targetID)
		}
	}

	if len(missing) == 0 {
		if failed {
			return "partial"
		}
		return "skipped"
	}
	if j.dryRun {
		return "repaired"
	}

	warn, err := j.sync.Sync(ctx, rel, doc.ID, doc.TenantID, missing, nil)
	if err != nil {
		log.Error("Repair: sync failed", "relation", rel.Name, "from", doc.ID, "err", err)
		return "partial"
	}
	if warn != nil || failed {
		return "partial"
	}
	return "repaired"
}

// inverseSweep walks the target side: an inverse reference whose owner no
// longer lists the target is stale and gets removed.
func (j *RepairJob) inverseSweep(ctx context.Context, rel *model.RelationDefinition, report *Report) error {
	var cursor *string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		docs, next, err := j.store.ScanAll(ctx, rel.ToType, cursor, j.pageSize)
		if err != nil {
			return err
		}

		for i := range docs {
			doc := &docs[i]
			report.Scanned++
			outcome := j.repairInverse(ctx, rel, doc)
			switch outcome {
			case "repaired":
				report.Repaired++
			case "partial":
				report.Partial++
			default:
				report.Skipped++
			}
			observeRepair("repair", outcome)
		}

		if next == nil {
			return nil
		}
		cursor = next
	}
}

func (j *RepairJob) repairInverse(ctx context.Context, rel *model.RelationDefinition, doc *model.Entity) string {
	if doc.TenantID == "" {
		return "skipped"
	}
	var stale []string
	failed := false
	for _, ownerID := range doc.RelationIDs(rel.ToField) {
		owner, err := j.store.Get(ctx, rel.FromType, ownerID, doc.TenantID)
		if err != nil {
			var notFound *registrystore.NotFoundError
			if errors.As(err, &notFound) {
				stale = append(stale, ownerID)
				continue
			}
			log.Error("Repair: owner read failed", "relation", rel.Name, "owner", ownerID, "err", err)
			failed = true
			continue
		}
		if !containsID(owner.RelationIDs(rel.FromField), doc.ID) {
			stale = append(stale, ownerID)
		}
	}

	if len(stale) > 0 && !j.dryRun {
		if err := j.store.RemoveFromRelation(ctx, rel.ToType, doc.ID, doc.TenantID, rel.ToField, stale); err != nil {
			log.Error("Repair: stale inverse removal failed", "relation", rel.Name, "id", doc.ID, "err", err)
			failed = true
		}
	}
	if failed {
		return "partial"
	}
	if len(stale) > 0 {
		return "repaired"
	}
	return "skipped"
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
