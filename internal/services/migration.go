package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "love-album-backend/internal/errors"
	"love-album-backend/internal/localstore"
	"love-album-backend/internal/metrics"
	"love-album-backend/internal/models"
)

// MigrationReport summarizes one sweep of the local store
type MigrationReport struct {
	Keys      []string      `json:"keys"`
	Submitted int           `json:"submitted"`
	Deleted   int           `json:"deleted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// MigrationRunner resubmits records that were saved only locally. Failed records stay
// pending for the next sweep.
type MigrationRunner struct {
	coord *Coordinator
	mu    sync.Mutex
}

// NewMigrationRunner creates a migration runner
func NewMigrationRunner(coord *Coordinator) *MigrationRunner {
	return &MigrationRunner{coord: coord}
}

// Run sweeps every cached collection once
func (r *MigrationRunner) Run(ctx context.Context) (*MigrationReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.coord
	if !c.remote.IsAvailable() {
		return nil, apperrors.New(apperrors.ErrUnavailable, "remote store is offline, nothing migrated")
	}

	started := time.Now()
	report := &MigrationReport{}

	keys := []string{localstore.KeyMessages, localstore.KeyPhotos, localstore.KeyPlanner}
	keys = append(keys, c.local.Keys(localstore.CommentsPrefix())...)

	for _, key := range keys {
		report.Keys = append(report.Keys, key)
		switch key {
		case localstore.KeyMessages:
			migrateRecords[models.Message](ctx, c, report, key, models.CollectionMessages, nil)
		case localstore.KeyPhotos:
			migrateRecords(ctx, c, report, key, models.CollectionPhotos, r.uploadLocalBlob)
		case localstore.KeyPlanner:
			r.migratePlanner(ctx, report)
		default:
			migrateRecords[models.Comment](ctx, c, report, key, models.CollectionComments, nil)
		}
	}

	report.Duration = time.Since(started)
	log.Info().
		Int("keys", len(report.Keys)).
		Int("submitted", report.Submitted).
		Int("deleted", report.Deleted).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Migration sweep finished")

	if report.Submitted+report.Deleted > 0 {
		c.notifier.Notify(LevelSuccess, "Offline changes are now synced")
	}
	return report, nil
}

// migrateRecords submits every pending record and deletion of one cache key. prepare may
// rewrite a record before submission; returning false skips it as failed.
func migrateRecords[T models.Entity](
	ctx context.Context,
	c *Coordinator,
	report *MigrationReport,
	key string,
	name models.Collection,
	prepare func(context.Context, T) (T, bool),
) {
	ledger := readLedger[T](c.local, key)
	if ledger.empty() {
		return
	}

	for _, record := range ledger.Records {
		if prepare != nil {
			prepared, ok := prepare(ctx, record)
			if !ok {
				report.Failed++
				metrics.Migrations.WithLabelValues("failed").Inc()
				continue
			}
			record = prepared
		}

		if err := c.submit(ctx, name, record); err != nil {
			log.Warn().Err(err).Str("key", key).Str("id", record.EntityID()).Msg("Failed to migrate record")
			report.Failed++
			metrics.Migrations.WithLabelValues("failed").Inc()
			continue
		}

		c.mu.Lock()
		settled := readLedger[T](c.local, key)
		settled.Records = removeByID(settled.Records, record.EntityID())
		if err := writeLedger(c.local, key, settled); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to update pending ledger")
		}
		c.mu.Unlock()

		report.Submitted++
		metrics.Migrations.WithLabelValues("submitted").Inc()
	}

	for _, id := range ledger.Deleted {
		if err := c.submitDelete(ctx, name, id); err != nil {
			log.Warn().Err(err).Str("key", key).Str("id", id).Msg("Failed to migrate deletion")
			report.Failed++
			metrics.Migrations.WithLabelValues("failed").Inc()
			continue
		}

		c.mu.Lock()
		settled := readLedger[T](c.local, key)
		settled.Deleted = removeString(settled.Deleted, id)
		if err := writeLedger(c.local, key, settled); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to update pending ledger")
		}
		c.mu.Unlock()

		report.Deleted++
		metrics.Migrations.WithLabelValues("deleted").Inc()
	}
}

// uploadLocalBlob moves locally held photo bytes to blob storage before the record is
// submitted
func (r *MigrationRunner) uploadLocalBlob(ctx context.Context, photo models.Photo) (models.Photo, bool) {
	c := r.coord
	if IsRemoteLocation(photo.LocationRef) {
		return photo, true
	}

	data, ok := c.local.Get(localstore.BlobKey(photo.ID))
	if !ok {
		log.Warn().Str("photo_id", photo.ID).Msg("Pending photo has no local bytes")
		return photo, false
	}

	callCtx, cancel := c.callContext(ctx)
	url, err := c.remote.UploadBlob(callCtx, data, BlobKey(photo.ID, photo.DisplayName))
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to migrate photo bytes")
		return photo, false
	}

	photo.LocationRef = url

	c.mu.Lock()
	change := c.photos.storeLocked(c, photo)
	c.mu.Unlock()
	c.dispatch(change)

	if err := c.local.Delete(localstore.BlobKey(photo.ID)); err != nil {
		log.Error().Err(err).Str("photo_id", photo.ID).Msg("Failed to delete migrated photo bytes")
	}
	return photo, true
}

// migratePlanner merges pending activities into the remote planner and writes it whole.
// Activities edited on both sides keep the most recent edit.
func (r *MigrationRunner) migratePlanner(ctx context.Context, report *MigrationReport) {
	c := r.coord
	ledger := readLedger[models.PlannerActivity](c.local, localstore.KeyPlanner)
	if ledger.empty() {
		return
	}
	pending := len(ledger.Records) + len(ledger.Deleted)

	c.plannerMu.Lock()
	defer c.plannerMu.Unlock()

	current, err := r.remotePlanner(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read remote planner for migration")
		report.Failed += pending
		metrics.Migrations.WithLabelValues("failed").Add(float64(pending))
		return
	}

	merged := mergeActivities(current, ledger)
	c.planner.sort(merged)

	if err := c.submitPlanner(ctx, merged); err != nil {
		log.Warn().Err(err).Msg("Failed to migrate planner")
		report.Failed += pending
		metrics.Migrations.WithLabelValues("failed").Add(float64(pending))
		return
	}

	c.mu.Lock()
	if err := writeLedger(c.local, localstore.KeyPlanner, pendingLedger[models.PlannerActivity]{}); err != nil {
		log.Error().Err(err).Msg("Failed to clear planner ledger")
	}
	if c.planner.state == StateRemoteBound {
		c.planner.view = merged
	}
	c.mu.Unlock()

	report.Submitted += len(ledger.Records)
	report.Deleted += len(ledger.Deleted)
	metrics.Migrations.WithLabelValues("submitted").Add(float64(len(ledger.Records)))
	metrics.Migrations.WithLabelValues("deleted").Add(float64(len(ledger.Deleted)))
}

// remotePlanner reads the planner document as the remote store holds it now
func (r *MigrationRunner) remotePlanner(ctx context.Context) ([]models.PlannerActivity, error) {
	c := r.coord
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.HandshakeTimeout)
	defer cancel()

	sub, err := c.remote.Subscribe(readCtx, models.CollectionPlanner, nil)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	select {
	case snap, ok := <-sub.Events():
		if !ok {
			return nil, apperrors.New(apperrors.ErrRemoteFault, "planner subscription closed")
		}
		return decodePlanner(snap), nil
	case <-readCtx.Done():
		return nil, apperrors.Wrap(apperrors.ErrRemoteFault, "planner read timed out", readCtx.Err())
	}
}

func mergeActivities(current []models.PlannerActivity, ledger pendingLedger[models.PlannerActivity]) []models.PlannerActivity {
	merged := append([]models.PlannerActivity{}, current...)
	for _, local := range ledger.Records {
		if held, ok := findByID(merged, local.ID); ok && held.UpdatedAt.After(local.UpdatedAt) {
			continue
		}
		merged = upsertByID(merged, local)
	}
	for _, id := range ledger.Deleted {
		merged = removeByID(merged, id)
	}
	return merged
}
