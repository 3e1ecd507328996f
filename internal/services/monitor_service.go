package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/asset-gallery/backend/internal/events"
	"github.com/asset-gallery/backend/internal/metrics"
	"github.com/asset-gallery/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Backend is the subset of the PocketBase API the monitor needs.
type Backend interface {
	Authenticate(ctx context.Context) (*models.Credential, error)
	ListRecords(ctx context.Context, cred *models.Credential, collection, filter string) ([]models.ActivityRecord, error)
	GetActor(ctx context.Context, cred *models.Credential, collection, id string) (*models.Actor, error)
	UpdateActorStatus(ctx context.Context, cred *models.Credential, collection, id, status string) error
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type MonitorOptions struct {
	RequestCollection string
	UserCollection    string
	Threshold         int
	Window            time.Duration
	// Workers bounds concurrent per-actor updates; 1 keeps processing sequential.
	Workers int
}

// RequestMonitor counts recent requests per actor and escalates the status
// of actors above the threshold.
type RequestMonitor struct {
	backend   Backend
	lock      RunLock
	audit     AuditLogger
	publisher events.Publisher
	metrics   *metrics.Metrics
	opts      MonitorOptions
	log       *zap.Logger
	now       func() time.Time

	mu   sync.RWMutex
	last *models.MonitorReport
}

// NewRequestMonitor wires the monitor. lock, audit and publisher may be nil.
func NewRequestMonitor(
	backend Backend,
	lock RunLock,
	audit AuditLogger,
	publisher events.Publisher,
	m *metrics.Metrics,
	opts MonitorOptions,
	log *zap.Logger,
) *RequestMonitor {
	if lock == nil {
		lock = NewLocalRunLock()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 20
	}
	if opts.Window <= 0 {
		opts.Window = 5 * time.Minute
	}
	if opts.RequestCollection == "" {
		opts.RequestCollection = "requests"
	}
	if opts.UserCollection == "" {
		opts.UserCollection = "users"
	}

	return &RequestMonitor{
		backend:   backend,
		lock:      lock,
		audit:     audit,
		publisher: publisher,
		metrics:   m,
		opts:      opts,
		log:       log.Named("request-monitor"),
		now:       time.Now,
	}
}

// Run performs one monitoring pass. Authentication and bulk fetch failures
// abort the run; per-actor failures are recorded in the report.
func (m *RequestMonitor) Run(ctx context.Context, trigger string) (*models.MonitorReport, error) {
	release, ok, err := m.lock.TryAcquire(ctx)
	if err != nil {
		m.metrics.MonitorRuns.WithLabelValues(trigger, "failed").Inc()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		m.metrics.MonitorRuns.WithLabelValues(trigger, "skipped").Inc()
		m.log.Warn("monitor run skipped, another run holds the lock", zap.String("trigger", trigger))
		return nil, ErrRunInProgress
	}
	defer release()

	start := m.now()
	report := &models.MonitorReport{
		RunID:     uuid.New(),
		Trigger:   trigger,
		StartedAt: start,
		Since:     start.Add(-m.opts.Window),
	}
	log := m.log.With(zap.String("run_id", report.RunID.String()), zap.String("trigger", trigger))
	log.Info("checking requests", zap.Time("since", report.Since))

	defer func() {
		m.metrics.MonitorRunDuration.Observe(time.Since(start).Seconds())
	}()

	cred, err := m.backend.Authenticate(ctx)
	if err != nil {
		log.Error("authentication error", zap.Error(err))
		m.metrics.MonitorRuns.WithLabelValues(trigger, "failed").Inc()
		return nil, fmt.Errorf("failed to authenticate with pocketbase: %w", err)
	}
	if !cred.ExpiresAt.IsZero() {
		log.Debug("authenticated", zap.Time("token_expires_at", cred.ExpiresAt))
	}

	records, err := m.backend.ListRecords(ctx, cred, m.opts.RequestCollection, CreatedSinceFilter(report.Since))
	if err != nil {
		log.Error("error fetching requests", zap.Error(err))
		m.metrics.MonitorRuns.WithLabelValues(trigger, "failed").Inc()
		return nil, fmt.Errorf("failed to fetch recent requests: %w", err)
	}
	report.RecordsScanned = len(records)
	m.metrics.RecordsScanned.Set(float64(len(records)))
	log.Info("found requests in window", zap.Int("count", len(records)), zap.Duration("window", m.opts.Window))

	counts := models.CountByActor(records)
	actorIDs := make([]string, 0, len(counts))
	for id := range counts {
		actorIDs = append(actorIDs, id)
	}
	sort.Strings(actorIDs)

	// Each worker writes only its own slot.
	report.Results = make([]models.ActorResult, len(actorIDs))
	var g errgroup.Group
	g.SetLimit(m.opts.Workers)
	for i, id := range actorIDs {
		g.Go(func() error {
			report.Results[i] = m.processActor(ctx, log, cred, id, counts[id])
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = m.now()
	for _, res := range report.Results {
		m.metrics.ActorOutcomes.WithLabelValues(res.Outcome).Inc()
	}
	m.metrics.MonitorRuns.WithLabelValues(trigger, "success").Inc()

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()

	m.publish(ctx, log, events.StreamMonitor, events.Event{
		Type: events.EventMonitorRunCompleted,
		Payload: map[string]any{
			"run_id":          report.RunID.String(),
			"trigger":         trigger,
			"records_scanned": report.RecordsScanned,
			"actors":          len(report.Results),
			"updated":         report.Updated(),
			"failed":          report.Failed(),
		},
	})

	log.Info("completed request monitoring",
		zap.Int("actors", len(report.Results)),
		zap.Int("updated", report.Updated()),
		zap.Int("failed", report.Failed()),
		zap.Duration("took", report.FinishedAt.Sub(start)),
	)
	return report, nil
}

// LastReport returns the report of the most recent successful run, or nil.
func (m *RequestMonitor) LastReport() *models.MonitorReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *RequestMonitor) processActor(ctx context.Context, log *zap.Logger, cred *models.Credential, actorID string, count int) models.ActorResult {
	res := models.ActorResult{ActorID: actorID, Count: count}

	// At or below the threshold the status can never change.
	if count <= m.opts.Threshold {
		res.Outcome = models.OutcomeUnchanged
		return res
	}

	log = log.With(zap.String("actor_id", actorID), zap.Int("requests", count))

	actor, err := m.backend.GetActor(ctx, cred, m.opts.UserCollection, actorID)
	if err != nil {
		log.Error("error processing actor", zap.String("step", "fetch"), zap.Error(err))
		res.Outcome = models.OutcomeFailed
		res.Error = fmt.Sprintf("fetch actor: %v", err)
		return res
	}

	current := models.NormalizeStatus(actor.Status)
	next := models.NextStatus(current, count, m.opts.Threshold)
	res.PreviousStatus = current
	res.NewStatus = next

	if next == current {
		res.Outcome = models.OutcomeUnchanged
		return res
	}

	log.Info("actor exceeded request threshold",
		zap.Int("threshold", m.opts.Threshold),
		zap.String("from", current),
		zap.String("to", next),
	)

	if err := m.backend.UpdateActorStatus(ctx, cred, m.opts.UserCollection, actorID, next); err != nil {
		log.Error("error processing actor", zap.String("step", "update"), zap.Error(err))
		res.Outcome = models.OutcomeFailed
		res.Error = fmt.Sprintf("update actor status: %v", err)
		return res
	}
	res.Outcome = models.OutcomeUpdated
	m.metrics.StatusChanges.WithLabelValues(next).Inc()
	log.Info("updated actor status", zap.String("status", next))

	meta := map[string]any{
		"old_status": current,
		"new_status": next,
		"requests":   count,
		"threshold":  m.opts.Threshold,
	}

	if m.audit != nil {
		if err := m.audit.Log(ctx, models.AuditLog{
			ActorType:  "system",
			Action:     fmt.Sprintf("actor_status_%s_to_%s", current, next),
			EntityType: "user",
			EntityID:   actorID,
			Meta:       meta,
		}); err != nil {
			log.Warn("failed to write audit log", zap.Error(err))
		}
	}

	m.publish(ctx, log, events.StreamActorStatus, events.Event{
		Type: events.EventActorStatusChanged,
		Payload: map[string]any{
			"actor_id":   actorID,
			"old_status": current,
			"new_status": next,
			"requests":   count,
		},
	})

	return res
}

func (m *RequestMonitor) publish(ctx context.Context, log *zap.Logger, stream string, event events.Event) {
	if err := m.publisher.Publish(ctx, stream, event); err != nil {
		log.Warn("failed to publish event", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
	}
}
