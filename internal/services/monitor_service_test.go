package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asset-gallery/backend/internal/events"
	"github.com/asset-gallery/backend/internal/models"
	"go.uber.org/zap"
)

type fakeBackend struct {
	mu sync.Mutex

	authErr   error
	listErr   error
	records   []models.ActivityRecord
	statuses  map[string]string
	getErr    map[string]error
	updateErr map[string]error

	listCalls int
	filter    string
	fetched   []string
	updates   map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		statuses:  map[string]string{},
		getErr:    map[string]error{},
		updateErr: map[string]error{},
		updates:   map[string]string{},
	}
}

func (b *fakeBackend) addRequests(actorID string, n int) {
	for i := 0; i < n; i++ {
		b.records = append(b.records, models.ActivityRecord{
			ID:        fmt.Sprintf("%s-%d", actorID, i),
			Requester: actorID,
		})
	}
}

func (b *fakeBackend) Authenticate(context.Context) (*models.Credential, error) {
	if b.authErr != nil {
		return nil, b.authErr
	}
	return &models.Credential{Token: "admin-token"}, nil
}

func (b *fakeBackend) ListRecords(_ context.Context, cred *models.Credential, _, filter string) ([]models.ActivityRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	b.filter = filter
	if cred == nil || cred.Token != "admin-token" {
		return nil, errors.New("missing credential")
	}
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.records, nil
}

func (b *fakeBackend) GetActor(_ context.Context, _ *models.Credential, _, id string) (*models.Actor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetched = append(b.fetched, id)
	if err := b.getErr[id]; err != nil {
		return nil, err
	}
	return &models.Actor{ID: id, Status: b.statuses[id]}, nil
}

func (b *fakeBackend) UpdateActorStatus(_ context.Context, _ *models.Credential, _, id, status string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.updateErr[id]; err != nil {
		return err
	}
	b.updates[id] = status
	b.statuses[id] = status
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
	err     error
}

func (a *recordingAudit) Log(_ context.Context, entry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return a.err
}

func newTestMonitor(backend Backend, workers int) *RequestMonitor {
	return NewRequestMonitor(backend, nil, nil, nil, nil, MonitorOptions{
		Threshold: 20,
		Window:    5 * time.Minute,
		Workers:   workers,
	}, zap.NewNop())
}

func TestRunEscalation(t *testing.T) {
	backend := newFakeBackend()
	backend.addRequests("actor-a", 25)
	backend.addRequests("actor-b", 25)
	backend.statuses["actor-b"] = models.ActorStatusFlagged
	backend.addRequests("actor-c", 45)
	backend.addRequests("actor-d", 45)
	backend.statuses["actor-d"] = models.ActorStatusSuspended
	backend.addRequests("actor-e", 5)
	backend.addRequests("actor-f", 25)
	backend.statuses["actor-f"] = models.ActorStatusSuspended

	report, err := newTestMonitor(backend, 1).Run(context.Background(), models.TriggerHTTP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		actorID string
		count   int
		status  string
		outcome string
	}{
		{"actor-a", 25, models.ActorStatusFlagged, models.OutcomeUpdated},
		{"actor-b", 25, models.ActorStatusSuspended, models.OutcomeUpdated},
		{"actor-c", 45, models.ActorStatusSuspended, models.OutcomeUpdated},
		{"actor-d", 45, models.ActorStatusSuspended, models.OutcomeUnchanged},
		{"actor-e", 5, "", models.OutcomeUnchanged},
		{"actor-f", 25, models.ActorStatusSuspended, models.OutcomeUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.actorID, func(t *testing.T) {
			res, ok := report.Result(tt.actorID)
			if !ok {
				t.Fatalf("no result for %s", tt.actorID)
			}
			if res.Count != tt.count {
				t.Errorf("count = %d, want %d", res.Count, tt.count)
			}
			if res.Outcome != tt.outcome {
				t.Errorf("outcome = %q, want %q", res.Outcome, tt.outcome)
			}
			if tt.status != "" && backend.statuses[tt.actorID] != tt.status {
				t.Errorf("stored status = %q, want %q", backend.statuses[tt.actorID], tt.status)
			}
		})
	}

	if len(backend.updates) != 3 {
		t.Errorf("expected 3 writes, got %v", backend.updates)
	}
	if _, ok := backend.updates["actor-d"]; ok {
		t.Error("unchanged status must not be written back")
	}
	for _, id := range backend.fetched {
		if id == "actor-e" {
			t.Error("actor below threshold should not be fetched")
		}
	}
	if report.RecordsScanned != len(backend.records) {
		t.Errorf("RecordsScanned = %d, want %d", report.RecordsScanned, len(backend.records))
	}
	if report.Updated() != 3 || report.Failed() != 0 {
		t.Errorf("updated=%d failed=%d", report.Updated(), report.Failed())
	}
}

func TestRunAuthenticationFailureAborts(t *testing.T) {
	backend := newFakeBackend()
	backend.authErr = &UpstreamError{Service: "pocketbase", Op: "authenticate", StatusCode: 400}
	backend.addRequests("actor-a", 30)

	report, err := newTestMonitor(backend, 1).Run(context.Background(), models.TriggerHTTP)
	if err == nil {
		t.Fatal("expected error")
	}
	if report != nil {
		t.Errorf("expected nil report, got %+v", report)
	}
	if !strings.Contains(err.Error(), "authenticate") {
		t.Errorf("error %q should mention authenticate", err)
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.StatusCode != 400 {
		t.Errorf("expected wrapped UpstreamError, got %v", err)
	}
	if backend.listCalls != 0 {
		t.Error("records must not be fetched after authentication failure")
	}
}

func TestRunFetchFailureAborts(t *testing.T) {
	backend := newFakeBackend()
	backend.listErr = errors.New("connection reset")

	_, err := newTestMonitor(backend, 1).Run(context.Background(), models.TriggerScheduled)
	if err == nil || !strings.Contains(err.Error(), "fetch recent requests") {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if len(backend.updates) != 0 {
		t.Error("no updates expected")
	}
}

func TestRunUpdateFailureIsIsolated(t *testing.T) {
	backend := newFakeBackend()
	backend.addRequests("actor-a", 25)
	backend.addRequests("actor-b", 25)
	backend.addRequests("actor-c", 50)
	backend.updateErr["actor-a"] = &UpstreamError{Service: "pocketbase", Op: "update users/actor-a", StatusCode: 500}
	backend.getErr["actor-c"] = errors.New("timeout")

	report, err := newTestMonitor(backend, 1).Run(context.Background(), models.TriggerHTTP)
	if err != nil {
		t.Fatalf("per-actor failures must not fail the run: %v", err)
	}

	a, _ := report.Result("actor-a")
	if a.Outcome != models.OutcomeFailed || !strings.Contains(a.Error, "500") {
		t.Errorf("actor-a result = %+v", a)
	}
	c, _ := report.Result("actor-c")
	if c.Outcome != models.OutcomeFailed || !strings.Contains(c.Error, "fetch actor") {
		t.Errorf("actor-c result = %+v", c)
	}
	b, _ := report.Result("actor-b")
	if b.Outcome != models.OutcomeUpdated || backend.updates["actor-b"] != models.ActorStatusFlagged {
		t.Errorf("actor-b should still be flagged, result = %+v", b)
	}
	if report.Failed() != 2 || report.Updated() != 1 {
		t.Errorf("failed=%d updated=%d", report.Failed(), report.Updated())
	}
}

func TestRunWithWorkerPoolMatchesSequential(t *testing.T) {
	build := func() *fakeBackend {
		b := newFakeBackend()
		for i := 0; i < 30; i++ {
			id := fmt.Sprintf("actor-%02d", i)
			b.addRequests(id, 15+i)
			if i%3 == 0 {
				b.statuses[id] = models.ActorStatusFlagged
			}
		}
		return b
	}

	seqBackend, poolBackend := build(), build()
	seq, err := newTestMonitor(seqBackend, 1).Run(context.Background(), models.TriggerHTTP)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := newTestMonitor(poolBackend, 8).Run(context.Background(), models.TriggerHTTP)
	if err != nil {
		t.Fatal(err)
	}

	if len(seq.Results) != len(pool.Results) {
		t.Fatalf("result counts differ: %d vs %d", len(seq.Results), len(pool.Results))
	}
	for i := range seq.Results {
		if seq.Results[i] != pool.Results[i] {
			t.Errorf("result %d differs: %+v vs %+v", i, seq.Results[i], pool.Results[i])
		}
	}
	for id, status := range seqBackend.statuses {
		if poolBackend.statuses[id] != status {
			t.Errorf("%s: sequential %q, pool %q", id, status, poolBackend.statuses[id])
		}
	}
}

func TestRunRejectsOverlappingRuns(t *testing.T) {
	lock := NewLocalRunLock()
	release, ok, _ := lock.TryAcquire(context.Background())
	if !ok {
		t.Fatal("failed to take lock")
	}

	backend := newFakeBackend()
	m := NewRequestMonitor(backend, lock, nil, nil, nil, MonitorOptions{}, zap.NewNop())

	if _, err := m.Run(context.Background(), models.TriggerHTTP); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if backend.listCalls != 0 {
		t.Error("skipped run must not touch the backend")
	}

	release()
	if _, err := m.Run(context.Background(), models.TriggerHTTP); err != nil {
		t.Fatalf("run after release failed: %v", err)
	}
}

func TestRunFiltersByWindow(t *testing.T) {
	backend := newFakeBackend()
	m := newTestMonitor(backend, 1)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	report, err := m.Run(context.Background(), models.TriggerScheduled)
	if err != nil {
		t.Fatal(err)
	}

	want := "(created>='2024-05-01 11:55:00.000Z')"
	if backend.filter != want {
		t.Errorf("filter = %q, want %q", backend.filter, want)
	}
	if !report.Since.Equal(fixed.Add(-5 * time.Minute)) {
		t.Errorf("Since = %v", report.Since)
	}
	if m.LastReport() != report {
		t.Error("LastReport should return the latest report")
	}
}

func TestRunAuditsAndPublishesUpdates(t *testing.T) {
	backend := newFakeBackend()
	backend.addRequests("actor-a", 25)
	backend.addRequests("actor-b", 3)

	audit := &recordingAudit{err: errors.New("db down")}
	pub := &recordingPublisher{}
	m := NewRequestMonitor(backend, nil, audit, pub, nil, MonitorOptions{Threshold: 20}, zap.NewNop())

	report, err := m.Run(context.Background(), models.TriggerHTTP)
	if err != nil {
		t.Fatal(err)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.EntityID != "actor-a" || entry.Action != "actor_status_normal_to_flagged" {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	if res, _ := report.Result("actor-a"); res.Outcome != models.OutcomeUpdated {
		t.Errorf("audit failure must not change outcome, got %+v", res)
	}
	if pub.count(events.EventActorStatusChanged) != 1 {
		t.Errorf("expected 1 status event, got %d", pub.count(events.EventActorStatusChanged))
	}
	if pub.count(events.EventMonitorRunCompleted) != 1 {
		t.Errorf("expected 1 run completed event, got %d", pub.count(events.EventMonitorRunCompleted))
	}
}
