package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Persister snapshots every live session on a fixed cadence and rebuilds them at startup.
type Persister struct {
	service  *GameService
	store    SnapshotStore
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewPersister(service *GameService, store SnapshotStore, interval time.Duration, logger *slog.Logger) *Persister {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Run snapshots on every tick until ctx is cancelled, then writes one final snapshot.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("snapshot loop started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := p.SnapshotAll(flushCtx); err != nil {
				p.logger.Error("final snapshot failed", "err", err)
			}
			cancel()
			p.logger.Info("snapshot loop stopped")
			return
		case <-ticker.C:
			// In-memory state stays authoritative; a failed save is retried on the next tick.
			if err := p.SnapshotAll(ctx); err != nil {
				p.logger.Warn("snapshot failed, will retry", "err", err)
			}
		}
	}
}

// SnapshotAll writes every registered session to the store.
func (p *Persister) SnapshotAll(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "persist.snapshot_all")
	defer span.End()

	var errs []error
	sessions := p.service.sessions.List()
	for _, session := range sessions {
		rec := session.Snapshot()
		if rec.Ended() {
			continue
		}
		data, err := EncodeRecord(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", rec.ContextID, err))
			continue
		}
		if err := p.save(ctx, session, rec.ContextID, data); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", rec.ContextID, err))
		}
	}
	span.SetAttributes(attribute.Int("sessions", len(sessions)))
	return errors.Join(errs...)
}

// save writes data only while session is still live and registered. Finish may have run since the
// record was taken; it deletes the snapshot under the same lock, so a finished session is never
// written back.
func (p *Persister) save(ctx context.Context, session *Session, contextID string, data []byte) error {
	p.service.snapMu.Lock()
	defer p.service.snapMu.Unlock()

	if session.Ended() {
		return nil
	}
	if current, ok := p.service.sessions.Get(contextID); !ok || current != session {
		return nil
	}
	return p.store.Save(ctx, contextID, data)
}

// RestoreReport summarizes a startup restore.
type RestoreReport struct {
	Restored []string
	Skipped  []string
	Failed   map[string]error
}

// RestoreAll rebuilds every unfinished session found in the store and registers it.
// A bad record is logged and skipped without blocking the rest.
func (p *Persister) RestoreAll(ctx context.Context) (RestoreReport, error) {
	ctx, span := p.tracer.Start(ctx, "persist.restore_all")
	defer span.End()

	report := RestoreReport{Failed: make(map[string]error)}
	stored, err := p.store.LoadAll(ctx)
	if err != nil {
		return report, fmt.Errorf("load snapshots: %w", err)
	}

	catalog, err := p.service.catalog.PowerUps(ctx)
	if err != nil {
		p.logger.Warn("power-up catalog unavailable, restoring without loot", "err", err)
		catalog = nil
	}

	for key, data := range stored {
		rec, err := DecodeRecord(data)
		if err != nil {
			report.Failed[key] = err
			p.logger.Error("snapshot decode failed", "context_id", key, "err", err)
			continue
		}
		if rec.ContextID == "" {
			rec.ContextID = key
		}
		if rec.Ended() {
			report.Skipped = append(report.Skipped, rec.ContextID)
			if err := p.store.Delete(ctx, key); err != nil {
				p.logger.Warn("drop ended snapshot failed", "context_id", key, "err", err)
			}
			continue
		}

		session, err := Restore(ctx, rec, p.service.quizzes, p.service.SessionOptions(catalog)...)
		if err != nil {
			report.Failed[rec.ContextID] = err
			p.logger.Error("session restore failed", "context_id", rec.ContextID, "err", err)
			continue
		}
		if err := p.service.sessions.Create(session); err != nil {
			report.Failed[rec.ContextID] = err
			p.logger.Error("session register failed", "context_id", rec.ContextID, "err", err)
			continue
		}
		report.Restored = append(report.Restored, rec.ContextID)
		p.logger.Info("session restored", "context_id", rec.ContextID, "quiz", rec.QuizName, "players", len(rec.Players))
	}

	span.SetAttributes(
		attribute.Int("restored", len(report.Restored)),
		attribute.Int("skipped", len(report.Skipped)),
		attribute.Int("failed", len(report.Failed)),
	)
	return report, nil
}
