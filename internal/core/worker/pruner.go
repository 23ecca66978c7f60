package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/overseer/internal/core/config"
	"github.com/vietddude/overseer/internal/infra/storage"
)

// Pruner deletes old bookkeeping based on the retention policy: closed
// incidents and scenario ledger rows past the retention period. Open
// incidents are never touched.
type Pruner struct {
	cfg       config.RetentionConfig
	incidents storage.IncidentRepository
	ledger    storage.ScenarioLedgerRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(
	cfg config.RetentionConfig,
	incidents storage.IncidentRepository,
	ledger storage.ScenarioLedgerRepository,
) *Pruner {
	return &Pruner{
		cfg:       cfg,
		incidents: incidents,
		ledger:    ledger,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.Period <= 0 {
		return // Retention disabled
	}

	interval := min(p.cfg.Period/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.Period)

	if n, err := p.incidents.DeleteClosedBefore(ctx, cutoff); err != nil {
		slog.Error("Incident prune failed", "error", err)
	} else if n > 0 {
		slog.Info("Pruned closed incidents", "count", n)
	}

	if n, err := p.ledger.DeleteBefore(ctx, cutoff); err != nil {
		slog.Error("Ledger prune failed", "error", err)
	} else if n > 0 {
		slog.Info("Pruned ledger entries", "count", n)
	}
}
