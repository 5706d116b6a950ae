// Package lifecycle implements the maintenance loops that run over an
// agent's Store outside the request path: Ebbinghaus strength decay,
// similarity-based consolidation, exclusive-relation conflict detection,
// garbage collection, pin/unpin, and the amnesia check.
package lifecycle

import (
	"time"

	"github.com/asuman/agent-memory/internal/config"
)

// Lifecycle runs the maintenance operations against one Store, parameterized
// by config.LifecycleConfig. Each operation is triggered externally (by a
// cron-style caller), not by a wall-clock timer inside the struct itself —
// see the concurrency model's note that background maintenance is
// externally triggered.
type Lifecycle struct {
	cfg config.LifecycleConfig
	now func() time.Time
}

// New builds a Lifecycle bound to cfg.
func New(cfg config.LifecycleConfig) *Lifecycle {
	return &Lifecycle{cfg: cfg, now: time.Now}
}

func (l *Lifecycle) decayBaseRate() float64 {
	if l.cfg.DecayBaseRate <= 0 {
		return 0.15
	}
	return l.cfg.DecayBaseRate
}

func (l *Lifecycle) decayAlpha() float64 {
	if l.cfg.DecayAlpha <= 0 {
		return 2.0
	}
	return l.cfg.DecayAlpha
}

func (l *Lifecycle) consolidateThreshold() float64 {
	if l.cfg.ConsolidateThreshold <= 0 {
		return 0.9
	}
	return l.cfg.ConsolidateThreshold
}

func (l *Lifecycle) conflictMargin() float64 {
	if l.cfg.ConflictMargin <= 0 {
		return 0.15
	}
	return l.cfg.ConflictMargin
}

func (l *Lifecycle) weakStrength() float64 {
	if l.cfg.WeakStrength <= 0 {
		return 0.1
	}
	return l.cfg.WeakStrength
}

func (l *Lifecycle) staleAgeDays() float64 {
	if l.cfg.StaleAgeDays <= 0 {
		return 90
	}
	return l.cfg.StaleAgeDays
}

func (l *Lifecycle) hardPurgeDays() float64 {
	if l.cfg.HardPurgeDays <= 0 {
		return 30
	}
	return l.cfg.HardPurgeDays
}
