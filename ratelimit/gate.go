// Package ratelimit throttles chat requests per caller. Each caller gets a
// token bucket; buckets idle past their TTL are evicted on a schedule.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultSweepSchedule is the eviction cadence when none is configured.
	DefaultSweepSchedule = "@every 5m"
	// DefaultIdleTTL is how long a caller's limiter survives without traffic.
	DefaultIdleTTL = time.Hour
)

// Config controls per-caller throttling.
type Config struct {
	RPS           float64       // Sustained requests per second per caller
	Burst         int           // Burst allowance per caller
	IdleTTL       time.Duration // Inactivity window before a limiter is evicted
	SweepSchedule string        // Cron expression or duration string for eviction sweeps
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Gate enforces per-caller request limits.
type Gate struct {
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	schedule cron.Schedule
	logger   zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*callerLimiter
}

// NewGate creates a gate from the given config, applying defaults for
// missing fields.
func NewGate(cfg Config, logger zerolog.Logger) (*Gate, error) {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}

	schedule, err := parseSweepSchedule(cfg.SweepSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sweep schedule %q: %w", cfg.SweepSchedule, err)
	}

	return &Gate{
		rps:      rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
		idleTTL:  cfg.IdleTTL,
		schedule: schedule,
		logger:   logger.With().Str("component", "ratelimit").Logger(),
		limiters: make(map[string]*callerLimiter),
	}, nil
}

// parseSweepSchedule parses the eviction cadence.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Descriptors: "@every 5m", "@hourly"
//   - Go duration strings: "15m", "2h", "1h30m"
func parseSweepSchedule(schedule string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronSched, err := parser.Parse(schedule)
	if err == nil {
		return cronSched, nil
	}

	duration, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration: %w", err)
	}
	return cron.ConstantDelaySchedule{Delay: duration}, nil
}

// Allow reports whether the caller may proceed, consuming one token when
// it may. Unknown callers get a fresh bucket.
func (g *Gate) Allow(callerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cl, ok := g.limiters[callerID]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(g.rps, g.burst)}
		g.limiters[callerID] = cl
	}
	cl.lastSeen = time.Now()

	return cl.limiter.Allow()
}

// Size returns the number of tracked callers.
func (g *Gate) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.limiters)
}

// Start runs the eviction sweep loop until the context is cancelled.
// Callers run it in its own goroutine.
func (g *Gate) Start(ctx context.Context) {
	g.logger.Info().Dur("idleTTL", g.idleTTL).Msg("Starting limiter eviction sweep")

	timer := time.NewTimer(time.Until(g.schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info().Msg("Eviction sweep stopped: context cancelled")
			return
		case now := <-timer.C:
			if evicted := g.sweep(now); evicted > 0 {
				g.logger.Debug().Int("evicted", evicted).Msg("Evicted idle caller limiters")
			}
			timer.Reset(time.Until(g.schedule.Next(time.Now())))
		}
	}
}

// sweep removes limiters idle past the TTL and returns the count removed.
func (g *Gate) sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	evicted := 0
	for id, cl := range g.limiters {
		if now.Sub(cl.lastSeen) > g.idleTTL {
			delete(g.limiters, id)
			evicted++
		}
	}
	return evicted
}
