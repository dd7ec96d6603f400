package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"driverstatus/internal/model"
)

// EstimateTTL is how long a travel-time answer is reused.
const EstimateTTL = 90 * time.Second

// Estimator answers "how long is the drive" from the providers' route
// durations. Answers are cached briefly per rounded coordinate pair and
// departure minute, because clients poll.
type Estimator struct {
	Providers []Provider
	Timeout   time.Duration
	Now       func() time.Time

	mu    sync.Mutex
	cache map[string]estimate
}

type estimate struct {
	d       time.Duration
	expires time.Time
}

func NewEstimator(timeout time.Duration, providers ...Provider) *Estimator {
	var ps []Provider
	for _, p := range providers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &Estimator{Providers: ps, Timeout: timeout, Now: time.Now, cache: map[string]estimate{}}
}

func estimateKey(from, to model.GeoPoint, departure time.Time) string {
	return fmt.Sprintf("%.3f,%.3f|%.3f,%.3f|%d", from.Lat, from.Lng, to.Lat, to.Lng, departure.Unix()/60)
}

// TravelTime returns the estimated drive duration, ok=false when every
// provider failed. Failures are not cached.
func (e *Estimator) TravelTime(ctx context.Context, from, to model.GeoPoint, departure time.Time) (time.Duration, bool) {
	key := estimateKey(from, to, departure)
	now := e.Now()

	e.mu.Lock()
	if c, ok := e.cache[key]; ok && now.Before(c.expires) {
		e.mu.Unlock()
		return c.d, true
	}
	e.mu.Unlock()

	for _, p := range e.Providers {
		d, err := e.ask(ctx, p, from, to)
		if err != nil || d <= 0 {
			continue
		}
		e.mu.Lock()
		e.evictLocked(now)
		e.cache[key] = estimate{d: d, expires: now.Add(EstimateTTL)}
		e.mu.Unlock()
		return d, true
	}
	return 0, false
}

func (e *Estimator) ask(ctx context.Context, p Provider, from, to model.GeoPoint) (time.Duration, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r, err := p.Route(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return r.Duration, nil
}

func (e *Estimator) evictLocked(now time.Time) {
	for k, c := range e.cache {
		if !now.Before(c.expires) {
			delete(e.cache, k)
		}
	}
}
