// Package notify detects status changes and pushes them to subscribed drivers.
package notify

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"driverstatus/internal/i18n"
	"driverstatus/internal/metrics"
	"driverstatus/internal/model"
	"driverstatus/internal/push"
	"driverstatus/internal/status"
	"driverstatus/internal/store"
)

// Triggers label why an evaluation ran.
const (
	TriggerIngest = "ingest"
	TriggerTick   = "tick"
	TriggerManual = "manual"
)

// DefaultInterval is the periodic re-evaluation interval. Time-based
// transitions (loading to report office) only surface through it.
const DefaultInterval = 60 * time.Second

// Event is published for every notified change.
type Event struct {
	Plate     string    `json:"plate"`
	StatusKey string    `json:"statusKey"`
	Kind      string    `json:"kind"`
	Trigger   string    `json:"trigger"`
	At        time.Time `json:"at"`
}

// Publisher receives change events, typically the live status broker.
type Publisher interface {
	Publish(plate string, evt Event)
}

// Result summarizes one evaluation pass.
type Result struct {
	Evaluated int
	Seeded    int
	Changed   int
	Ambiguous int
	Delivered int
	Pruned    int
}

// Dispatcher owns the notification cache transitions. Evaluations and manual
// sends are serialized so their read-compare-write on the cache never
// interleaves.
type Dispatcher struct {
	Store    store.Store
	Engine   *status.Engine
	Sender   push.Sender // nil disables delivery; the cache is still maintained
	Events   Publisher
	Log      *zap.Logger
	Interval time.Duration
	Timeout  time.Duration // per delivery
	Now      func() time.Time

	mu sync.Mutex
}

func New(s store.Store, engine *status.Engine, sender push.Sender, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		Store:    s,
		Engine:   engine,
		Sender:   sender,
		Log:      log,
		Interval: DefaultInterval,
		Timeout:  push.DefaultTimeout,
		Now:      time.Now,
	}
}

// Run evaluates on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Evaluate(ctx, TriggerTick)
		}
	}
}

// Start runs the ticker loop in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.Run(ctx)
}

// Evaluate derives the status of every plate in the snapshot and notifies
// subscribers of plates whose status key changed. The first observation of
// a plate only seeds the cache.
func (d *Dispatcher) Evaluate(ctx context.Context, trigger string) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res Result
	now := d.now()
	groups := d.Store.MovementsByPlate()
	plates := make([]string, 0, len(groups))
	for p := range groups {
		plates = append(plates, p)
	}
	sort.Strings(plates)

	for _, plate := range plates {
		mvs := groups[plate]
		if len(mvs) > 1 {
			res.Ambiguous++
			metrics.AmbiguousPlates.Inc()
			d.Log.Warn("plate matches several movements, not notifying",
				zap.String("plate", plate), zap.Int("movements", len(mvs)), zap.String("trigger", trigger))
			continue
		}
		res.Evaluated++
		dec := d.Engine.Decide(mvs[0], d.Store.ManualMessage(plate), now)
		prev, seen := d.Store.LastStatusKey(plate)
		if !seen {
			d.Store.SetLastStatusKey(plate, dec.Key)
			res.Seeded++
			continue
		}
		if prev == dec.Key {
			continue
		}
		res.Changed++
		metrics.StatusChanges.WithLabelValues(trigger, string(dec.Kind)).Inc()
		d.Log.Info("status changed",
			zap.String("plate", plate), zap.String("from", prev), zap.String("to", dec.Key), zap.String("trigger", trigger))

		delivered, pruned := d.fanOut(ctx, plate, dec.Key, renderAll(dec))
		res.Delivered += delivered
		res.Pruned += pruned
		d.Store.SetLastStatusKey(plate, dec.Key)
		d.publish(plate, dec.Key, dec.Kind, trigger, now)
	}
	return res
}

// SendManual stores an office message for plate and pushes it right away,
// untranslated, to every subscriber. The cache takes the message's key so
// the next evaluation does not fire again. An empty text clears the
// override; the computed status is then notified by the next evaluation.
func (d *Dispatcher) SendManual(ctx context.Context, plate, text string) (Result, error) {
	plate = model.NormalizePlate(plate)
	if plate == "" {
		return Result{}, model.Invalid("plate", "is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		d.mu.Lock()
		d.Store.ClearManualMessage(plate)
		d.mu.Unlock()
		return d.Evaluate(ctx, TriggerManual), nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Store.SetManualMessage(plate, text)
	key := status.ManualKey(text)
	d.Store.SetLastStatusKey(plate, key)
	metrics.StatusChanges.WithLabelValues(TriggerManual, string(status.KindManual)).Inc()
	d.Log.Info("manual message set", zap.String("plate", plate), zap.String("key", key))

	bodies := make(map[i18n.Lang]push.Message, len(i18n.Supported))
	for _, l := range i18n.Supported {
		bodies[l] = push.Message{Title: i18n.T(l, i18n.PushTitle), Body: text, StatusKey: key, Plate: plate}
	}
	var res Result
	res.Changed = 1
	res.Delivered, res.Pruned = d.fanOut(ctx, plate, key, bodies)
	d.publish(plate, key, status.KindManual, TriggerManual, d.now())
	return res, nil
}

// renderAll builds the message once per supported language.
func renderAll(dec status.Decision) map[i18n.Lang]push.Message {
	out := make(map[i18n.Lang]push.Message, len(i18n.Supported))
	for _, l := range i18n.Supported {
		out[l] = push.Message{Title: i18n.T(l, i18n.PushTitle), Body: dec.Text(l), StatusKey: dec.Key}
	}
	return out
}

// fanOut delivers to every subscription of plate concurrently and prunes the
// ones that failed.
func (d *Dispatcher) fanOut(ctx context.Context, plate, key string, bodies map[i18n.Lang]push.Message) (delivered, pruned int) {
	if d.Sender == nil {
		return 0, 0
	}
	subs := d.Store.Subscriptions(plate)
	if len(subs) == 0 {
		return 0, 0
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = push.DefaultTimeout
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		msg, ok := bodies[i18n.Lang(sub.Lang)]
		if !ok {
			msg = bodies[i18n.Normalize(sub.Lang)]
		}
		msg.Plate = plate
		wg.Add(1)
		go func(i int, sub model.Subscription, msg push.Message) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			errs[i] = d.Sender.Send(cctx, sub.Endpoint, msg)
		}(i, sub, msg)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			delivered++
			continue
		}
		fields := []zap.Field{zap.String("plate", plate), zap.String("subscription", subs[i].ID), zap.String("key", key), zap.Error(err)}
		var de *push.DeliveryError
		if errors.As(err, &de) {
			fields = append(fields, zap.Int("code", de.StatusCode))
		}
		if d.Store.RemoveSubscription(plate, subs[i].ID) {
			pruned++
			metrics.SubscriptionsPruned.Inc()
		}
		d.Log.Warn("push delivery failed, subscription removed", fields...)
	}
	return delivered, pruned
}

func (d *Dispatcher) publish(plate, key string, kind status.Kind, trigger string, at time.Time) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(plate, Event{Plate: plate, StatusKey: key, Kind: string(kind), Trigger: trigger, At: at.UTC()})
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
