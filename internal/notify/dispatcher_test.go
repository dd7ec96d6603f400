package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"driverstatus/internal/i18n"
	"driverstatus/internal/model"
	"driverstatus/internal/push"
	"driverstatus/internal/status"
	"driverstatus/internal/store"
)

type sent struct {
	url string
	msg push.Message
}

type fakeSender struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []sent
}

func (f *fakeSender) Send(_ context.Context, to model.Endpoint, msg push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[to.URL] {
		return &push.DeliveryError{StatusCode: 410}
	}
	f.sent = append(f.sent, sent{url: to.URL, msg: msg})
	return nil
}

func (f *fakeSender) byURL() map[string][]push.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]push.Message{}
	for _, s := range f.sent {
		out[s.url] = append(out[s.url], s.msg)
	}
	return out
}

type fakeEvents struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeEvents) Publish(_ string, evt Event) {
	f.mu.Lock()
	f.events = append(f.events, evt)
	f.mu.Unlock()
}

var noon = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Dispatcher, *store.Memory, *fakeSender, *time.Time) {
	t.Helper()
	mem := store.NewMemory()
	sender := &fakeSender{fail: map[string]bool{}}
	d := New(mem, status.NewEngine(time.UTC), sender, nil)
	now := noon
	d.Now = func() time.Time { return now }
	return d, mem, sender, &now
}

func subscribe(mem *store.Memory, plate, url, lang string) {
	mem.Subscribe(model.Subscription{EntityKey: plate, Endpoint: model.Endpoint{URL: url}, Lang: lang})
}

func load(mem *store.Memory, mvs ...model.Movement) {
	mem.ReplaceSnapshot(model.Snapshot{Movements: mvs}, noon)
}

func TestFirstObservationOnlySeeds(t *testing.T) {
	d, mem, sender, _ := setup(t)
	subscribe(mem, "AB12", "https://push/a", "en")
	load(mem, model.Movement{"license_plate": "AB-12", "location": "P12"})

	res := d.Evaluate(context.Background(), TriggerIngest)
	if res.Seeded != 1 || res.Changed != 0 || len(sender.sent) != 0 {
		t.Fatalf("seed run: %+v sent=%d", res, len(sender.sent))
	}
	if k, ok := mem.LastStatusKey("AB12"); !ok || k != "LOCATION" {
		t.Fatalf("cache %q %v", k, ok)
	}
}

func TestChangeDispatchesOncePerSubscriptionInItsLanguage(t *testing.T) {
	d, mem, sender, _ := setup(t)
	events := &fakeEvents{}
	d.Events = events
	subscribe(mem, "AB12", "https://push/en", "en")
	subscribe(mem, "AB12", "https://push/nl", "nl")
	subscribe(mem, "AB12", "https://push/xx", "fr-CA")
	subscribe(mem, "CD34", "https://push/other", "en")
	load(mem, model.Movement{"license_plate": "AB12", "location": "P12"}, model.Movement{"license_plate": "CD34", "location": "P1"})
	d.Evaluate(context.Background(), TriggerIngest)

	load(mem, model.Movement{"license_plate": "AB12", "departed": "yes"}, model.Movement{"license_plate": "CD34", "location": "P1"})
	res := d.Evaluate(context.Background(), TriggerIngest)
	if res.Changed != 1 || res.Delivered != 3 {
		t.Fatalf("change run: %+v", res)
	}
	got := sender.byURL()
	if len(got) != 3 || len(got["https://push/other"]) != 0 {
		t.Fatalf("deliveries: %+v", got)
	}
	for url, lang := range map[string]i18n.Lang{"https://push/en": i18n.English, "https://push/nl": i18n.Dutch, "https://push/xx": i18n.English} {
		msgs := got[url]
		if len(msgs) != 1 {
			t.Fatalf("%s: %d deliveries", url, len(msgs))
		}
		want := i18n.T(lang, i18n.Departed)
		if msgs[0].Body != want || msgs[0].StatusKey != "DEPARTED" || msgs[0].Plate != "AB12" || msgs[0].Title != i18n.T(lang, i18n.PushTitle) {
			t.Fatalf("%s: got %+v want body %q", url, msgs[0], want)
		}
	}
	if len(events.events) != 1 || events.events[0].StatusKey != "DEPARTED" || events.events[0].Trigger != TriggerIngest {
		t.Fatalf("events: %+v", events.events)
	}

	// Unchanged input dispatches nothing.
	res = d.Evaluate(context.Background(), TriggerTick)
	if res.Changed != 0 || len(sender.byURL()["https://push/en"]) != 1 {
		t.Fatalf("unchanged run: %+v", res)
	}
}

func TestFailedDeliveryIsPruned(t *testing.T) {
	d, mem, sender, _ := setup(t)
	sender.fail["https://push/dead"] = true
	subscribe(mem, "AB12", "https://push/dead", "en")
	subscribe(mem, "AB12", "https://push/live", "de")
	load(mem, model.Movement{"license_plate": "AB12", "location": "P12"})
	d.Evaluate(context.Background(), TriggerIngest)

	load(mem, model.Movement{"license_plate": "AB12", "location": "P14"})
	d.Evaluate(context.Background(), TriggerIngest)
	load(mem, model.Movement{"license_plate": "AB12", "close_door": "08:00"})
	res := d.Evaluate(context.Background(), TriggerIngest)
	if res.Changed != 1 || res.Pruned != 1 || res.Delivered != 1 {
		t.Fatalf("got %+v", res)
	}
	subs := mem.Subscriptions("AB12")
	if len(subs) != 1 || subs[0].Endpoint.URL != "https://push/live" {
		t.Fatalf("registry: %+v", subs)
	}
	if n := len(sender.byURL()["https://push/live"]); n != 1 {
		t.Fatalf("live endpoint got %d", n)
	}
}

func TestTimeThresholdFiresOnTick(t *testing.T) {
	d, mem, sender, now := setup(t)
	subscribe(mem, "AB12", "https://push/a", "en")
	load(mem, model.Movement{"license_plate": "AB12", "scheduled_departure": "2024-05-01 14:00"})
	d.Evaluate(context.Background(), TriggerIngest)
	if k, _ := mem.LastStatusKey("AB12"); k != "LOADING_WAIT" {
		t.Fatalf("seeded %q", k)
	}

	*now = noon.Add(100 * time.Minute)
	res := d.Evaluate(context.Background(), TriggerTick)
	if res.Changed != 1 {
		t.Fatalf("got %+v", res)
	}
	if msgs := sender.byURL()["https://push/a"]; len(msgs) != 1 || msgs[0].StatusKey != "REPORT_OFFICE" {
		t.Fatalf("got %+v", msgs)
	}
}

func TestAmbiguousPlateIsSkipped(t *testing.T) {
	d, mem, sender, _ := setup(t)
	subscribe(mem, "AB12", "https://push/a", "en")
	load(mem, model.Movement{"license_plate": "AB12", "location": "P1"}, model.Movement{"plate": "ab 12", "location": "P2"})
	res := d.Evaluate(context.Background(), TriggerIngest)
	if res.Ambiguous != 1 || res.Seeded != 0 || len(sender.sent) != 0 {
		t.Fatalf("got %+v", res)
	}
	if _, ok := mem.LastStatusKey("AB12"); ok {
		t.Fatal("ambiguous plate must not be seeded")
	}
}

func TestManualMessageBypassesDiff(t *testing.T) {
	d, mem, sender, _ := setup(t)
	subscribe(mem, "AB12", "https://push/en", "en")
	subscribe(mem, "AB12", "https://push/pl", "pl")
	load(mem, model.Movement{"license_plate": "AB12", "location": "P12"})
	d.Evaluate(context.Background(), TriggerIngest)

	res, err := d.SendManual(context.Background(), "ab-12", "  Come to gate 4  ")
	if err != nil || res.Delivered != 2 {
		t.Fatalf("manual: %+v %v", res, err)
	}
	for url, msgs := range sender.byURL() {
		if len(msgs) != 1 || msgs[0].Body != "Come to gate 4" {
			t.Fatalf("%s got %+v", url, msgs)
		}
	}
	want := status.ManualKey("Come to gate 4")
	if k, _ := mem.LastStatusKey("AB12"); k != want {
		t.Fatalf("cache %q want %q", k, want)
	}

	// The next tick computes the same manual key and stays quiet.
	if res := d.Evaluate(context.Background(), TriggerTick); res.Changed != 0 {
		t.Fatalf("tick re-fired: %+v", res)
	}

	// Clearing returns to the computed status and notifies it.
	res, err = d.SendManual(context.Background(), "AB12", "")
	if err != nil || res.Changed != 1 {
		t.Fatalf("clear: %+v %v", res, err)
	}
	if mem.ManualMessage("AB12") != "" {
		t.Fatal("override not cleared")
	}
	if k, _ := mem.LastStatusKey("AB12"); k != "LOCATION" {
		t.Fatalf("cache after clear %q", k)
	}
}

func TestManualMessageRequiresPlate(t *testing.T) {
	d, _, _, _ := setup(t)
	var ve *model.ValidationError
	if _, err := d.SendManual(context.Background(), " - ", "hello"); !errors.As(err, &ve) {
		t.Fatalf("got %v", err)
	}
}

func TestNilSenderStillMaintainsCache(t *testing.T) {
	d, mem, _, _ := setup(t)
	d.Sender = nil
	subscribe(mem, "AB12", "https://push/a", "en")
	load(mem, model.Movement{"license_plate": "AB12", "location": "P12"})
	d.Evaluate(context.Background(), TriggerIngest)
	load(mem, model.Movement{"license_plate": "AB12", "departed": true})
	res := d.Evaluate(context.Background(), TriggerIngest)
	if res.Changed != 1 || res.Pruned != 0 || mem.SubscriptionCount() != 1 {
		t.Fatalf("got %+v", res)
	}
}

func TestRunEvaluatesOnTick(t *testing.T) {
	d, mem, _, _ := setup(t)
	d.Interval = 5 * time.Millisecond
	load(mem, model.Movement{"license_plate": "AB12", "location": "P12"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := mem.LastStatusKey("AB12"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ticker never evaluated")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
