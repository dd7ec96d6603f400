// Package status turns a movement record into the message shown to the driver.
//
// Rules are evaluated in a fixed order and the first match wins:
//
//  1. a manual message entered by the office
//  2. the trailer has departed
//  3. the trailer has a parking location
//  4. the close-door time is set
//  5. time until scheduled departure: more than 45 minutes means loading,
//     otherwise (or unknown) the driver should report in the office
//
// Derivation never fails; malformed optional fields count as absent.
package status

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"driverstatus/internal/i18n"
	"driverstatus/internal/model"
	"driverstatus/internal/stamp"
)

// Kind is the rule that produced a status. The set is closed.
type Kind string

const (
	KindManual       Kind = "MANUAL"
	KindDeparted     Kind = "DEPARTED"
	KindLocation     Kind = "LOCATION"
	KindCloseDoor    Kind = "CLOSEDOOR_NO_LOCATION"
	KindLoadingWait  Kind = "LOADING_WAIT"
	KindReportOffice Kind = "REPORT_OFFICE"
)

// Kinds lists every Kind.
var Kinds = []Kind{KindManual, KindDeparted, KindLocation, KindCloseDoor, KindLoadingWait, KindReportOffice}

const (
	// ReportLead is how long before scheduled departure the driver must report.
	ReportLead = 45 * time.Minute
	// LoadingThreshold separates "still loading" from "report now".
	LoadingThreshold = 45 * time.Minute

	manualPrefix = "MANUAL_"
)

// ManualKey is the status key of a manual message: a content fingerprint, so
// two identical messages compare equal without keeping message history.
func ManualKey(text string) string {
	sum := blake3.Sum256([]byte(strings.TrimSpace(text)))
	return manualPrefix + hex.EncodeToString(sum[:8])
}

// KindOf maps a status key back onto its Kind.
func KindOf(key string) Kind {
	if strings.HasPrefix(key, manualPrefix) {
		return KindManual
	}
	return Kind(key)
}

// Decision is the language-independent outcome of the rules.
type Decision struct {
	Kind     Kind
	Key      string
	Manual   string
	Trailer  string
	Location string
	ReportAt string
	// Scheduled is the parsed scheduled departure; zero when unknown.
	Scheduled time.Time
}

// Text renders the decision for a driver language. Manual text is never
// translated.
func (d Decision) Text(lang i18n.Lang) string {
	switch d.Kind {
	case KindManual:
		return d.Manual
	case KindDeparted:
		return i18n.T(lang, i18n.Departed)
	case KindLocation:
		if d.Trailer != "" {
			return i18n.T(lang, i18n.LocationWithTrailer, "trailer", d.Trailer, "location", d.Location)
		}
		return i18n.T(lang, i18n.LocationNoTrailer, "location", d.Location)
	case KindCloseDoor:
		return i18n.T(lang, i18n.CloseDoor)
	case KindLoadingWait:
		return i18n.T(lang, i18n.LoadingWait)
	default:
		return i18n.T(lang, i18n.ReportOffice)
	}
}

// Status renders the decision as the driver-facing status.
func (d Decision) Status(lang i18n.Lang) model.Status {
	return model.Status{Key: d.Key, Text: d.Text(lang), ReportAt: d.ReportAt}
}

// Engine evaluates the status rules. Location is the zone naive timestamps
// in the export are written in.
type Engine struct {
	Location *time.Location
}

func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{Location: loc}
}

// Decide applies the rules to rec at instant now. manual is the office
// override for this plate, empty when none.
func (e *Engine) Decide(rec model.Movement, manual string, now time.Time) Decision {
	var d Decision
	sched, layout, ok := stamp.Parse(rec.Scheduled(), e.Location)
	if ok {
		d.Scheduled = sched
		d.ReportAt = layout.Format(sched.Add(-ReportLead))
	}
	// Only a readable timestamp counts; "0", "no" and false literals do not.
	_, _, departedAt := stamp.Parse(rec.Text(model.DepartedAtFields...), e.Location)

	switch {
	case strings.TrimSpace(manual) != "":
		d.Kind = KindManual
		d.Manual = strings.TrimSpace(manual)
		d.Key = ManualKey(d.Manual)
		return d
	case rec.Flag(model.DepartedFields...) || departedAt:
		d.Kind = KindDeparted
		// A departed truck has nothing left to report for.
		d.ReportAt = ""
	case rec.Location() != "":
		d.Kind = KindLocation
		d.Location = rec.Location()
		d.Trailer = rec.Trailer()
	case rec.Has(model.CloseDoorFields...):
		d.Kind = KindCloseDoor
	case ok && sched.Sub(now) > LoadingThreshold:
		d.Kind = KindLoadingWait
	default:
		d.Kind = KindReportOffice
	}
	d.Key = string(d.Kind)
	return d
}

// Compute is Decide followed by rendering in lang.
func (e *Engine) Compute(rec model.Movement, manual string, lang i18n.Lang, now time.Time) model.Status {
	return e.Decide(rec, manual, now).Status(lang)
}
