// Package i18n holds the supported driver languages and every driver-facing text.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Lang is a supported language code.
type Lang string

const (
	English Lang = "en"
	Dutch   Lang = "nl"
	German  Lang = "de"
	Polish  Lang = "pl"

	Default = English
)

// Supported lists the languages in matcher order; the first is the fallback.
var Supported = []Lang{English, Dutch, German, Polish}

var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Dutch,
	language.German,
	language.Polish,
})

// Normalize maps any BCP 47 tag (or Accept-Language value) onto a supported
// language. Unknown or unparseable input yields Default.
func Normalize(tag string) Lang {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Default
	}
	tags, _, err := language.ParseAcceptLanguage(tag)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	return Supported[idx]
}

// Text keys.
const (
	LocationWithTrailer = "location_trailer"
	LocationNoTrailer   = "location"
	CloseDoor           = "closedoor"
	LoadingWait         = "loading_wait"
	ReportOffice        = "report_office"
	Departed            = "departed"
	PushTitle           = "push_title"
	RoutePrimary        = "route_primary"
	RouteSecondary      = "route_secondary"
	RouteDirect         = "route_direct"
)

var texts = map[Lang]map[string]string{
	English: {
		LocationWithTrailer: "Please connect the {trailer} trailer on location: {location} and pick up the CMR documents in the office!",
		LocationNoTrailer:   "Please connect the trailer on location: {location} and pick up the CMR documents in the office!",
		CloseDoor:           "Your trailer is ready, please report in the office for further information!",
		LoadingWait:         "Your trailer is being loaded, please wait!",
		ReportOffice:        "Please report in the office!",
		Departed:            "Your trailer has departed. Have a safe trip!",
		PushTitle:           "Status update",
		RoutePrimary:        "Route by road",
		RouteSecondary:      "Route by road (backup provider)",
		RouteDirect:         "Straight line, no road route available",
	},
	Dutch: {
		LocationWithTrailer: "Koppel de {trailer} trailer op locatie: {location} en haal de CMR-documenten op in het kantoor!",
		LocationNoTrailer:   "Koppel de trailer op locatie: {location} en haal de CMR-documenten op in het kantoor!",
		CloseDoor:           "Je trailer is klaar, meld je in het kantoor voor meer informatie!",
		LoadingWait:         "Je trailer wordt geladen, even geduld a.u.b.!",
		ReportOffice:        "Meld je in het kantoor!",
		Departed:            "Je trailer is vertrokken. Goede reis!",
		PushTitle:           "Statusupdate",
		RoutePrimary:        "Route over de weg",
		RouteSecondary:      "Route over de weg (reserveprovider)",
		RouteDirect:         "Rechte lijn, geen wegroute beschikbaar",
	},
	German: {
		LocationWithTrailer: "Bitte kuppeln Sie den Auflieger {trailer} auf Stellplatz: {location} an und holen Sie die CMR-Papiere im Büro ab!",
		LocationNoTrailer:   "Bitte kuppeln Sie den Auflieger auf Stellplatz: {location} an und holen Sie die CMR-Papiere im Büro ab!",
		CloseDoor:           "Ihr Auflieger ist fertig, bitte melden Sie sich für weitere Informationen im Büro!",
		LoadingWait:         "Ihr Auflieger wird beladen, bitte warten Sie!",
		ReportOffice:        "Bitte melden Sie sich im Büro!",
		Departed:            "Ihr Auflieger ist abgefahren. Gute Fahrt!",
		PushTitle:           "Statusaktualisierung",
		RoutePrimary:        "Route über die Straße",
		RouteSecondary:      "Route über die Straße (Ersatzanbieter)",
		RouteDirect:         "Luftlinie, keine Straßenroute verfügbar",
	},
	Polish: {
		LocationWithTrailer: "Podłącz naczepę {trailer} na lokalizacji: {location} i odbierz dokumenty CMR w biurze!",
		LocationNoTrailer:   "Podłącz naczepę na lokalizacji: {location} i odbierz dokumenty CMR w biurze!",
		CloseDoor:           "Twoja naczepa jest gotowa, zgłoś się do biura po dalsze informacje!",
		LoadingWait:         "Twoja naczepa jest ładowana, proszę czekać!",
		ReportOffice:        "Zgłoś się do biura!",
		Departed:            "Twoja naczepa odjechała. Szerokiej drogi!",
		PushTitle:           "Aktualizacja statusu",
		RoutePrimary:        "Trasa drogowa",
		RouteSecondary:      "Trasa drogowa (dostawca zapasowy)",
		RouteDirect:         "Linia prosta, brak trasy drogowej",
	},
}

// T renders a text in lang with {name} placeholders replaced from vars
// (alternating name, value).
func T(lang Lang, key string, vars ...string) string {
	tmpl, ok := texts[lang][key]
	if !ok {
		tmpl = texts[Default][key]
	}
	if len(vars) < 2 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars))
	for i := 0; i+1 < len(vars); i += 2 {
		pairs = append(pairs, "{"+vars[i]+"}", vars[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
