package parser

import (
	"regexp"
	"sort"
	"strings"
)

// Countries eligible for EU programmes: member states plus the usual
// associated countries, with common alternative spellings.
var countryNames = map[string]string{
	"austria":        "Austria",
	"belgium":        "Belgium",
	"bulgaria":       "Bulgaria",
	"croatia":        "Croatia",
	"cyprus":         "Cyprus",
	"czechia":        "Czechia",
	"czech republic": "Czechia",
	"denmark":        "Denmark",
	"estonia":        "Estonia",
	"finland":        "Finland",
	"france":         "France",
	"germany":        "Germany",
	"deutschland":    "Germany",
	"greece":         "Greece",
	"hungary":        "Hungary",
	"ireland":        "Ireland",
	"italy":          "Italy",
	"latvia":         "Latvia",
	"lithuania":      "Lithuania",
	"luxembourg":     "Luxembourg",
	"malta":          "Malta",
	"netherlands":    "Netherlands",
	"poland":         "Poland",
	"portugal":       "Portugal",
	"romania":        "Romania",
	"slovakia":       "Slovakia",
	"slovenia":       "Slovenia",
	"spain":          "Spain",
	"sweden":         "Sweden",
	"iceland":        "Iceland",
	"norway":         "Norway",
	"switzerland":    "Switzerland",
	"ukraine":        "Ukraine",
	"moldova":        "Moldova",
	"georgia":        "Georgia",
	"serbia":         "Serbia",
	"albania":        "Albania",
	"montenegro":     "Montenegro",

	"north macedonia":        "North Macedonia",
	"bosnia and herzegovina": "Bosnia and Herzegovina",

	"turkey":         "Türkiye",
	"türkiye":        "Türkiye",
	"israel":         "Israel",
	"tunisia":        "Tunisia",
	"armenia":        "Armenia",
	"united kingdom": "United Kingdom",
	"uk":             "United Kingdom",
}

var countryRe = buildCountryRe()

func buildCountryRe() *regexp.Regexp {
	names := make([]string, 0, len(countryNames))
	for n := range countryNames {
		names = append(names, regexp.QuoteMeta(n))
	}
	// longest first so "north macedonia" beats a shorter overlap
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return regexp.MustCompile(`(?i)\b(?:based in|located in|we are from|from|country\s*[:=])\s*(?:the\s+)?(` +
		strings.Join(names, "|") + `)\b`)
}

func lookupCountry(s string) (string, bool) {
	c, ok := countryNames[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

func canonicalCountry(raw string) (interface{}, bool) {
	c, ok := lookupCountry(raw)
	if !ok {
		return nil, false
	}
	return c, true
}

// canonicalOrRaw normalizes known country names and passes anything else on
// to validation unchanged.
func canonicalOrRaw(raw string) (interface{}, bool) {
	if c, ok := lookupCountry(strings.TrimRight(raw, ".")); ok {
		return c, true
	}
	return raw, true
}
