package registry

import (
	"regexp"
	"strconv"
	"strings"
)

var budgetFigureRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(million|mio|m|thousand|k)?\b`)

// BudgetBounds parses a human-readable range such as "€2-5 million",
// "€120,000 - €400,000" or "up to €60,000". A single figure is an upper bound.
func BudgetBounds(text string) (min, max float64, ok bool) {
	matches := budgetFigureRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}

	// "2-5 million": a trailing multiplier also scales bare figures below 1000
	// that carry none of their own. "€500,000 - €2 million" keeps 500,000.
	trailing := 1.0
	if last := matches[len(matches)-1]; last[2] != "" {
		trailing = multiplier(last[2])
	}

	values := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := parseFigure(m[1])
		if err != nil {
			return 0, 0, false
		}
		switch {
		case m[2] != "":
			v *= multiplier(m[2])
		case v < 1000:
			v *= trailing
		}
		values = append(values, v)
	}

	if len(values) == 1 {
		return 0, values[0], true
	}
	min, max = values[0], values[1]
	if min > max {
		min, max = max, min
	}
	return min, max, true
}

func multiplier(word string) float64 {
	switch strings.ToLower(word) {
	case "million", "mio", "m":
		return 1_000_000
	case "thousand", "k":
		return 1_000
	}
	return 1
}

// parseFigure reads "120,000", "120.000", "2.5", "2,5" and "1,500,000.50".
// The last separator is a decimal point unless exactly three digits follow it.
func parseFigure(s string) (float64, error) {
	last := strings.LastIndexAny(s, ",.")
	if last < 0 {
		return strconv.ParseFloat(s, 64)
	}
	whole := strings.NewReplacer(",", "", ".", "").Replace(s[:last])
	frac := s[last+1:]
	if len(frac) == 3 {
		return strconv.ParseFloat(whole+frac, 64)
	}
	return strconv.ParseFloat(whole+"."+frac, 64)
}
