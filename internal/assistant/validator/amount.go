package validator

import (
	"regexp"
	"strconv"
	"strings"
)

var amountRe = regexp.MustCompile(`(?i)(\d+(?:[.,' ]\d{3})*(?:[.,]\d+)?)\s*(million|mio\.?|mln|m|thousand|k|tsd\.?)?(?:\b|$)`)

// ParseAmount reads a monetary figure such as "3,000,000", "€3.000.000",
// "2.5M", "EUR 450k" or "1,2 Mio". It returns false when no figure is found.
func ParseAmount(text string) (float64, bool) {
	cleaned := currencyReplacer.Replace(text)
	m := amountRe.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	switch strings.TrimSuffix(strings.ToLower(m[2]), ".") {
	case "million", "mio", "mln", "m":
		v *= 1_000_000
	case "thousand", "k", "tsd":
		v *= 1_000
	}
	return v, true
}

var currencyReplacer = strings.NewReplacer(
	"€", " ", "Euros", " ", "euros", " ", "Euro", " ", "euro", " ", "EUR", " ", "eur", " ",
)

// ParseFigure is ParseAmount for text that must be a figure and nothing else:
// "€3,000,000" and "2.5 million euros" pass, "version 2 of 36" does not.
func ParseFigure(text string) (float64, bool) {
	cleaned := strings.TrimSpace(currencyReplacer.Replace(text))
	loc := amountRe.FindStringIndex(cleaned)
	if loc == nil || loc[0] != 0 || strings.TrimSpace(cleaned[loc[1]:]) != "" {
		return 0, false
	}
	return ParseAmount(cleaned)
}

// parseNumber accepts both "1,000.50" and "1.000,50" conventions. A single
// separator followed by exactly three digits is a thousands separator.
func parseNumber(s string) (float64, bool) {
	s = strings.NewReplacer(" ", "", "'", "").Replace(s)
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
