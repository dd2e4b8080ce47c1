package templates

import (
	"regexp"
	"strings"

	"grant-assistant/internal/models"
	"grant-assistant/pkg/registry"
)

const (
	placeholderPenalty = 15
	anchorBonus        = 5
	bulletBonus        = 5
	headingBonus       = 10
)

// wordRatioPoints is ordered from the highest ratio down.
var wordRatioPoints = []struct {
	ratio  float64
	points int
}{
	{0.8, 60},
	{0.5, 45},
	{0.25, 30},
	{0.1, 15},
}

var anchorWords = []string{"objective", "method", "impact", "innovation"}

var (
	bulletRe  = regexp.MustCompile(`(?m)^\s*(•|-|\*)\s+\S`)
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
)

// ScoreCompleteness rates populated subsection text from 0 to 100. Each
// leftover placeholder costs points; length relative to the word limit,
// anchor words, bullets and headings earn them.
func ScoreCompleteness(content string, wordLimit int, c *models.ApplicationContext) int {
	score := 0
	score -= placeholderPenalty * len(registry.PlaceholderPattern.FindAllString(content, -1))

	words := wordCount(content)
	if wordLimit > 0 && words > 0 {
		ratio := float64(words) / float64(wordLimit)
		points := 5
		for _, step := range wordRatioPoints {
			if ratio >= step.ratio {
				points = step.points
				break
			}
		}
		score += points
	}

	lower := strings.ToLower(content)
	for _, a := range anchorWords {
		if strings.Contains(lower, a) {
			score += anchorBonus
		}
	}
	for _, country := range partnerCountries(c) {
		if strings.Contains(lower, strings.ToLower(country)) {
			score += anchorBonus
			break
		}
	}

	if bulletRe.MatchString(content) {
		score += bulletBonus
	}
	if headingRe.MatchString(content) {
		score += headingBonus
	}

	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

func partnerCountries(c *models.ApplicationContext) []string {
	if c == nil {
		return nil
	}
	countries := c.Countries()
	if c.Country != nil {
		countries = append(countries, *c.Country)
	}
	return countries
}
