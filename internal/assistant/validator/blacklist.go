package validator

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed data/blacklist.yaml
var defaultBlacklist []byte

type blacklistFile struct {
	Languages map[string]map[string][]string `yaml:"languages"`
	Patterns  []struct {
		Name  string `yaml:"name"`
		Regex string `yaml:"regex"`
	} `yaml:"patterns"`
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// Blacklist holds the filler-phrase tables and structural patterns.
type Blacklist struct {
	phrases   map[string]string // phrase -> "<lang>/<category>"
	patterns  []namedPattern
	languages []string
}

// Match is the reason a text was classified as generic.
type Match struct {
	Kind   string // "phrase", "pattern" or "repetition"
	Detail string
}

// DefaultBlacklist returns the tables compiled into the binary.
func DefaultBlacklist() (*Blacklist, error) {
	return ParseBlacklist(defaultBlacklist)
}

// LoadBlacklist reads tables from path.
func LoadBlacklist(path string) (*Blacklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blacklist %s: %w", path, err)
	}
	return ParseBlacklist(data)
}

func ParseBlacklist(data []byte) (*Blacklist, error) {
	var file blacklistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode blacklist: %w", err)
	}

	bl := &Blacklist{phrases: make(map[string]string)}
	for lang, categories := range file.Languages {
		bl.languages = append(bl.languages, lang)
		for category, phrases := range categories {
			for _, p := range phrases {
				bl.phrases[normalizePhrase(p)] = lang + "/" + category
			}
		}
	}
	sort.Strings(bl.languages)

	for _, p := range file.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Name, err)
		}
		bl.patterns = append(bl.patterns, namedPattern{name: p.Name, re: re})
	}
	return bl, nil
}

// Languages lists the languages with phrase tables.
func (b *Blacklist) Languages() []string {
	return append([]string(nil), b.languages...)
}

// Size returns the number of phrases across all tables.
func (b *Blacklist) Size() int {
	return len(b.phrases)
}

// IsGenericPhrase reports whether text is filler rather than a real answer.
func (b *Blacklist) IsGenericPhrase(text string) bool {
	_, ok := b.Classify(text)
	return ok
}

// Classify explains why text is generic. Empty text is not generic; emptiness
// is the required-field check's business.
func (b *Blacklist) Classify(text string) (Match, bool) {
	norm := normalizePhrase(text)
	if norm == "" {
		return Match{}, false
	}
	if where, ok := b.phrases[norm]; ok {
		return Match{Kind: "phrase", Detail: where}, true
	}
	for _, p := range b.patterns {
		if p.re.MatchString(norm) {
			return Match{Kind: "pattern", Detail: p.name}, true
		}
	}
	if isRepeatedRun(norm) {
		return Match{Kind: "repetition", Detail: "repeated_run"}, true
	}
	return Match{}, false
}

func normalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isRepeatedRun detects text made of one unit of up to three characters
// repeated at least three times ("aaaa", "hahaha", "abcabcabc"). RE2 has no
// backreferences, hence code rather than a pattern.
func isRepeatedRun(s string) bool {
	runes := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			runes = append(runes, r)
		}
	}
	for unit := 1; unit <= 3; unit++ {
		if len(runes) < unit*3 || len(runes)%unit != 0 {
			continue
		}
		repeated := true
		for i := unit; i < len(runes); i++ {
			if runes[i] != runes[i%unit] {
				repeated = false
				break
			}
		}
		if repeated {
			return true
		}
	}
	return false
}
