package nlquery

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/salesplan/backend/internal/domain/salesplan"
	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// synonymFile is the on-disk layout of a synonym map
type synonymFile struct {
	Columns map[string][]string `yaml:"columns"`
	Intents map[string][]string `yaml:"intents"`
	Metrics map[string][]string `yaml:"metrics"`
}

// phrase is one lookup entry, matched on word boundaries
type phrase struct {
	text   string
	target string
	re     *regexp.Regexp
}

// SynonymMap resolves natural-language words to columns, intents and metrics
type SynonymMap struct {
	columns map[string][]string
	byWord  map[string]string
	colKeys []phrase
	intents []phrase
	metrics []phrase
}

// DefaultSynonyms returns the built-in synonym map
func DefaultSynonyms() *SynonymMap {
	m, err := ParseSynonyms(bytes.NewReader(defaultSynonymsYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded synonyms.yaml: %v", err))
	}
	return m
}

// LoadSynonymFile reads a synonym map from a YAML file
func LoadSynonymFile(path string) (*SynonymMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open synonym file: %w", err)
	}
	defer f.Close()
	return ParseSynonyms(f)
}

// ParseSynonyms decodes a YAML synonym map. Every column key must name a real
// column of the sales plan table.
func ParseSynonyms(r io.Reader) (*SynonymMap, error) {
	var file synonymFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode synonyms: %w", err)
	}

	m := &SynonymMap{
		columns: make(map[string][]string, len(file.Columns)),
		byWord:  map[string]string{},
	}
	for col, words := range file.Columns {
		real, ok := salesplan.CanonicalColumn(col)
		if !ok {
			return nil, fmt.Errorf("synonyms: unknown column %q", col)
		}
		m.columns[real] = words
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			m.byWord[w] = real
			m.colKeys = append(m.colKeys, newPhrase(w, real))
		}
	}
	for intent, words := range file.Intents {
		for _, w := range words {
			m.intents = append(m.intents, newPhrase(w, intent))
		}
	}
	for metric, words := range file.Metrics {
		if _, ok := metricExprs[metric]; !ok {
			return nil, fmt.Errorf("synonyms: unknown metric %q", metric)
		}
		for _, w := range words {
			m.metrics = append(m.metrics, newPhrase(w, metric))
		}
	}
	sortLongestFirst(m.colKeys)
	sortLongestFirst(m.intents)
	sortLongestFirst(m.metrics)
	return m, nil
}

func newPhrase(text, target string) phrase {
	text = strings.ToLower(strings.TrimSpace(text))
	return phrase{
		text:   text,
		target: target,
		re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(text) + `\b`),
	}
}

func sortLongestFirst(ps []phrase) {
	sort.SliceStable(ps, func(i, j int) bool {
		if len(ps[i].text) != len(ps[j].text) {
			return len(ps[i].text) > len(ps[j].text)
		}
		return ps[i].text < ps[j].text
	})
}

// ResolveColumn maps text to a column: an exact synonym or column name first,
// then the longest synonym contained in text as whole words.
func (m *SynonymMap) ResolveColumn(text string) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}
	if col, ok := m.byWord[text]; ok {
		return col, true
	}
	if col, ok := salesplan.CanonicalColumn(text); ok {
		return col, true
	}
	for _, p := range m.colKeys {
		if p.re.MatchString(text) {
			return p.target, true
		}
	}
	return "", false
}

// matchIntent returns the first intent in order that has a phrase in q
func (m *SynonymMap) matchIntent(q string, order []string) string {
	found := map[string]bool{}
	for _, p := range m.intents {
		if p.re.MatchString(q) {
			found[p.target] = true
		}
	}
	for _, intent := range order {
		if found[intent] {
			return intent
		}
	}
	return ""
}

// matchMetric returns the metric whose longest phrase occurs in q
func (m *SynonymMap) matchMetric(q string) string {
	for _, p := range m.metrics {
		if p.re.MatchString(q) {
			return p.target
		}
	}
	return ""
}

// Relevant returns the columns whose synonyms occur in the question, with
// their synonym lists, for use in generation prompts.
func (m *SynonymMap) Relevant(question string) map[string][]string {
	q := strings.ToLower(question)
	out := map[string][]string{}
	for _, p := range m.colKeys {
		if _, done := out[p.target]; done {
			continue
		}
		if p.re.MatchString(q) {
			out[p.target] = m.columns[p.target]
		}
	}
	return out
}
