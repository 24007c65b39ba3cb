package grounder

import (
	"regexp"
	"sort"
	"strings"

	"queryorch/internal/catalog"
	"queryorch/internal/config"
)

// keyPhraseRegex tokenizes on word boundaries, grounded on
// steveyegge-beads' tokenRegex (\w+) but kept separate from its
// stopword list since question text and spec-title text carry
// different noise words.
var keyPhraseRegex = regexp.MustCompile(`\w+`)

var questionStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"for": true, "to": true, "in": true, "on": true, "with": true,
	"of": true, "is": true, "are": true, "was": true, "were": true,
	"by": true, "at": true, "from": true, "how": true, "many": true,
	"what": true, "which": true, "show": true, "list": true, "me": true,
	"all": true, "each": true, "per": true, "that": true, "this": true,
}

var quotedLiteralRegex = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

// KeyPhrase is one extracted fragment of the question: either a quoted
// literal value or a token/bigram surviving stopword removal.
type KeyPhrase struct {
	Text    string
	IsValue bool
}

// ColumnMatch is a (key-phrase, column) pair whose score met the linker's
// keep threshold (spec §4.4 step 2).
type ColumnMatch struct {
	Table  string
	Column string
	Phrase string
	Score  float64
}

// TableLink is the per-table summary derived from its column matches
// (spec §4.4 "From pair scores derive, per table...").
type TableLink struct {
	Table           string
	MatchedColumns  []ColumnMatch
	ColumnCount     int
	BestScore       float64
	RelevanceScore  float64
}

// ValueHint pairs a quoted literal from the question with columns whose
// type hint is eligible to carry values (name/label, code, status-enum).
type ValueHint struct {
	Value   string
	Table   string
	Column  string
}

// SchemaLinkBundle is the linker's output (spec §3 "Schema link bundle").
type SchemaLinkBundle struct {
	RequiredTables      []string
	LinkedColumns       map[string][]ColumnMatch
	ValueHints          []ValueHint
	UnsupportedConcepts []string
	TableWarnings       []string
}

// ExtractKeyPhrases pulls quoted literals (marked as values) and, from
// the remaining text, stopword-filtered tokens plus adjacent bigrams
// (spec §4.4 "quoted literals marked as values; otherwise tokens and
// bigrams minus a stopword list").
func ExtractKeyPhrases(question string) []KeyPhrase {
	var phrases []KeyPhrase
	seen := make(map[string]bool)

	remaining := question
	for _, m := range quotedLiteralRegex.FindAllStringSubmatch(question, -1) {
		val := m[1]
		if val == "" {
			val = m[2]
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		key := "value:" + strings.ToLower(val)
		if !seen[key] {
			seen[key] = true
			phrases = append(phrases, KeyPhrase{Text: val, IsValue: true})
		}
	}
	remaining = quotedLiteralRegex.ReplaceAllString(remaining, " ")

	tokens := tokenize(remaining)
	for _, t := range tokens {
		key := "tok:" + t
		if seen[key] {
			continue
		}
		seen[key] = true
		phrases = append(phrases, KeyPhrase{Text: t})
	}
	for i := 0; i+1 < len(tokens); i++ {
		bigram := tokens[i] + " " + tokens[i+1]
		key := "tok:" + bigram
		if seen[key] {
			continue
		}
		seen[key] = true
		phrases = append(phrases, KeyPhrase{Text: bigram})
	}
	return phrases
}

func tokenize(s string) []string {
	words := keyPhraseRegex.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 || questionStopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// matchScore compares a key-phrase against a column's synonym set per
// the bands of spec §4.4 step 2: exact 1.0, prefix >=0.8, substring
// >=0.7, otherwise 0.
func matchScore(phrase string, synonyms []string) float64 {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return 0
	}
	best := 0.0
	for _, syn := range synonyms {
		var score float64
		switch {
		case syn == phrase:
			score = 1.0
		case strings.HasPrefix(syn, phrase) || strings.HasPrefix(phrase, syn):
			score = 0.8 + 0.05*matchLengthBonus(phrase, syn)
			if score > 0.95 {
				score = 0.95
			}
		case strings.Contains(syn, phrase) || strings.Contains(phrase, syn):
			score = 0.7
		default:
			continue
		}
		if score > best {
			best = score
		}
	}
	return best
}

// matchLengthBonus nudges prefix-match scores up slightly for longer
// shared prefixes, kept within the open [0.8, 0.95) band of the spec.
func matchLengthBonus(a, b string) float64 {
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	if shorter >= 8 {
		return 2
	}
	if shorter >= 5 {
		return 1
	}
	return 0
}

// Link runs the full schema linker over a glossed context (spec §4.4).
// retrievalScores carries each table's fused retrieval score from the
// schema context packet, feeding the blended relevance formula.
func Link(question string, packet *catalog.SchemaContextPacket, glossesByTable map[string][]ColumnGloss, cfg config.GrounderConfig) SchemaLinkBundle {
	phrases := ExtractKeyPhrases(question)
	matchThreshold := cfg.MatchThreshold
	if matchThreshold <= 0 {
		matchThreshold = 0.5
	}
	relevanceThreshold := cfg.RelevanceThreshold
	if relevanceThreshold <= 0 {
		relevanceThreshold = 0.5
	}

	retrievalScores := make(map[string]float64, len(packet.Tables))
	for _, t := range packet.Tables {
		retrievalScores[t.Descriptor.Name] = t.Score
	}

	linkedByTable := make(map[string][]ColumnMatch)
	bestByPhrase := make(map[string]float64)

	for _, phrase := range phrases {
		if phrase.IsValue {
			continue
		}
		for table, glosses := range glossesByTable {
			for _, g := range glosses {
				score := matchScore(phrase.Text, g.Synonyms)
				if score < matchThreshold {
					continue
				}
				linkedByTable[table] = append(linkedByTable[table], ColumnMatch{
					Table: table, Column: g.Column, Phrase: phrase.Text, Score: score,
				})
				if score > bestByPhrase[phrase.Text] {
					bestByPhrase[phrase.Text] = score
				}
			}
		}
	}

	var requiredTables []string
	links := make(map[string]TableLink, len(linkedByTable))
	for table, matches := range linkedByTable {
		sort.Slice(matches, func(i, j int) bool {
			if matches[i].Score != matches[j].Score {
				return matches[i].Score > matches[j].Score
			}
			return matches[i].Column < matches[j].Column
		})
		best := 0.0
		for _, m := range matches {
			if m.Score > best {
				best = m.Score
			}
		}
		relevance := 0.3*float64(len(matches)) + 0.4*best + 0.3*retrievalScores[table]
		links[table] = TableLink{
			Table:          table,
			MatchedColumns: matches,
			ColumnCount:    len(matches),
			BestScore:      best,
			RelevanceScore: relevance,
		}
		if relevance >= relevanceThreshold {
			requiredTables = append(requiredTables, table)
		}
	}
	sort.Strings(requiredTables)

	linkedColumns := make(map[string][]ColumnMatch, len(links))
	for table, l := range links {
		linkedColumns[table] = l.MatchedColumns
	}

	var unsupported []string
	for _, phrase := range phrases {
		if phrase.IsValue {
			continue
		}
		if bestByPhrase[phrase.Text] < matchThreshold {
			unsupported = append(unsupported, phrase.Text)
		}
	}
	sort.Strings(unsupported)

	var valueHints []ValueHint
	for _, phrase := range phrases {
		if !phrase.IsValue {
			continue
		}
		for table, glosses := range glossesByTable {
			for _, g := range glosses {
				if !valueHintTypes[g.TypeHint] {
					continue
				}
				valueHints = append(valueHints, ValueHint{Value: phrase.Text, Table: table, Column: g.Column})
			}
		}
	}
	sort.Slice(valueHints, func(i, j int) bool {
		if valueHints[i].Value != valueHints[j].Value {
			return valueHints[i].Value < valueHints[j].Value
		}
		if valueHints[i].Table != valueHints[j].Table {
			return valueHints[i].Table < valueHints[j].Table
		}
		return valueHints[i].Column < valueHints[j].Column
	})

	requiredSet := make(map[string]bool, len(requiredTables))
	for _, t := range requiredTables {
		requiredSet[t] = true
	}
	lowerQuestion := strings.ToLower(question)
	var warnings []string
	for table, warning := range cfg.ConfusableTables {
		if !requiredSet[table] {
			continue
		}
		for _, kw := range warning.Keywords {
			if strings.Contains(lowerQuestion, strings.ToLower(kw)) {
				warnings = append(warnings, warning.Message)
				break
			}
		}
	}
	sort.Strings(warnings)

	return SchemaLinkBundle{
		RequiredTables:      requiredTables,
		LinkedColumns:       linkedColumns,
		ValueHints:          valueHints,
		UnsupportedConcepts: unsupported,
		TableWarnings:       warnings,
	}
}
