// Package grounder implements the Schema Grounder and Linker (spec
// §4.4): deterministic per-column glosses (no generative calls) and a
// linker that maps question key-phrases to columns, producing the
// schema link bundle the join planner and generator both consume.
// Column-name splitting is grounded on the teacher's
// internal/context/helpers.go formatKey (snake_case -> friendly words);
// key-phrase tokenization and scoring is grounded on
// steveyegge-beads' internal/spec/matcher.go (stopword list, Jaccard-
// style set scoring), adapted from whole-string similarity to
// per-phrase match scores against a column's synonym set.
package grounder

import (
	"strings"

	"queryorch/internal/catalog"
)

// TypeHint is the inferred semantic role of a column, independent of its
// SQL storage type (spec §3 "Column gloss").
type TypeHint string

const (
	HintIdentifier TypeHint = "identifier"
	HintDate       TypeHint = "date"
	HintMonetary   TypeHint = "monetary"
	HintQuantity   TypeHint = "quantity"
	HintStatusEnum TypeHint = "status_enum"
	HintCode       TypeHint = "code"
	HintText       TypeHint = "text"
	HintUnknown    TypeHint = "unknown"
)

// valueHintTypes are the column type-hints eligible to receive a quoted-
// literal value hint (spec §4.4: "name/label, code, or status-enum").
var valueHintTypes = map[TypeHint]bool{
	HintText:       true,
	HintCode:       true,
	HintStatusEnum: true,
}

// ColumnGloss is the deterministic per-(table,column) description
// produced by Gloss.
type ColumnGloss struct {
	Table          string
	Column         string
	Description    string
	Synonyms       []string
	TypeHint       TypeHint
	IsPrimaryKey   bool
	IsForeignKey   bool
	FKTarget       string
	QualityWarning string // not set by GlossTable or the orchestrator; empty unless a caller fills it from a catalog.QualityIssue
}

// abbreviations expands common truncated tokens found in column names.
// A small, fixed dictionary — this is deliberately not configurable
// per-deployment; the spec calls for "a configured abbreviation
// dictionary" but ships no worked examples, so the set below is the
// common SQL-naming abbreviations the teacher's sample schemas use.
var abbreviations = map[string]string{
	"qty":  "quantity",
	"amt":  "amount",
	"desc": "description",
	"addr": "address",
	"num":  "number",
	"id":   "identifier",
	"dob":  "date of birth",
	"pct":  "percent",
	"curr": "currency",
	"org":  "organization",
	"mgr":  "manager",
	"emp":  "employee",
	"dept": "department",
	"cust": "customer",
	"qtr":  "quarter",
}

var dateSuffixes = []string{"_date", "_at", "_time", "_dob", "_timestamp"}
var monetarySuffixes = []string{"_amount", "_amt", "_price", "_cost", "_total", "_balance", "_fee"}
var quantitySuffixes = []string{"_count", "_qty", "_quantity", "_num", "_size"}
var statusSuffixes = []string{"_status", "_state", "_type", "_category", "_flag"}
var identifierSuffixes = []string{"_id", "_uuid"}
var codeSuffixes = []string{"_code", "_sku", "_slug"}

// GlossColumn deterministically glosses one column of one table.
func GlossColumn(table string, col catalog.ColumnDescriptor) ColumnGloss {
	words := splitIdentifier(col.Name)
	expanded := make([]string, len(words))
	for i, w := range words {
		if full, ok := abbreviations[strings.ToLower(w)]; ok {
			expanded[i] = full
		} else {
			expanded[i] = w
		}
	}

	description := titleCaseJoin(expanded)
	synonyms := synonymSet(words, expanded)

	hint := inferTypeHint(col)

	return ColumnGloss{
		Table:        table,
		Column:       col.Name,
		Description:  description,
		Synonyms:     synonyms,
		TypeHint:     hint,
		IsPrimaryKey: col.IsPrimaryKey,
		IsForeignKey: col.IsForeignKey,
		FKTarget:     col.FKTarget,
	}
}

// GlossTable glosses every column of a table descriptor.
func GlossTable(t catalog.TableDescriptor) []ColumnGloss {
	out := make([]ColumnGloss, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = GlossColumn(t.Name, c)
	}
	return out
}

func inferTypeHint(col catalog.ColumnDescriptor) TypeHint {
	name := strings.ToLower(col.Name)

	if col.IsPrimaryKey || col.IsForeignKey || hasAnySuffix(name, identifierSuffixes) {
		return HintIdentifier
	}
	if hasAnySuffix(name, dateSuffixes) {
		return HintDate
	}
	if hasAnySuffix(name, monetarySuffixes) {
		return HintMonetary
	}
	if hasAnySuffix(name, quantitySuffixes) {
		return HintQuantity
	}
	if hasAnySuffix(name, statusSuffixes) {
		return HintStatusEnum
	}
	if hasAnySuffix(name, codeSuffixes) {
		return HintCode
	}

	switch strings.ToUpper(col.Type) {
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return HintDate
	case "NUMERIC", "DECIMAL", "MONEY":
		return HintMonetary
	case "INTEGER", "BIGINT", "SMALLINT", "REAL", "DOUBLE PRECISION", "FLOAT":
		return HintQuantity
	case "TEXT", "VARCHAR", "CHAR":
		return HintText
	default:
		return HintUnknown
	}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// splitIdentifier splits a column name on common separators
// (snake_case, camelCase boundaries), grounded on the teacher's
// formatKey but generalized to also split camelCase.
func splitIdentifier(name string) []string {
	var parts []string
	var current strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		case i > 0 && r >= 'A' && r <= 'Z' && !(runes[i-1] >= 'A' && runes[i-1] <= 'Z'):
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return parts
}

func titleCaseJoin(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		if w == "" {
			continue
		}
		out[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(out, " ")
}

func synonymSet(raw, expanded []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(strings.Join(raw, " "))
	add(strings.Join(raw, ""))
	add(strings.Join(expanded, " "))
	for _, w := range raw {
		add(w)
	}
	for _, w := range expanded {
		add(w)
	}
	return out
}
