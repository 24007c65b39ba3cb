package catalog

import (
	"context"
	"fmt"
	"strings"

	"queryorch/internal/adapter"
)

// QualityIssue is a deterministic, SQL-derived observation about a
// column or foreign key, surfaced to the grounder as a column gloss
// warning (SPEC_FULL.md §3 "Deterministic data-quality checks"). No LLM
// is involved in producing these; they are opinions about the data, not
// about the question.
type QualityIssue struct {
	Table       string
	Column      string
	Type        string // "whitespace", "type_mismatch", "null_heavy", "empty_string", "orphan"
	Severity    string // "critical" | "warning"
	Description string
	SQLFix      string
	AffectedOps []string
	Examples    []string
}

// ValueStats summarizes a column's value distribution. RunAll returns
// one per column; the grounder's value hints and the evaluator's value
// verification pass do not read it.
type ValueStats struct {
	NullCount     int
	NullPercent   float64
	DistinctCount int
	EmptyCount    int
	TopValues     []ValueFrequency
	Range         *NumericRange
}

type ValueFrequency struct {
	Value   string
	Count   int
	Percent float64
}

type NumericRange struct {
	Min float64
	Max float64
	Avg float64
}

// QualityChecker runs deterministic checks against a live database
// connection for a single table, grounded on the teacher's
// internal/context/quality_checker.go but detached from the
// teacher's whole-database SharedContext: it takes a TableDescriptor
// and a row count and returns issues/stats the caller attaches wherever
// it likes (here, the grounder's column glosses).
type QualityChecker struct {
	adapter   adapter.DBAdapter
	table     TableDescriptor
	rowCount  int64
}

// NewQualityChecker builds a checker for one table. rowCount is supplied
// by the caller (typically from a prior COUNT(*) or the catalog's cached
// row-count estimate) so RunAll can skip empty tables without its own
// round trip.
func NewQualityChecker(dbAdapter adapter.DBAdapter, table TableDescriptor, rowCount int64) *QualityChecker {
	return &QualityChecker{adapter: dbAdapter, table: table, rowCount: rowCount}
}

// RunAll executes every check for the table's columns and foreign keys.
func (qc *QualityChecker) RunAll(ctx context.Context) ([]QualityIssue, map[string]*ValueStats, error) {
	if qc.rowCount == 0 {
		return nil, nil, nil
	}

	var issues []QualityIssue
	statsByColumn := make(map[string]*ValueStats)

	for _, col := range qc.table.Columns {
		colType := strings.ToUpper(col.Type)

		if isTextType(colType) {
			if issue := qc.checkWhitespace(ctx, col.Name); issue != nil {
				issues = append(issues, *issue)
			}
			if issue := qc.checkTypeMismatch(ctx, col.Name); issue != nil {
				issues = append(issues, *issue)
			}
		}

		stats := qc.collectValueStats(ctx, col.Name, colType)
		if stats == nil {
			continue
		}
		statsByColumn[col.Name] = stats

		if stats.NullPercent > 50 {
			issues = append(issues, QualityIssue{
				Table:       qc.table.Name,
				Column:      col.Name,
				Type:        "null_heavy",
				Severity:    "warning",
				Description: fmt.Sprintf("%.0f%% NULL values (%d/%d)", stats.NullPercent, stats.NullCount, qc.rowCount),
				SQLFix:      fmt.Sprintf("WHERE %s IS NOT NULL", quoteIdent(col.Name)),
				AffectedOps: []string{"WHERE", "JOIN", "GROUP BY"},
			})
		}
		if isTextType(colType) && stats.EmptyCount > 0 {
			issues = append(issues, QualityIssue{
				Table:       qc.table.Name,
				Column:      col.Name,
				Type:        "empty_string",
				Severity:    "warning",
				Description: fmt.Sprintf("contains %d empty string values in addition to NULLs", stats.EmptyCount),
				SQLFix:      fmt.Sprintf("WHERE %s IS NOT NULL AND %s != ''", quoteIdent(col.Name), quoteIdent(col.Name)),
				AffectedOps: []string{"WHERE", "GROUP BY"},
			})
		}
	}

	for _, col := range qc.table.Columns {
		if col.IsForeignKey && col.FKTarget != "" {
			if issue := qc.checkOrphanRecords(ctx, col); issue != nil {
				issues = append(issues, *issue)
			}
		}
	}

	return issues, statsByColumn, nil
}

func (qc *QualityChecker) checkWhitespace(ctx context.Context, colName string) *QualityIssue {
	sql := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s IS NOT NULL AND %s != TRIM(%s) LIMIT 5`,
		quoteIdent(colName), quoteIdent(qc.table.Name),
		quoteIdent(colName), quoteIdent(colName), quoteIdent(colName),
	)
	result, err := qc.adapter.ExecuteQuery(ctx, sql)
	if err != nil || result.RowCount == 0 {
		return nil
	}

	examples := make([]string, 0, 3)
	for _, row := range result.Rows {
		for _, val := range row {
			if s, ok := val.(string); ok {
				examples = append(examples, fmt.Sprintf("'%s'", s))
				if len(examples) >= 3 {
					break
				}
			}
		}
	}

	return &QualityIssue{
		Table:       qc.table.Name,
		Column:      colName,
		Type:        "whitespace",
		Severity:    "critical",
		Description: fmt.Sprintf("contains leading/trailing whitespace (%d+ rows)", result.RowCount),
		SQLFix:      fmt.Sprintf("TRIM(%s)", quoteIdent(colName)),
		AffectedOps: []string{"JOIN", "WHERE", "GROUP BY"},
		Examples:    examples,
	}
}

func (qc *QualityChecker) checkTypeMismatch(ctx context.Context, colName string) *QualityIssue {
	countSQL := fmt.Sprintf(
		`SELECT COUNT(*) AS cnt FROM %s WHERE %s IS NOT NULL AND %s != ''`,
		quoteIdent(qc.table.Name), quoteIdent(colName), quoteIdent(colName),
	)
	countResult, err := qc.adapter.ExecuteQuery(ctx, countSQL)
	if err != nil {
		return nil
	}
	nonEmpty := extractCount(countResult)
	if nonEmpty < 5 {
		return nil
	}

	numericSQL := fmt.Sprintf(
		`SELECT COUNT(*) AS cnt FROM %s WHERE %s ~ '^[0-9]+$'`,
		quoteIdent(qc.table.Name), quoteIdent(colName),
	)
	numResult, err := qc.adapter.ExecuteQuery(ctx, numericSQL)
	if err != nil {
		return nil
	}
	numeric := extractCount(numResult)

	ratio := float64(numeric) / float64(nonEmpty)
	if ratio < 0.8 {
		return nil
	}

	return &QualityIssue{
		Table:       qc.table.Name,
		Column:      colName,
		Type:        "type_mismatch",
		Severity:    "critical",
		Description: fmt.Sprintf("text column stores numeric values (%.0f%% numeric, %d/%d non-empty)", ratio*100, numeric, nonEmpty),
		SQLFix:      fmt.Sprintf("CAST(%s AS INTEGER)", quoteIdent(colName)),
		AffectedOps: []string{"WHERE", "ORDER BY", "GROUP BY", "HAVING"},
	}
}

func (qc *QualityChecker) checkOrphanRecords(ctx context.Context, col ColumnDescriptor) *QualityIssue {
	parts := strings.SplitN(col.FKTarget, ".", 2)
	if len(parts) != 2 {
		return nil
	}
	refTable, refColumn := parts[0], parts[1]

	sql := fmt.Sprintf(
		`SELECT COUNT(*) AS cnt FROM %s child LEFT JOIN %s parent ON child.%s = parent.%s WHERE parent.%s IS NULL AND child.%s IS NOT NULL`,
		quoteIdent(qc.table.Name), quoteIdent(refTable),
		quoteIdent(col.Name), quoteIdent(refColumn),
		quoteIdent(refColumn), quoteIdent(col.Name),
	)
	result, err := qc.adapter.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil
	}
	orphans := extractCount(result)
	if orphans == 0 {
		return nil
	}

	return &QualityIssue{
		Table:       qc.table.Name,
		Column:      col.Name,
		Type:        "orphan",
		Severity:    "warning",
		Description: fmt.Sprintf("%d orphan records (%s not found in %s.%s)", orphans, col.Name, refTable, refColumn),
		SQLFix: fmt.Sprintf("LEFT JOIN %s ON %s.%s = %s.%s",
			quoteIdent(refTable), quoteIdent(qc.table.Name), quoteIdent(col.Name), quoteIdent(refTable), quoteIdent(refColumn)),
		AffectedOps: []string{"JOIN"},
	}
}

func (qc *QualityChecker) collectValueStats(ctx context.Context, colName, colType string) *ValueStats {
	stats := &ValueStats{}

	basicSQL := fmt.Sprintf(
		`SELECT COUNT(*) - COUNT(%s) AS null_cnt, COUNT(DISTINCT %s) AS distinct_cnt FROM %s`,
		quoteIdent(colName), quoteIdent(colName), quoteIdent(qc.table.Name),
	)
	basicResult, err := qc.adapter.ExecuteQuery(ctx, basicSQL)
	if err != nil {
		return nil
	}
	if basicResult.RowCount > 0 {
		row := basicResult.Rows[0]
		stats.NullCount = toInt(row["null_cnt"])
		stats.DistinctCount = toInt(row["distinct_cnt"])
		stats.NullPercent = float64(stats.NullCount) / float64(qc.rowCount) * 100
	}

	if isTextType(colType) {
		emptySQL := fmt.Sprintf(`SELECT COUNT(*) AS cnt FROM %s WHERE %s = ''`, quoteIdent(qc.table.Name), quoteIdent(colName))
		if emptyResult, err := qc.adapter.ExecuteQuery(ctx, emptySQL); err == nil {
			stats.EmptyCount = extractCount(emptyResult)
		}
	}

	if stats.DistinctCount > 0 && stats.DistinctCount <= 30 {
		topSQL := fmt.Sprintf(
			`SELECT %s AS val, COUNT(*) AS cnt FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY cnt DESC LIMIT 15`,
			quoteIdent(colName), quoteIdent(qc.table.Name), quoteIdent(colName), quoteIdent(colName),
		)
		if topResult, err := qc.adapter.ExecuteQuery(ctx, topSQL); err == nil {
			for _, row := range topResult.Rows {
				cnt := toInt(row["cnt"])
				stats.TopValues = append(stats.TopValues, ValueFrequency{
					Value:   fmt.Sprintf("%v", row["val"]),
					Count:   cnt,
					Percent: float64(cnt) / float64(qc.rowCount) * 100,
				})
			}
		}
	}

	if strings.Contains(colType, "INT") || strings.Contains(colType, "REAL") || strings.Contains(colType, "FLOAT") ||
		strings.Contains(colType, "DOUBLE") || strings.Contains(colType, "NUMERIC") || strings.Contains(colType, "DECIMAL") {
		rangeSQL := fmt.Sprintf(
			`SELECT MIN(%s) AS min_val, MAX(%s) AS max_val, AVG(%s) AS avg_val FROM %s WHERE %s IS NOT NULL`,
			quoteIdent(colName), quoteIdent(colName), quoteIdent(colName), quoteIdent(qc.table.Name), quoteIdent(colName),
		)
		if rangeResult, err := qc.adapter.ExecuteQuery(ctx, rangeSQL); err == nil && rangeResult.RowCount > 0 {
			row := rangeResult.Rows[0]
			stats.Range = &NumericRange{Min: toFloat64(row["min_val"]), Max: toFloat64(row["max_val"]), Avg: toFloat64(row["avg_val"])}
		}
	}

	return stats
}

func isTextType(colType string) bool {
	t := strings.ToUpper(colType)
	return strings.Contains(t, "TEXT") || strings.Contains(t, "VARCHAR") || strings.Contains(t, "CHAR") ||
		strings.Contains(t, "CLOB") || strings.Contains(t, "STRING")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func extractCount(result *adapter.QueryResult) int {
	if result == nil || result.RowCount == 0 || len(result.Rows) == 0 {
		return 0
	}
	for _, val := range result.Rows[0] {
		return toInt(val)
	}
	return 0
}

func toInt(val interface{}) int {
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case int32:
		return int(v)
	default:
		return 0
	}
}

func toFloat64(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
