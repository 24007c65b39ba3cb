package catalog

import (
	"fmt"
	"strings"
)

// RenderMermaidER renders a schema context packet as a Mermaid ER
// diagram, for the trace payload only — it is never consulted by the
// generator. Adapted from the teacher's whole-database
// GenerateMermaidER to operate over a single query's selected tables and
// its edge subset instead of the entire catalog.
func RenderMermaidER(packet *SchemaContextPacket) string {
	var sb strings.Builder
	sb.WriteString("erDiagram\n")

	seen := make(map[string]bool)
	for _, e := range packet.Edges {
		key := fmt.Sprintf("%s_%s_%s", e.ToTable, e.FromTable, e.FromColumn)
		if seen[key] {
			continue
		}
		seen[key] = true
		sb.WriteString(fmt.Sprintf("    %s ||--o{ %s : \"%s\"\n",
			strings.ToUpper(e.ToTable), strings.ToUpper(e.FromTable), e.FromColumn))
	}
	sb.WriteString("\n")

	for _, st := range packet.Tables {
		t := st.Descriptor
		sb.WriteString(fmt.Sprintf("    %s {\n", strings.ToUpper(t.Name)))
		for _, col := range t.Columns {
			var tags []string
			if col.IsPrimaryKey {
				tags = append(tags, "PK")
			}
			if col.IsForeignKey {
				tags = append(tags, "FK")
			}
			tagStr := ""
			if len(tags) > 0 {
				tagStr = " " + strings.Join(tags, ",")
			}
			sb.WriteString(fmt.Sprintf("        %s %s%s\n", simplifyType(col.Type), col.Name, tagStr))
		}
		sb.WriteString("    }\n")
	}

	return sb.String()
}

// simplifyType collapses a SQL type name to the handful of Mermaid-safe
// base types, unchanged from the teacher's rule set.
func simplifyType(fullType string) string {
	t := strings.ToLower(fullType)
	switch {
	case strings.Contains(t, "int"):
		return "int"
	case strings.Contains(t, "varchar"), strings.Contains(t, "char"):
		return "string"
	case strings.Contains(t, "text"):
		return "text"
	case strings.Contains(t, "real"), strings.Contains(t, "float"), strings.Contains(t, "double"), strings.Contains(t, "numeric"):
		return "float"
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return "datetime"
	case strings.Contains(t, "bool"):
		return "boolean"
	default:
		return "string"
	}
}
