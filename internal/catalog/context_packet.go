package catalog

import "time"

// TableSource records why a table was added to a schema context packet
// (spec §3 "Schema context packet").
type TableSource string

const (
	SourceRetrieval   TableSource = "retrieval"
	SourceFKExpansion TableSource = "fk_expansion"
	SourcePreSQLRecall TableSource = "pre_sql_recall"
)

// SelectedTable is a table descriptor tagged with retrieval provenance
// and its composite similarity at selection time.
type SelectedTable struct {
	Descriptor TableDescriptor
	Source     TableSource
	Score      float64
}

// RetrievalMetadata records how a context packet was assembled, for the
// trace payload.
type RetrievalMetadata struct {
	CosineThresholdUsed float64
	CountsBySource      map[TableSource]int
	HubCapsApplied      int
	Latency             time.Duration
}

// SchemaContextPacket is the per-query, immutable bundle handed to prompt
// construction and carried unchanged through every repair attempt (spec
// §3 "Schema context packet", invariant: "immutable across repair
// attempts").
type SchemaContextPacket struct {
	Tables   []SelectedTable
	Edges    []FKEdge // subset whose endpoints are both selected
	Modules  []string
	Metadata RetrievalMetadata
}

// TableNames returns the selected table names in packet order.
func (p *SchemaContextPacket) TableNames() []string {
	out := make([]string, len(p.Tables))
	for i, t := range p.Tables {
		out[i] = t.Descriptor.Name
	}
	return out
}

// Contains reports whether table is present in the packet's allow-list.
func (p *SchemaContextPacket) Contains(table string) bool {
	for _, t := range p.Tables {
		if t.Descriptor.Name == table {
			return true
		}
	}
	return false
}

// Descriptor returns the descriptor for a selected table, if present.
func (p *SchemaContextPacket) Descriptor(table string) (TableDescriptor, bool) {
	for _, t := range p.Tables {
		if t.Descriptor.Name == table {
			return t.Descriptor, true
		}
	}
	return TableDescriptor{}, false
}
