package catalog

import "encoding/json"

// columnRow is the JSON-on-the-wire shape for TableDescriptor.Columns,
// stored as a jsonb column so the compact listing is regenerable from
// introspection without a join per column (spec §3 invariant: "the
// compact listing ... must be regenerable from the catalog's
// introspection output").
type columnRow struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	IsPrimaryKey bool   `json:"pk,omitempty"`
	IsForeignKey bool   `json:"fk,omitempty"`
	FKTarget     string `json:"fk_target,omitempty"`
}

func decodeColumns(raw []byte) ([]ColumnDescriptor, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []columnRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]ColumnDescriptor, len(rows))
	for i, r := range rows {
		out[i] = ColumnDescriptor{
			Name:         r.Name,
			Type:         r.Type,
			IsPrimaryKey: r.IsPrimaryKey,
			IsForeignKey: r.IsForeignKey,
			FKTarget:     r.FKTarget,
		}
	}
	return out, nil
}

func encodeColumns(cols []ColumnDescriptor) ([]byte, error) {
	rows := make([]columnRow, len(cols))
	for i, c := range cols {
		rows[i] = columnRow{
			Name:         c.Name,
			Type:         c.Type,
			IsPrimaryKey: c.IsPrimaryKey,
			IsForeignKey: c.IsForeignKey,
			FKTarget:     c.FKTarget,
		}
	}
	return json.Marshal(rows)
}
