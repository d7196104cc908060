package database

import (
	"sort"
	"strings"

	"assetbank/internal/metadata"
)

// ReplaceMetadataProjection wipes and rewrites the typed projection rows for
// a reference. Callers run it in the same transaction as the raw JSON update
// so the two can never drift.
func ReplaceMetadataProjection(db DBTX, referenceID string, rows []metadata.Row) error {
	if _, err := db.Exec(`DELETE FROM reference_meta WHERE reference_id = ?`, referenceID); err != nil {
		return err
	}
	metaRows := make([]ReferenceMetaRow, 0, len(rows))
	for _, r := range rows {
		metaRows = append(metaRows, MetaRowFor(referenceID, r))
	}
	return BulkInsertReferenceMeta(db, metaRows)
}

// ReferenceMetaRow is the insert shape for the projection table.
type ReferenceMetaRow struct {
	ReferenceID string
	Key         string
	Ordinal     int
	ValStr      *string
	ValNum      *string // numeric literal text, stored under NUMERIC affinity
	ValBool     *int
	ValJSON     *string
}

// MetaRowFor converts a tagged metadata value into its projection row.
func MetaRowFor(referenceID string, r metadata.Row) ReferenceMetaRow {
	out := ReferenceMetaRow{ReferenceID: referenceID, Key: r.Key, Ordinal: r.Ordinal}
	switch r.Value.Kind {
	case metadata.KindBool:
		b := 0
		if r.Value.Bool {
			b = 1
		}
		out.ValBool = &b
	case metadata.KindNum:
		n := r.Value.Num
		out.ValNum = &n
	case metadata.KindStr:
		s := r.Value.Str
		out.ValStr = &s
	case metadata.KindJSON:
		j := string(r.Value.JSON)
		out.ValJSON = &j
	}
	return out
}

// BulkInsertReferenceMeta inserts projection rows, chunked under the bind
// ceiling. Bulk ingest re-inserts the same (reference, key, ordinal) on
// retried batches, so conflicts are ignored.
func BulkInsertReferenceMeta(db DBTX, rows []ReferenceMetaRow) error {
	if len(rows) == 0 {
		return nil
	}
	const cols = 7
	per := rowsPerStatement(cols)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*cols)
		for _, r := range chunk {
			args = append(args, r.ReferenceID, r.Key, r.Ordinal, r.ValStr, r.ValNum, r.ValBool, r.ValJSON)
		}
		_, err := db.Exec(
			`INSERT INTO reference_meta (reference_id, key, ordinal, val_str, val_num, val_bool, val_json)
			 VALUES `+valueTuples(len(chunk), cols)+
				` ON CONFLICT(reference_id, key, ordinal) DO NOTHING`, args...)
		if err != nil {
			return err
		}
	}
	return nil
}

// BuildMetadataFilter renders a metadata predicate for the listing query.
// Keys AND together; a key's candidate values OR together. A null candidate
// matches both an explicit null and the key being absent entirely.
func BuildMetadataFilter(filters map[string][]metadata.Value) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	var args []any
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString("(")
		for j, v := range filters[key] {
			if j > 0 {
				sb.WriteString(" OR ")
			}
			switch v.Kind {
			case metadata.KindNull:
				sb.WriteString(`(NOT EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = ?)` +
					` OR EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = ?` +
					` AND m.val_str IS NULL AND m.val_num IS NULL AND m.val_bool IS NULL AND m.val_json IS NULL))`)
				args = append(args, key, key)
			case metadata.KindBool:
				sb.WriteString(`EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = ? AND m.val_bool = ?)`)
				b := 0
				if v.Bool {
					b = 1
				}
				args = append(args, key, b)
			case metadata.KindNum:
				sb.WriteString(`EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = ? AND m.val_num = ?)`)
				args = append(args, key, v.Num)
			case metadata.KindStr:
				sb.WriteString(`EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = ? AND m.val_str = ?)`)
				args = append(args, key, v.Str)
			case metadata.KindJSON:
				sb.WriteString(`EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = ? AND m.val_json = ?)`)
				args = append(args, key, string(v.JSON))
			}
		}
		sb.WriteString(")")
	}
	return sb.String(), args
}
