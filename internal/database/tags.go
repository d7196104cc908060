package database

import (
	"strings"

	"assetbank/internal/constants"
)

// TagUsage is one row of the tag listing.
type TagUsage struct {
	Name  string
	Type  string
	Count int
}

// ReferenceTagRow is the insert shape used by bulk ingest.
type ReferenceTagRow struct {
	ReferenceID string
	TagName     string
	Origin      string
	AddedAt     int64
}

// NormalizeTag lowercases and trims a tag name.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// EnsureTagsExist inserts any missing tag names with the given type.
func EnsureTagsExist(db DBTX, names []string, tagType string) error {
	if len(names) == 0 {
		return nil
	}
	const cols = 2
	per := rowsPerStatement(cols)
	for _, chunk := range chunkStrings(names, per) {
		args := make([]any, 0, len(chunk)*cols)
		for _, n := range chunk {
			args = append(args, NormalizeTag(n), tagType)
		}
		_, err := db.Exec(
			`INSERT INTO tags (name, tag_type) VALUES `+valueTuples(len(chunk), cols)+
				` ON CONFLICT(name) DO NOTHING`, args...)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetReferenceTags returns a reference's tag names, sorted.
func GetReferenceTags(db DBTX, referenceID string) ([]string, error) {
	rows, err := db.Query(
		`SELECT tag_name FROM reference_tags WHERE reference_id = ? ORDER BY tag_name`, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// AddTagsToReference attaches tags, reporting which were new and which the
// reference already had.
func AddTagsToReference(db DBTX, referenceID string, names []string, origin string) (added, alreadyPresent []string, err error) {
	if err := EnsureTagsExist(db, names, constants.TagTypeUser); err != nil {
		return nil, nil, err
	}
	now := NowNanos()
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := NormalizeTag(raw)
		if name == "" {
			continue
		}
		// A repeat within the same request counts as already present.
		if seen[name] {
			alreadyPresent = append(alreadyPresent, name)
			continue
		}
		seen[name] = true
		res, err := db.Exec(
			`INSERT INTO reference_tags (reference_id, tag_name, origin, added_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(reference_id, tag_name) DO NOTHING`,
			referenceID, name, origin, now)
		if err != nil {
			return nil, nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, nil, err
		} else if n > 0 {
			added = append(added, name)
		} else {
			alreadyPresent = append(alreadyPresent, name)
		}
	}
	return added, alreadyPresent, nil
}

// RemoveTagsFromReference detaches tags, reporting which were removed and
// which were never there.
func RemoveTagsFromReference(db DBTX, referenceID string, names []string) (removed, notPresent []string, err error) {
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := NormalizeTag(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		res, err := db.Exec(
			`DELETE FROM reference_tags WHERE reference_id = ? AND tag_name = ?`,
			referenceID, name)
		if err != nil {
			return nil, nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, nil, err
		} else if n > 0 {
			removed = append(removed, name)
		} else {
			notPresent = append(notPresent, name)
		}
	}
	return removed, notPresent, nil
}

// SetReferenceTags replaces the full tag set on a reference.
func SetReferenceTags(db DBTX, referenceID string, names []string, origin string) error {
	if _, err := db.Exec(`DELETE FROM reference_tags WHERE reference_id = ?`, referenceID); err != nil {
		return err
	}
	_, _, err := AddTagsToReference(db, referenceID, names, origin)
	return err
}

// AddMissingTagToAssetReferences marks every reference on the asset with the
// missing tag.
func AddMissingTagToAssetReferences(db DBTX, assetID string) error {
	if err := EnsureTagsExist(db, []string{constants.MissingTag}, constants.TagTypeUser); err != nil {
		return err
	}
	_, err := db.Exec(
		`INSERT INTO reference_tags (reference_id, tag_name, origin, added_at)
		 SELECT id, ?, ?, ? FROM asset_references WHERE asset_id = ?
		 ON CONFLICT(reference_id, tag_name) DO NOTHING`,
		constants.MissingTag, constants.TagOriginAuto, NowNanos(), assetID)
	return err
}

// RemoveMissingTagFromAssetReferences clears the missing tag from every
// reference on the asset.
func RemoveMissingTagFromAssetReferences(db DBTX, assetID string) error {
	_, err := db.Exec(
		`DELETE FROM reference_tags
		 WHERE tag_name = ? AND reference_id IN (
		   SELECT id FROM asset_references WHERE asset_id = ?
		 )`, constants.MissingTag, assetID)
	return err
}

// ListTagsWithUsage returns tags visible to owner with their usage counts.
// Order is count_desc or name_asc; prefix narrows by name; includeZero false
// drops tags no visible reference carries.
func ListTagsWithUsage(db DBTX, ownerID, prefix, order string, includeZero bool, limit, offset int) ([]TagUsage, int, error) {
	const usageCount = `(SELECT COUNT(*) FROM reference_tags rt
		         JOIN asset_references r ON r.id = rt.reference_id
		         WHERE rt.tag_name = t.name AND (r.owner_id = '' OR r.owner_id = ?))`

	var where strings.Builder
	var args []any
	where.WriteString(`1=1`)
	if prefix != "" {
		where.WriteString(` AND t.name LIKE ? ESCAPE '\'`)
		args = append(args, EscapeLike(strings.ToLower(prefix))+"%")
	}
	if !includeZero {
		where.WriteString(` AND ` + usageCount + ` > 0`)
		args = append(args, ownerID)
	}

	var total int
	err := db.QueryRow(`SELECT COUNT(*) FROM tags t WHERE `+where.String(), args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	orderBy := "cnt DESC, t.name ASC"
	if order == "name_asc" {
		orderBy = "t.name ASC"
	}
	pageArgs := append([]any{ownerID}, args...)
	pageArgs = append(pageArgs, limit, offset)
	rows, err := db.Query(
		`SELECT t.name, t.tag_type, `+usageCount+` AS cnt
		 FROM tags t
		 WHERE `+where.String()+`
		 ORDER BY `+orderBy+`
		 LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []TagUsage
	for rows.Next() {
		var t TagUsage
		if err := rows.Scan(&t.Name, &t.Type, &t.Count); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// BulkInsertReferenceTags attaches tag rows, skipping duplicates.
func BulkInsertReferenceTags(db DBTX, rows []ReferenceTagRow) error {
	if len(rows) == 0 {
		return nil
	}
	const cols = 4
	per := rowsPerStatement(cols)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*cols)
		for _, r := range chunk {
			args = append(args, r.ReferenceID, r.TagName, r.Origin, r.AddedAt)
		}
		_, err := db.Exec(
			`INSERT INTO reference_tags (reference_id, tag_name, origin, added_at)
			 VALUES `+valueTuples(len(chunk), cols)+
				` ON CONFLICT(reference_id, tag_name) DO NOTHING`, args...)
		if err != nil {
			return err
		}
	}
	return nil
}
