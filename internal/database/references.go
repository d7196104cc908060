package database

import (
	"database/sql"
	"errors"
	"strings"
)

// Reference is one owner-visible name for an asset.
type Reference struct {
	ID              string
	AssetID         string
	OwnerID         string
	Name            string
	PreviewID       sql.NullString
	UserMetadata    sql.NullString // JSON object text
	EnrichmentLevel int
	CreatedAt       int64
	UpdatedAt       int64
	LastAccessTime  int64
}

// ReferenceRow is the insert shape used by bulk ingest.
type ReferenceRow struct {
	ID              string
	AssetID         string
	OwnerID         string
	Name            string
	UserMetadata    *string
	EnrichmentLevel int
	CreatedAt       int64
}

// ReferenceWithAsset joins a reference to its asset's identity columns.
// Tags is filled by a follow-up query.
type ReferenceWithAsset struct {
	Reference
	AssetHash      sql.NullString
	AssetSizeBytes int64
	AssetMimeType  sql.NullString
	Tags           []string
}

// ListReferencesOptions drives the asset listing query.
type ListReferencesOptions struct {
	OwnerID      string
	IncludeTags  []string
	ExcludeTags  []string
	NameContains string
	// MetadataSQL/MetadataArgs come from BuildMetadataFilter.
	MetadataSQL  string
	MetadataArgs []any
	SortBy       string
	SortDesc     bool
	Limit        int
	Offset       int
}

var sortColumns = map[string]string{
	"name":             "r.name",
	"created_at":       "r.created_at",
	"updated_at":       "r.updated_at",
	"last_access_time": "r.last_access_time",
	"size":             "a.size_bytes",
}

// GetReferenceByID fetches a reference visible to owner, or nil. Rows owned
// by other users stay invisible so callers can treat them as absent.
func GetReferenceByID(db DBTX, id, ownerID string) (*ReferenceWithAsset, error) {
	r := &ReferenceWithAsset{}
	err := db.QueryRow(
		`SELECT r.id, r.asset_id, r.owner_id, r.name, r.preview_id, r.user_metadata,
		        r.enrichment_level, r.created_at, r.updated_at, r.last_access_time,
		        a.hash, a.size_bytes, a.mime_type
		 FROM asset_references r
		 JOIN assets a ON a.id = r.asset_id
		 WHERE r.id = ? AND (r.owner_id = '' OR r.owner_id = ?)`, id, ownerID,
	).Scan(&r.ID, &r.AssetID, &r.OwnerID, &r.Name, &r.PreviewID, &r.UserMetadata,
		&r.EnrichmentLevel, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessTime,
		&r.AssetHash, &r.AssetSizeBytes, &r.AssetMimeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// InsertReference creates a reference row. A (asset, owner, name) collision
// returns the existing row instead, with created = false.
func InsertReference(db DBTX, row ReferenceRow) (*Reference, bool, error) {
	res, err := db.Exec(
		`INSERT INTO asset_references
		   (id, asset_id, owner_id, name, user_metadata, enrichment_level,
		    created_at, updated_at, last_access_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(asset_id, owner_id, name) DO NOTHING`,
		row.ID, row.AssetID, row.OwnerID, row.Name, row.UserMetadata,
		row.EnrichmentLevel, row.CreatedAt, row.CreatedAt, row.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	r := &Reference{}
	err = db.QueryRow(
		`SELECT id, asset_id, owner_id, name, preview_id, user_metadata,
		        enrichment_level, created_at, updated_at, last_access_time
		 FROM asset_references WHERE asset_id = ? AND owner_id = ? AND name = ?`,
		row.AssetID, row.OwnerID, row.Name,
	).Scan(&r.ID, &r.AssetID, &r.OwnerID, &r.Name, &r.PreviewID, &r.UserMetadata,
		&r.EnrichmentLevel, &r.CreatedAt, &r.UpdatedAt, &r.LastAccessTime)
	if err != nil {
		return nil, false, err
	}
	return r, n > 0, nil
}

// BulkInsertReferencesIgnoreConflicts inserts reference rows, skipping any
// (asset, owner, name) already taken.
func BulkInsertReferencesIgnoreConflicts(db DBTX, rows []ReferenceRow) error {
	if len(rows) == 0 {
		return nil
	}
	const cols = 9
	per := rowsPerStatement(cols)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*cols)
		for _, r := range chunk {
			args = append(args, r.ID, r.AssetID, r.OwnerID, r.Name, r.UserMetadata,
				r.EnrichmentLevel, r.CreatedAt, r.CreatedAt, r.CreatedAt)
		}
		_, err := db.Exec(
			`INSERT INTO asset_references
			   (id, asset_id, owner_id, name, user_metadata, enrichment_level,
			    created_at, updated_at, last_access_time)
			 VALUES `+valueTuples(len(chunk), cols)+
				` ON CONFLICT(asset_id, owner_id, name) DO NOTHING`, args...)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetReferenceIDsByIDs returns which of the candidate IDs actually exist.
// Ingest uses it to learn which bulk-inserted rows survived the conflict
// clause before attaching tags and metadata.
func GetReferenceIDsByIDs(db DBTX, ids []string) (map[string]bool, error) {
	landed := make(map[string]bool, len(ids))
	for _, chunk := range chunkStrings(ids, rowsPerStatement(1)) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := db.Query(
			`SELECT id FROM asset_references WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			landed[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return landed, nil
}

// ListReferencesPage returns one page plus the unfiltered-total for the same
// predicate set.
func ListReferencesPage(db DBTX, opts ListReferencesOptions) ([]ReferenceWithAsset, int, error) {
	where, args := buildReferenceFilter(opts)

	var total int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM asset_references r JOIN assets a ON a.id = r.asset_id WHERE `+where,
		args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[opts.SortBy]
	if !ok {
		col = "r.created_at"
	}
	dir := "ASC"
	if opts.SortDesc {
		dir = "DESC"
	}

	pageArgs := append(append([]any{}, args...), opts.Limit, opts.Offset)
	rows, err := db.Query(
		`SELECT r.id, r.asset_id, r.owner_id, r.name, r.preview_id, r.user_metadata,
		        r.enrichment_level, r.created_at, r.updated_at, r.last_access_time,
		        a.hash, a.size_bytes, a.mime_type
		 FROM asset_references r
		 JOIN assets a ON a.id = r.asset_id
		 WHERE `+where+`
		 ORDER BY `+col+` `+dir+`, r.id ASC
		 LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ReferenceWithAsset
	for rows.Next() {
		var r ReferenceWithAsset
		if err := rows.Scan(&r.ID, &r.AssetID, &r.OwnerID, &r.Name, &r.PreviewID,
			&r.UserMetadata, &r.EnrichmentLevel, &r.CreatedAt, &r.UpdatedAt,
			&r.LastAccessTime, &r.AssetHash, &r.AssetSizeBytes, &r.AssetMimeType); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := attachTags(db, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func buildReferenceFilter(opts ListReferencesOptions) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString(`(r.owner_id = '' OR r.owner_id = ?)`)
	args = append(args, opts.OwnerID)

	for _, tag := range opts.IncludeTags {
		sb.WriteString(` AND EXISTS (SELECT 1 FROM reference_tags rt WHERE rt.reference_id = r.id AND rt.tag_name = ?)`)
		args = append(args, strings.ToLower(tag))
	}
	for _, tag := range opts.ExcludeTags {
		sb.WriteString(` AND NOT EXISTS (SELECT 1 FROM reference_tags rt WHERE rt.reference_id = r.id AND rt.tag_name = ?)`)
		args = append(args, strings.ToLower(tag))
	}
	if opts.NameContains != "" {
		sb.WriteString(` AND r.name LIKE ? ESCAPE '\' COLLATE NOCASE`)
		args = append(args, "%"+EscapeLike(opts.NameContains)+"%")
	}
	if opts.MetadataSQL != "" {
		sb.WriteString(` AND ` + opts.MetadataSQL)
		args = append(args, opts.MetadataArgs...)
	}
	return sb.String(), args
}

func attachTags(db DBTX, refs []ReferenceWithAsset) error {
	if len(refs) == 0 {
		return nil
	}
	byID := make(map[string]*ReferenceWithAsset, len(refs))
	ids := make([]string, len(refs))
	for i := range refs {
		byID[refs[i].ID] = &refs[i]
		ids[i] = refs[i].ID
	}
	for _, chunk := range chunkStrings(ids, rowsPerStatement(1)) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := db.Query(
			`SELECT reference_id, tag_name FROM reference_tags
			 WHERE reference_id IN (`+placeholders(len(chunk))+`)
			 ORDER BY tag_name`, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var refID, tag string
			if err := rows.Scan(&refID, &tag); err != nil {
				rows.Close()
				return err
			}
			if r, ok := byID[refID]; ok {
				r.Tags = append(r.Tags, tag)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// UpdateReferenceName renames a reference and bumps updated_at.
func UpdateReferenceName(db DBTX, id, ownerID, name string) (bool, error) {
	res, err := db.Exec(
		`UPDATE asset_references SET name = ?, updated_at = ?
		 WHERE id = ? AND (owner_id = '' OR owner_id = ?)`,
		name, NowNanos(), id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetReferenceUserMetadata stores the raw JSON object and bumps updated_at.
// The projection rewrite happens in the same transaction via
// ReplaceMetadataProjection.
func SetReferenceUserMetadata(db DBTX, id, ownerID string, metadataJSON *string) (bool, error) {
	res, err := db.Exec(
		`UPDATE asset_references SET user_metadata = ?, updated_at = ?
		 WHERE id = ? AND (owner_id = '' OR owner_id = ?)`,
		metadataJSON, NowNanos(), id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetReferenceUserMetadataUnscoped is the ownerless variant used by the
// enrichment pass, which operates on rows regardless of owner.
func SetReferenceUserMetadataUnscoped(db DBTX, id string, metadataJSON *string) error {
	_, err := db.Exec(
		`UPDATE asset_references SET user_metadata = ?, updated_at = ? WHERE id = ?`,
		metadataJSON, NowNanos(), id)
	return err
}

// SetReferencePreview records the preview asset for a reference.
func SetReferencePreview(db DBTX, id, ownerID string, previewID *string) (bool, error) {
	res, err := db.Exec(
		`UPDATE asset_references SET preview_id = ?, updated_at = ?
		 WHERE id = ? AND (owner_id = '' OR owner_id = ?)`,
		previewID, NowNanos(), id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetReferenceEnrichmentLevel raises a reference's enrichment level. Levels
// never go backwards.
func SetReferenceEnrichmentLevel(db DBTX, id string, level int) error {
	_, err := db.Exec(
		`UPDATE asset_references SET enrichment_level = ? WHERE id = ? AND enrichment_level < ?`,
		level, id, level)
	return err
}

// TouchReferenceAccessTime bumps last_access_time, but never backwards.
func TouchReferenceAccessTime(db DBTX, id string, accessTime int64) error {
	_, err := db.Exec(
		`UPDATE asset_references SET last_access_time = ?
		 WHERE id = ? AND last_access_time < ?`, accessTime, id, accessTime)
	return err
}

// DeleteReferenceByID removes a reference visible to owner. Returns the
// deleted row's asset_id so the caller can garbage-collect an orphan asset.
func DeleteReferenceByID(db DBTX, id, ownerID string) (string, bool, error) {
	var assetID string
	err := db.QueryRow(
		`SELECT asset_id FROM asset_references
		 WHERE id = ? AND (owner_id = '' OR owner_id = ?)`, id, ownerID,
	).Scan(&assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	res, err := db.Exec(
		`DELETE FROM asset_references WHERE id = ? AND (owner_id = '' OR owner_id = ?)`, id, ownerID)
	if err != nil {
		return "", false, err
	}
	n, err := res.RowsAffected()
	return assetID, n > 0, err
}

// ReferenceExistsForAsset reports whether the asset still has any reference.
func ReferenceExistsForAsset(db DBTX, assetID string) (bool, error) {
	var one int
	err := db.QueryRow(
		`SELECT 1 FROM asset_references WHERE asset_id = ? LIMIT 1`, assetID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetReferencesBelowEnrichment returns reference IDs on an asset below the
// target enrichment level.
func GetReferencesBelowEnrichment(db DBTX, assetID string, level int) ([]string, error) {
	rows, err := db.Query(
		`SELECT id FROM asset_references WHERE asset_id = ? AND enrichment_level < ?`,
		assetID, level)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EnrichmentCandidate is one reference the enrichment pass still owes work.
// FilePath is the asset's best active cache state, empty when none survive.
type EnrichmentCandidate struct {
	ReferenceID    string
	AssetID        string
	AssetHash      sql.NullString
	AssetSizeBytes int64
	FilePath       string
	UserMetadata   sql.NullString
}

// GetEnrichmentCandidates returns references at or below maxLevel whose
// asset has an active cache state under one of the prefixes.
func GetEnrichmentCandidates(db DBTX, prefixes []string, maxLevel, limit int) ([]EnrichmentCandidate, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	var prefixSQL strings.Builder
	var args []any
	args = append(args, maxLevel)
	for i, p := range prefixes {
		if i > 0 {
			prefixSQL.WriteString(" OR ")
		}
		prefixSQL.WriteString(`cs.file_path LIKE ? ESCAPE '\'`)
		args = append(args, prefixPattern(p))
	}
	args = append(args, limit)

	rows, err := db.Query(
		`SELECT r.id, r.asset_id, a.hash, a.size_bytes, r.user_metadata,
		        COALESCE((SELECT cs2.file_path FROM cache_states cs2
		                  WHERE cs2.asset_id = a.id AND cs2.is_missing = 0
		                  ORDER BY cs2.needs_verify ASC, cs2.id ASC LIMIT 1), '')
		 FROM asset_references r
		 JOIN assets a ON a.id = r.asset_id
		 WHERE r.enrichment_level <= ?
		   AND EXISTS (SELECT 1 FROM cache_states cs
		               WHERE cs.asset_id = a.id AND cs.is_missing = 0
		                 AND (`+prefixSQL.String()+`))
		 ORDER BY r.created_at ASC, r.id ASC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnrichmentCandidate
	for rows.Next() {
		var c EnrichmentCandidate
		if err := rows.Scan(&c.ReferenceID, &c.AssetID, &c.AssetHash,
			&c.AssetSizeBytes, &c.UserMetadata, &c.FilePath); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReassignReferences moves references from one asset to another, dropping
// rows that would collide with an existing (owner, name) on the target.
func ReassignReferences(db DBTX, fromAssetID, toAssetID string) error {
	_, err := db.Exec(
		`DELETE FROM asset_references
		 WHERE asset_id = ? AND EXISTS (
		   SELECT 1 FROM asset_references t
		   WHERE t.asset_id = ? AND t.owner_id = asset_references.owner_id
		     AND t.name = asset_references.name
		 )`, fromAssetID, toAssetID)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`UPDATE asset_references SET asset_id = ? WHERE asset_id = ?`, toAssetID, fromAssetID)
	return err
}
