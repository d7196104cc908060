package database

import (
	"database/sql"
	"errors"
)

// Asset is one content identity row.
type Asset struct {
	ID        string
	Hash      sql.NullString // canonical form, NULL for stubs
	SizeBytes int64
	MimeType  sql.NullString
	CreatedAt int64
}

// AssetRow is the insert shape used by bulk ingest.
type AssetRow struct {
	ID        string
	Hash      *string
	SizeBytes int64
	MimeType  *string
	CreatedAt int64
}

// GetAssetByID fetches an asset, or nil when absent.
func GetAssetByID(db DBTX, id string) (*Asset, error) {
	a := &Asset{}
	err := db.QueryRow(
		`SELECT id, hash, size_bytes, mime_type, created_at FROM assets WHERE id = ?`, id,
	).Scan(&a.ID, &a.Hash, &a.SizeBytes, &a.MimeType, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAssetByHash fetches the asset carrying a canonical hash, or nil.
func GetAssetByHash(db DBTX, hash string) (*Asset, error) {
	a := &Asset{}
	err := db.QueryRow(
		`SELECT id, hash, size_bytes, mime_type, created_at FROM assets WHERE hash = ?`, hash,
	).Scan(&a.ID, &a.Hash, &a.SizeBytes, &a.MimeType, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AssetExistsByHash reports whether any asset carries the canonical hash.
func AssetExistsByHash(db DBTX, hash string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM assets WHERE hash = ? LIMIT 1`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertAsset inserts an asset for hash or refreshes size/mime on the
// existing row. Returns the asset and (created, updated).
func UpsertAsset(db DBTX, id, hash string, sizeBytes int64, mimeType *string) (*Asset, bool, bool, error) {
	res, err := db.Exec(
		`INSERT INTO assets (id, hash, size_bytes, mime_type, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(hash) WHERE hash IS NOT NULL DO NOTHING`,
		id, hash, sizeBytes, mimeType, NowNanos(),
	)
	if err != nil {
		return nil, false, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, false, err
	}
	if n > 0 {
		a, err := GetAssetByHash(db, hash)
		return a, true, false, err
	}

	res, err = db.Exec(
		`UPDATE assets SET size_bytes = ?, mime_type = COALESCE(?, mime_type)
		 WHERE hash = ? AND (size_bytes != ? OR (? IS NOT NULL AND mime_type IS NOT ?))`,
		sizeBytes, mimeType, hash, sizeBytes, mimeType, mimeType,
	)
	if err != nil {
		return nil, false, false, err
	}
	n, _ = res.RowsAffected()
	a, err := GetAssetByHash(db, hash)
	return a, false, n > 0, err
}

// SetAssetHash promotes a stub to a hashed asset.
func SetAssetHash(db DBTX, assetID, hash string, sizeBytes int64) error {
	_, err := db.Exec(
		`UPDATE assets SET hash = ?, size_bytes = ? WHERE id = ?`, hash, sizeBytes, assetID,
	)
	return err
}

// BulkInsertAssets inserts asset rows, chunked under the bind-param ceiling.
func BulkInsertAssets(db DBTX, rows []AssetRow) error {
	if len(rows) == 0 {
		return nil
	}
	const cols = 5
	per := rowsPerStatement(cols)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*cols)
		for _, r := range chunk {
			args = append(args, r.ID, r.Hash, r.SizeBytes, r.MimeType, r.CreatedAt)
		}
		_, err := db.Exec(
			`INSERT INTO assets (id, hash, size_bytes, mime_type, created_at) VALUES `+
				valueTuples(len(chunk), cols), args...)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteAssetsByIDs deletes assets and everything hanging off them.
func DeleteAssetsByIDs(db DBTX, assetIDs []string) (int64, error) {
	if len(assetIDs) == 0 {
		return 0, nil
	}
	var deleted int64
	for _, chunk := range chunkStrings(assetIDs, rowsPerStatement(1)) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		ph := placeholders(len(chunk))
		if _, err := db.Exec(`DELETE FROM asset_references WHERE asset_id IN (`+ph+`)`, args...); err != nil {
			return deleted, err
		}
		if _, err := db.Exec(`DELETE FROM cache_states WHERE asset_id IN (`+ph+`)`, args...); err != nil {
			return deleted, err
		}
		res, err := db.Exec(`DELETE FROM assets WHERE id IN (`+ph+`)`, args...)
		if err != nil {
			return deleted, err
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

// GetUnreferencedUnhashedAssetIDs returns stub assets whose every cache state
// is missing (or that have none at all).
func GetUnreferencedUnhashedAssetIDs(db DBTX) ([]string, error) {
	rows, err := db.Query(
		`SELECT a.id FROM assets a
		 WHERE a.hash IS NULL
		   AND NOT EXISTS (
		     SELECT 1 FROM cache_states cs
		     WHERE cs.asset_id = a.id AND cs.is_missing = 0
		   )`)
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

// DeleteOrphanedStubAsset deletes a stub asset and its references.
func DeleteOrphanedStubAsset(db DBTX, assetID string) (bool, error) {
	n, err := DeleteAssetsByIDs(db, []string{assetID})
	return n > 0, err
}
