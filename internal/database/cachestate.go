package database

import (
	"database/sql"
	"strings"
)

// CacheState is one on-disk location claimed by an asset.
type CacheState struct {
	ID          int64
	AssetID     string
	FilePath    string
	MtimeNs     sql.NullInt64
	NeedsVerify bool
	IsMissing   bool
}

// CacheStateRow is the insert shape used by bulk ingest.
type CacheStateRow struct {
	AssetID     string
	FilePath    string
	MtimeNs     *int64
	NeedsVerify bool
}

// CacheStateWithAsset joins a cache state to its asset's identity columns.
type CacheStateWithAsset struct {
	CacheState
	AssetHash      sql.NullString
	AssetSizeBytes int64
}

// UpsertCacheState claims file_path for asset. On a path conflict the row
// is rewritten to point at the new asset; an update that would change
// nothing is skipped. Returns (created, updated).
func UpsertCacheState(db DBTX, assetID, filePath string, mtimeNs *int64, needsVerify bool) (bool, bool, error) {
	res, err := db.Exec(
		`INSERT INTO cache_states (asset_id, file_path, mtime_ns, needs_verify, is_missing)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(file_path) DO NOTHING`,
		assetID, filePath, mtimeNs, boolToInt(needsVerify),
	)
	if err != nil {
		return false, false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, false, err
	} else if n > 0 {
		return true, false, nil
	}

	res, err = db.Exec(
		`UPDATE cache_states
		 SET asset_id = ?, mtime_ns = ?, needs_verify = ?, is_missing = 0
		 WHERE file_path = ?
		   AND (asset_id != ? OR mtime_ns IS NOT ? OR needs_verify != ? OR is_missing = 1)`,
		assetID, mtimeNs, boolToInt(needsVerify), filePath,
		assetID, mtimeNs, boolToInt(needsVerify),
	)
	if err != nil {
		return false, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, false, err
	}
	return false, n > 0, nil
}

// BulkInsertCacheStatesIgnoreConflicts inserts cache state rows, skipping
// any file_path already claimed.
func BulkInsertCacheStatesIgnoreConflicts(db DBTX, rows []CacheStateRow) error {
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
			args = append(args, r.AssetID, r.FilePath, r.MtimeNs, boolToInt(r.NeedsVerify), 0)
		}
		_, err := db.Exec(
			`INSERT INTO cache_states (asset_id, file_path, mtime_ns, needs_verify, is_missing)
			 VALUES `+valueTuples(len(chunk), cols)+
				` ON CONFLICT(file_path) DO NOTHING`, args...)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetCacheStatesByPathsAndAssetIDs returns (file_path, asset_id) pairs for
// paths that landed on one of the given assets. Ingest uses it to find
// which of its freshly inserted rows won their path.
func GetCacheStatesByPathsAndAssetIDs(db DBTX, paths, assetIDs []string) (map[string]string, error) {
	winners := make(map[string]string)
	if len(paths) == 0 || len(assetIDs) == 0 {
		return winners, nil
	}
	// Both lists count against the bind ceiling, so chunk each at half.
	half := rowsPerStatement(1) / 2
	for _, pathChunk := range chunkStrings(paths, half) {
		for _, idChunk := range chunkStrings(assetIDs, half) {
			args := make([]any, 0, len(pathChunk)+len(idChunk))
			for _, p := range pathChunk {
				args = append(args, p)
			}
			for _, id := range idChunk {
				args = append(args, id)
			}
			rows, err := db.Query(
				`SELECT file_path, asset_id FROM cache_states
				 WHERE file_path IN (`+placeholders(len(pathChunk))+`)
				   AND asset_id IN (`+placeholders(len(idChunk))+`)`, args...)
			if err != nil {
				return nil, err
			}
			for rows.Next() {
				var p, id string
				if err := rows.Scan(&p, &id); err != nil {
					rows.Close()
					return nil, err
				}
				winners[p] = id
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return nil, err
			}
			rows.Close()
		}
	}
	return winners, nil
}

// RestoreCacheStatesByPaths clears the missing flag on the given paths.
func RestoreCacheStatesByPaths(db DBTX, paths []string) (int64, error) {
	var restored int64
	for _, chunk := range chunkStrings(paths, rowsPerStatement(1)) {
		args := make([]any, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}
		res, err := db.Exec(
			`UPDATE cache_states SET is_missing = 0
			 WHERE file_path IN (`+placeholders(len(chunk))+`) AND is_missing = 1`, args...)
		if err != nil {
			return restored, err
		}
		n, _ := res.RowsAffected()
		restored += n
	}
	return restored, nil
}

// MarkCacheStatesMissingOutsidePrefixes flags every active cache state whose
// path falls under none of the given directory prefixes.
func MarkCacheStatesMissingOutsidePrefixes(db DBTX, prefixes []string) (int64, error) {
	if len(prefixes) == 0 {
		return 0, nil
	}
	var sb strings.Builder
	args := make([]any, 0, len(prefixes))
	for i, p := range prefixes {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString(`file_path LIKE ? ESCAPE '\'`)
		args = append(args, prefixPattern(p))
	}
	res, err := db.Exec(
		`UPDATE cache_states SET is_missing = 1
		 WHERE is_missing = 0 AND NOT (`+sb.String()+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetCacheStatesForPrefixes lists active cache states under any of the
// prefixes, joined with the owning asset's hash and size. Rows come back
// ordered by asset_id so callers can group per asset.
func GetCacheStatesForPrefixes(db DBTX, prefixes []string) ([]CacheStateWithAsset, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	args := make([]any, 0, len(prefixes))
	for i, p := range prefixes {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString(`cs.file_path LIKE ? ESCAPE '\'`)
		args = append(args, prefixPattern(p))
	}
	rows, err := db.Query(
		`SELECT cs.id, cs.asset_id, cs.file_path, cs.mtime_ns, cs.needs_verify, cs.is_missing,
		        a.hash, a.size_bytes
		 FROM cache_states cs
		 JOIN assets a ON a.id = cs.asset_id
		 WHERE cs.is_missing = 0 AND (`+sb.String()+`)
		 ORDER BY cs.asset_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CacheStateWithAsset
	for rows.Next() {
		var cs CacheStateWithAsset
		var needsVerify, isMissing int
		if err := rows.Scan(&cs.ID, &cs.AssetID, &cs.FilePath, &cs.MtimeNs,
			&needsVerify, &isMissing, &cs.AssetHash, &cs.AssetSizeBytes); err != nil {
			return nil, err
		}
		cs.NeedsVerify = needsVerify != 0
		cs.IsMissing = isMissing != 0
		out = append(out, cs)
	}
	return out, rows.Err()
}

// BulkSetNeedsVerify toggles the verify flag on cache state rows.
func BulkSetNeedsVerify(db DBTX, ids []int64, needsVerify bool) error {
	for _, chunk := range chunkInt64s(ids, rowsPerStatement(1)) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, boolToInt(needsVerify))
		for _, id := range chunk {
			args = append(args, id)
		}
		_, err := db.Exec(
			`UPDATE cache_states SET needs_verify = ? WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteCacheStatesByIDs removes cache state rows outright.
func DeleteCacheStatesByIDs(db DBTX, ids []int64) (int64, error) {
	var deleted int64
	for _, chunk := range chunkInt64s(ids, rowsPerStatement(1)) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		res, err := db.Exec(
			`DELETE FROM cache_states WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return deleted, err
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

// ListCacheStatesByAssetID returns every cache state for an asset, active
// rows first and verified rows before suspect ones.
func ListCacheStatesByAssetID(db DBTX, assetID string) ([]CacheState, error) {
	rows, err := db.Query(
		`SELECT id, asset_id, file_path, mtime_ns, needs_verify, is_missing
		 FROM cache_states WHERE asset_id = ?
		 ORDER BY is_missing ASC, needs_verify ASC, id ASC`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CacheState
	for rows.Next() {
		var cs CacheState
		var needsVerify, isMissing int
		if err := rows.Scan(&cs.ID, &cs.AssetID, &cs.FilePath, &cs.MtimeNs, &needsVerify, &isMissing); err != nil {
			return nil, err
		}
		cs.NeedsVerify = needsVerify != 0
		cs.IsMissing = isMissing != 0
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ReassignCacheStates moves every cache state from one asset to another,
// dropping rows whose path the target already holds.
func ReassignCacheStates(db DBTX, fromAssetID, toAssetID string) error {
	_, err := db.Exec(
		`DELETE FROM cache_states
		 WHERE asset_id = ? AND file_path IN (
		   SELECT file_path FROM cache_states WHERE asset_id = ?
		 )`, fromAssetID, toAssetID)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`UPDATE cache_states SET asset_id = ? WHERE asset_id = ?`, toAssetID, fromAssetID)
	return err
}

// GetActiveCacheStateCountByAssetID counts non-missing rows for an asset.
func GetActiveCacheStateCountByAssetID(db DBTX, assetID string) (int, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM cache_states WHERE asset_id = ? AND is_missing = 0`, assetID,
	).Scan(&n)
	return n, err
}
