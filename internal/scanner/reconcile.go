package scanner

import (
	"database/sql"
	"os"
	"path/filepath"

	"assetbank/internal/config"
	"assetbank/internal/database"
	"assetbank/internal/logger"
)

// Reconciler cross-checks stored cache states against the filesystem for
// one root at a time.
type Reconciler struct {
	DB    *sql.DB
	Roots *config.Roots
	Log   *logger.Logger
}

type stateInfo struct {
	id          int64
	filePath    string
	exists      bool
	fastOK      bool
	needsVerify bool
}

type assetAcc struct {
	hash   sql.NullString
	sizeDB int64
	states []stateInfo
}

// SyncRoot reconciles one root inside its own transaction and returns the
// surviving absolute paths. Failures are logged and yield an empty set so a
// broken root never aborts the whole scan.
func (rc *Reconciler) SyncRoot(root config.RootType) map[string]bool {
	survivors := make(map[string]bool)
	err := database.WithTx(rc.DB, func(tx *sql.Tx) error {
		s, err := rc.syncRoot(tx, root)
		if err != nil {
			return err
		}
		survivors = s
		return nil
	})
	if err != nil {
		rc.Log.Error("reconcile failed for root %s: %v", root, err)
		return make(map[string]bool)
	}
	return survivors
}

func (rc *Reconciler) syncRoot(tx database.DBTX, root config.RootType) (map[string]bool, error) {
	survivors := make(map[string]bool)
	prefixes := rc.Roots.PrefixesFor(root)
	if len(prefixes) == 0 {
		return survivors, nil
	}
	rows, err := database.GetCacheStatesForPrefixes(tx, prefixes)
	if err != nil {
		return nil, err
	}

	byAsset := make(map[string]*assetAcc)
	order := make([]string, 0)
	for _, row := range rows {
		acc := byAsset[row.AssetID]
		if acc == nil {
			acc = &assetAcc{hash: row.AssetHash, sizeDB: row.AssetSizeBytes}
			byAsset[row.AssetID] = acc
			order = append(order, row.AssetID)
		}
		exists, fastOK := statMatches(row.FilePath, row.MtimeNs, acc.sizeDB)
		acc.states = append(acc.states, stateInfo{
			id:          row.ID,
			filePath:    row.FilePath,
			exists:      exists,
			fastOK:      fastOK,
			needsVerify: row.NeedsVerify,
		})
	}

	var toSetVerify, toClearVerify, staleIDs []int64
	for _, assetID := range order {
		acc := byAsset[assetID]
		anyFastOK := false
		allMissing := true
		for _, s := range acc.states {
			if s.fastOK {
				anyFastOK = true
			}
			if s.exists {
				allMissing = false
			}
		}

		for _, s := range acc.states {
			if !s.exists {
				continue
			}
			if s.fastOK && s.needsVerify {
				toClearVerify = append(toClearVerify, s.id)
			}
			if !s.fastOK && !s.needsVerify {
				toSetVerify = append(toSetVerify, s.id)
			}
		}

		if !acc.hash.Valid {
			if len(acc.states) > 0 && allMissing {
				if _, err := database.DeleteOrphanedStubAsset(tx, assetID); err != nil {
					return nil, err
				}
				continue
			}
			addSurvivors(survivors, acc.states)
			continue
		}

		if anyFastOK {
			for _, s := range acc.states {
				if !s.exists {
					staleIDs = append(staleIDs, s.id)
				}
			}
			if err := database.RemoveMissingTagFromAssetReferences(tx, assetID); err != nil {
				rc.Log.Warn("remove missing tag failed for asset %s: %v", assetID, err)
			}
		} else {
			if err := database.AddMissingTagToAssetReferences(tx, assetID); err != nil {
				rc.Log.Warn("add missing tag failed for asset %s: %v", assetID, err)
			}
		}
		addSurvivors(survivors, acc.states)
	}

	if _, err := database.DeleteCacheStatesByIDs(tx, staleIDs); err != nil {
		return nil, err
	}
	if err := database.BulkSetNeedsVerify(tx, toSetVerify, true); err != nil {
		return nil, err
	}
	if err := database.BulkSetNeedsVerify(tx, toClearVerify, false); err != nil {
		return nil, err
	}
	return survivors, nil
}

func addSurvivors(survivors map[string]bool, states []stateInfo) {
	for _, s := range states {
		if s.exists {
			if abs, err := filepath.Abs(s.filePath); err == nil {
				survivors[abs] = true
			}
		}
	}
}

// statMatches stats a path and reports (exists, fast-ok). Any stat error
// counts as missing.
func statMatches(path string, mtimeDB sql.NullInt64, sizeDB int64) (bool, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	fastOK := mtimeDB.Valid && fi.ModTime().UnixNano() == mtimeDB.Int64 && fi.Size() == sizeDB
	return true, fastOK
}
