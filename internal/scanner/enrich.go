package scanner

import (
	"database/sql"
	"fmt"
	"os"

	"assetbank/internal/config"
	"assetbank/internal/constants"
	"assetbank/internal/database"
	"assetbank/internal/hashing"
	"assetbank/internal/logger"
	"assetbank/internal/metadata"
)

// Enricher promotes stub references: tier-2 header metadata, then optionally
// the content hash.
type Enricher struct {
	DB    *sql.DB
	Roots *config.Roots
	Log   *logger.Logger
}

// EnrichBatch processes candidates one transaction each so a bad file never
// rolls back its neighbours. Returns (enriched, failed, failure messages).
func (e *Enricher) EnrichBatch(candidates []database.EnrichmentCandidate, computeHash bool) (int, int, []string) {
	enriched, failed := 0, 0
	var errs []string
	for _, c := range candidates {
		err := database.WithTx(e.DB, func(tx *sql.Tx) error {
			return e.enrichOne(tx, c, computeHash)
		})
		if err != nil {
			failed++
			errs = append(errs, fmt.Sprintf("enrich %s: %v", c.FilePath, err))
			e.Log.Warn("enrich failed for %s: %v", c.FilePath, err)
			continue
		}
		enriched++
	}
	return enriched, failed, errs
}

func (e *Enricher) enrichOne(tx *sql.Tx, c database.EnrichmentCandidate, computeHash bool) error {
	if c.FilePath == "" {
		return fmt.Errorf("no live cache state")
	}
	fi, err := os.Stat(c.FilePath)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if IsSafetensorsPath(c.FilePath) {
		header, err := ReadSafetensorsHeader(c.FilePath)
		if err != nil {
			e.Log.Warn("safetensors header unreadable for %s: %v", c.FilePath, err)
		} else {
			updates["tensor_count"] = header.TensorCount
			if len(header.Metadata) > 0 {
				updates["safetensors_metadata"] = header.Metadata
			}
		}
	}

	targetLevel := constants.EnrichmentMetadata
	assetID := c.AssetID
	if computeHash {
		targetLevel = constants.EnrichmentHashed
		if !c.AssetHash.Valid {
			hash, err := hashing.HashFile(c.FilePath)
			if err != nil {
				return err
			}
			existing, err := database.GetAssetByHash(tx, hash)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != c.AssetID {
				// Same bytes already tracked: fold the stub into the
				// hashed asset and drop it.
				if err := database.ReassignCacheStates(tx, c.AssetID, existing.ID); err != nil {
					return err
				}
				if err := database.ReassignReferences(tx, c.AssetID, existing.ID); err != nil {
					return err
				}
				if _, err := database.DeleteAssetsByIDs(tx, []string{c.AssetID}); err != nil {
					return err
				}
				assetID = existing.ID
			} else if existing == nil {
				if err := database.SetAssetHash(tx, c.AssetID, hash, fi.Size()); err != nil {
					return err
				}
			}
			mtime := fi.ModTime().UnixNano()
			if _, _, err := database.UpsertCacheState(tx, assetID, c.FilePath, &mtime, false); err != nil {
				return err
			}
		}
	}

	// Non-safetensors files carry no extractable metadata, so sibling
	// references on the same asset have no enrichment work left once the
	// hash lands; settle them here instead of in later candidate rounds.
	if targetLevel == constants.EnrichmentHashed && !IsSafetensorsPath(c.FilePath) {
		siblings, err := database.GetReferencesBelowEnrichment(tx, assetID, targetLevel)
		if err != nil {
			return err
		}
		for _, id := range siblings {
			if err := database.SetReferenceEnrichmentLevel(tx, id, targetLevel); err != nil {
				return err
			}
		}
	}

	// The reference may have been dropped by a merge collision; both writes
	// below are no-ops in that case.
	if len(updates) > 0 {
		meta := c.UserMetadata
		var existing *string
		if meta.Valid {
			existing = &meta.String
		}
		jsonText, rows, err := metadata.MergeObject(existing, updates)
		if err != nil {
			return err
		}
		if err := database.SetReferenceUserMetadataUnscoped(tx, c.ReferenceID, &jsonText); err != nil {
			return err
		}
		if err := database.ReplaceMetadataProjection(tx, c.ReferenceID, rows); err != nil {
			return err
		}
	}
	return database.SetReferenceEnrichmentLevel(tx, c.ReferenceID, targetLevel)
}
