// Package ingest turns batches of discovered or uploaded files into asset,
// cache state, reference, tag and metadata rows inside one transaction.
// Conflict-ignoring inserts plus a winner query make the whole batch safe to
// run concurrently with other writers claiming the same paths.
package ingest

import (
	"github.com/google/uuid"

	"assetbank/internal/constants"
	"assetbank/internal/database"
	"assetbank/internal/metadata"
)

// Item is one file to ingest. A nil Hash creates a stub asset that a later
// enrichment pass promotes.
type Item struct {
	FilePath    string
	MtimeNs     *int64
	SizeBytes   int64
	MimeType    *string
	Hash        *string
	NeedsVerify bool

	OwnerID      string
	Name         string
	Tags         []string
	TagOrigin    string
	UserMetadata *string // raw JSON object text
	MetaRows     []metadata.Row
}

// Result reports what a batch actually changed.
type Result struct {
	InsertedReferences int
	WonPaths           []string
	LostPaths          []string
}

// Batch ingests items inside the caller's transaction.
//
// Losing a path race is not an error: the loser's fresh asset is deleted and
// the path lands in LostPaths. References, tags and metadata attach only to
// items whose path landed on their own asset.
func Batch(tx database.DBTX, items []Item) (*Result, error) {
	if len(items) == 0 {
		return &Result{}, nil
	}
	now := database.NowNanos()

	assetByItem := make([]string, len(items))
	created := make(map[string]bool)
	byHash := make(map[string]string)
	var assetRows []database.AssetRow
	var cacheRows []database.CacheStateRow
	paths := make([]string, 0, len(items))

	for i, it := range items {
		assetID := ""
		if it.Hash != nil {
			if id, ok := byHash[*it.Hash]; ok {
				assetID = id
			} else if existing, err := database.GetAssetByHash(tx, *it.Hash); err != nil {
				return nil, err
			} else if existing != nil {
				assetID = existing.ID
				byHash[*it.Hash] = assetID
			}
		}
		if assetID == "" {
			assetID = uuid.NewString()
			created[assetID] = true
			if it.Hash != nil {
				byHash[*it.Hash] = assetID
			}
			assetRows = append(assetRows, database.AssetRow{
				ID:        assetID,
				Hash:      it.Hash,
				SizeBytes: it.SizeBytes,
				MimeType:  it.MimeType,
				CreatedAt: now,
			})
		}
		assetByItem[i] = assetID
		cacheRows = append(cacheRows, database.CacheStateRow{
			AssetID:     assetID,
			FilePath:    it.FilePath,
			MtimeNs:     it.MtimeNs,
			NeedsVerify: it.NeedsVerify,
		})
		paths = append(paths, it.FilePath)
	}

	if err := database.BulkInsertAssets(tx, assetRows); err != nil {
		return nil, err
	}
	if err := database.BulkInsertCacheStatesIgnoreConflicts(tx, cacheRows); err != nil {
		return nil, err
	}

	ourAssets := make([]string, 0, len(created)+len(byHash))
	seen := make(map[string]bool)
	for _, id := range assetByItem {
		if !seen[id] {
			seen[id] = true
			ourAssets = append(ourAssets, id)
		}
	}
	winners, err := database.GetCacheStatesByPathsAndAssetIDs(tx, paths, ourAssets)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	wonByAsset := make(map[string]bool)
	for i, it := range items {
		if winners[it.FilePath] == assetByItem[i] {
			res.WonPaths = append(res.WonPaths, it.FilePath)
			wonByAsset[assetByItem[i]] = true
		} else {
			res.LostPaths = append(res.LostPaths, it.FilePath)
		}
	}

	var losers []string
	for id := range created {
		if !wonByAsset[id] {
			losers = append(losers, id)
		}
	}
	if _, err := database.DeleteAssetsByIDs(tx, losers); err != nil {
		return nil, err
	}
	if _, err := database.RestoreCacheStatesByPaths(tx, res.WonPaths); err != nil {
		return nil, err
	}

	var refRows []database.ReferenceRow
	refItem := make(map[string]int)
	for i, it := range items {
		if winners[it.FilePath] != assetByItem[i] {
			continue
		}
		refID := uuid.NewString()
		level := constants.EnrichmentStub
		if it.Hash != nil {
			level = constants.EnrichmentHashed
		}
		refRows = append(refRows, database.ReferenceRow{
			ID:              refID,
			AssetID:         assetByItem[i],
			OwnerID:         it.OwnerID,
			Name:            it.Name,
			UserMetadata:    it.UserMetadata,
			EnrichmentLevel: level,
			CreatedAt:       now,
		})
		refItem[refID] = i
	}
	if err := database.BulkInsertReferencesIgnoreConflicts(tx, refRows); err != nil {
		return nil, err
	}

	refIDs := make([]string, 0, len(refRows))
	for _, r := range refRows {
		refIDs = append(refIDs, r.ID)
	}
	landed, err := database.GetReferenceIDsByIDs(tx, refIDs)
	if err != nil {
		return nil, err
	}

	tagNames := make(map[string]bool)
	var tagRows []database.ReferenceTagRow
	var metaRows []database.ReferenceMetaRow
	for refID, i := range refItem {
		if !landed[refID] {
			continue
		}
		res.InsertedReferences++
		it := items[i]
		origin := it.TagOrigin
		if origin == "" {
			origin = constants.TagOriginAuto
		}
		for _, raw := range it.Tags {
			name := database.NormalizeTag(raw)
			if name == "" {
				continue
			}
			tagNames[name] = true
			tagRows = append(tagRows, database.ReferenceTagRow{
				ReferenceID: refID,
				TagName:     name,
				Origin:      origin,
				AddedAt:     now,
			})
		}
		for _, row := range it.MetaRows {
			metaRows = append(metaRows, database.MetaRowFor(refID, row))
		}
	}
	names := make([]string, 0, len(tagNames))
	for n := range tagNames {
		names = append(names, n)
	}
	if err := database.EnsureTagsExist(tx, names, constants.TagTypeUser); err != nil {
		return nil, err
	}
	if err := database.BulkInsertReferenceTags(tx, tagRows); err != nil {
		return nil, err
	}
	if err := database.BulkInsertReferenceMeta(tx, metaRows); err != nil {
		return nil, err
	}
	return res, nil
}
