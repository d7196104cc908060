package scanner

import (
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"assetbank/internal/constants"
	"assetbank/internal/database"
)

func insertStubWithReferences(t *testing.T, db *sql.DB, refNames ...string) (string, []string) {
	t.Helper()
	assetID := uuid.NewString()
	err := database.BulkInsertAssets(db, []database.AssetRow{
		{ID: assetID, CreatedAt: database.NowNanos()},
	})
	if err != nil {
		t.Fatalf("BulkInsertAssets: %v", err)
	}
	var refIDs []string
	for i, name := range refNames {
		ref, _, err := database.InsertReference(db, database.ReferenceRow{
			ID: uuid.NewString(), AssetID: assetID, Name: name,
			EnrichmentLevel: constants.EnrichmentStub,
			CreatedAt:       database.NowNanos() + int64(i),
		})
		if err != nil {
			t.Fatal(err)
		}
		refIDs = append(refIDs, ref.ID)
	}
	return assetID, refIDs
}

func refLevel(t *testing.T, db *sql.DB, refID string) int {
	t.Helper()
	ref, err := database.GetReferenceByID(db, refID, "")
	if err != nil {
		t.Fatal(err)
	}
	if ref == nil {
		t.Fatalf("reference %s gone", refID)
	}
	return ref.EnrichmentLevel
}

func writeSafetensorsRaw(t *testing.T, dir, name string, header []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	content := append(lenBuf[:], header...)
	content = append(content, 0, 0, 0, 0)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEnrichHashSettlesSiblingReferences(t *testing.T) {
	db := openTestDB(t)
	roots := testRoots(t)
	assetID, refIDs := insertStubWithReferences(t, db, "first", "second")
	path := writeFileWithState(t, db, assetID, roots.Input[0], "plain.bin", []byte("plain content"))

	e := &Enricher{DB: db, Roots: roots, Log: testLogger()}
	enriched, failed, errs := e.EnrichBatch([]database.EnrichmentCandidate{
		{ReferenceID: refIDs[0], AssetID: assetID, FilePath: path},
	}, true)
	if enriched != 1 || failed != 0 {
		t.Fatalf("enriched=%d failed=%d errs=%v", enriched, failed, errs)
	}

	asset, err := database.GetAssetByID(db, assetID)
	if err != nil {
		t.Fatal(err)
	}
	if !asset.Hash.Valid {
		t.Error("asset not hashed")
	}
	// No metadata to extract from a plain file, so the sibling reference has
	// nothing left to do either.
	for _, id := range refIDs {
		if lvl := refLevel(t, db, id); lvl != constants.EnrichmentHashed {
			t.Errorf("reference %s level = %d", id, lvl)
		}
	}
}

func TestEnrichSafetensorsKeepsSiblingPending(t *testing.T) {
	db := openTestDB(t)
	roots := testRoots(t)
	assetID, refIDs := insertStubWithReferences(t, db, "first", "second")
	checkpoints := roots.Models["checkpoints"][0]
	path := writeSafetensorsRaw(t, checkpoints, "model.safetensors",
		[]byte(`{"__metadata__":{"base":"sdxl"},"w":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`))
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mtime := fi.ModTime().UnixNano()
	if _, _, err := database.UpsertCacheState(db, assetID, path, &mtime, false); err != nil {
		t.Fatal(err)
	}

	e := &Enricher{DB: db, Roots: roots, Log: testLogger()}
	enriched, failed, errs := e.EnrichBatch([]database.EnrichmentCandidate{
		{ReferenceID: refIDs[0], AssetID: assetID, FilePath: path},
	}, true)
	if enriched != 1 || failed != 0 {
		t.Fatalf("enriched=%d failed=%d errs=%v", enriched, failed, errs)
	}

	if lvl := refLevel(t, db, refIDs[0]); lvl != constants.EnrichmentHashed {
		t.Errorf("candidate level = %d", lvl)
	}
	// The sibling still owes its own metadata pass.
	if lvl := refLevel(t, db, refIDs[1]); lvl != constants.EnrichmentStub {
		t.Errorf("sibling level = %d", lvl)
	}

	ref, err := database.GetReferenceByID(db, refIDs[0], "")
	if err != nil {
		t.Fatal(err)
	}
	if !ref.UserMetadata.Valid {
		t.Error("candidate metadata not written")
	}
}
