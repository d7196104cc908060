package services

import (
	"database/sql"
	"encoding/json"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetbank/internal/config"
	"assetbank/internal/constants"
	"assetbank/internal/database"
	"assetbank/internal/hashing"
	"assetbank/internal/logger"
	"assetbank/internal/metadata"
	"assetbank/internal/sanitize"
)

// AssetService implements the asset registry operations.
type AssetService struct {
	app    AppState
	logger *logger.Logger
}

func NewAssetService(app AppState, log *logger.Logger) *AssetService {
	return &AssetService{app: app, logger: log}
}

// AssetSummary is one row of a listing response.
type AssetSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AssetHash      *string   `json:"asset_hash,omitempty"`
	Size           *int64    `json:"size,omitempty"`
	MimeType       *string   `json:"mime_type,omitempty"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastAccessTime time.Time `json:"last_access_time"`
}

// AssetsList is a page of summaries plus the unfiltered total.
type AssetsList struct {
	Assets  []AssetSummary `json:"assets"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// AssetDetail is the full view of one reference.
type AssetDetail struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	AssetHash      *string        `json:"asset_hash"`
	Size           *int64         `json:"size"`
	MimeType       *string        `json:"mime_type"`
	Tags           []string       `json:"tags"`
	UserMetadata   map[string]any `json:"user_metadata"`
	PreviewID      *string        `json:"preview_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastAccessTime time.Time      `json:"last_access_time"`
}

// AssetCreated is the response to upload and register operations.
type AssetCreated struct {
	AssetDetail
	CreatedNew bool `json:"created_new"`
}

// DownloadResolution locates the bytes behind a reference.
type DownloadResolution struct {
	AbsPath     string
	ContentType string
	Filename    string
}

// UploadParams carry a multipart upload into the service.
type UploadParams struct {
	TempPath       string
	Name           string
	Tags           []string
	UserMetadata   map[string]any
	ClientFilename string
	OwnerID        string
	ExpectedHash   string
}

// ListParams drive list_assets_page.
type ListParams struct {
	OwnerID        string
	IncludeTags    []string
	ExcludeTags    []string
	NameContains   string
	MetadataFilter map[string][]metadata.Value
	Limit          int
	Offset         int
	Sort           string
	Order          string
}

// UpdateParams carry a partial update. The Has flags distinguish "absent"
// from "set to empty".
type UpdateParams struct {
	Name        *string
	Tags        []string
	HasTags     bool
	Metadata    map[string]any
	HasMetadata bool
}

// Exists reports whether any asset carries the canonical hash.
func (s *AssetService) Exists(hash string) (bool, error) {
	canonical, err := hashing.Normalize(hash)
	if err != nil {
		return false, ErrInvalidHash
	}
	return database.AssetExistsByHash(s.app.GetDB(), canonical)
}

// Upload hashes a temp file, dedupes by content, or moves it under the
// destination resolved from its tags and ingests it.
func (s *AssetService) Upload(p UploadParams) (*AssetCreated, error) {
	canonical, err := hashing.HashFile(p.TempPath)
	if err != nil {
		return nil, WrapServiceError(constants.ErrCodeInternalError, "failed to hash uploaded file", err)
	}
	if p.ExpectedHash != "" {
		expected, err := hashing.Normalize(p.ExpectedHash)
		if err != nil {
			return nil, ErrInvalidHash
		}
		if expected != canonical {
			return nil, ErrHashMismatch
		}
	}
	digest, _ := hashing.Digest(canonical)

	existing, err := database.GetAssetByHash(s.app.GetDB(), canonical)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		os.Remove(p.TempPath)
		name := displayName(p.Name, p.ClientFilename, digest)
		return s.registerExisting(canonical, name, p.Tags, p.UserMetadata, p.OwnerID)
	}

	roots := s.app.GetRoots()
	base, subdirs, err := roots.ResolveDestination(p.Tags)
	if err != nil {
		return nil, NewServiceError(constants.ErrCodeInvalidBody, err.Error())
	}
	destDir := base
	if len(subdirs) > 0 {
		destDir = filepath.Join(append([]string{base}, subdirs...)...)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, WrapServiceError(constants.ErrCodeInternalError, "failed to create destination directory", err)
	}

	srcForExt := strings.TrimSpace(p.ClientFilename)
	if srcForExt == "" {
		srcForExt = strings.TrimSpace(p.Name)
	}
	basename := digest
	if ext := sanitize.Extension(filepath.Ext(srcForExt)); ext != "" {
		basename = digest + "." + ext
	}
	destAbs := filepath.Join(destDir, basename)
	if err := config.ValidatePathWithinBase(destAbs, base); err != nil {
		return nil, NewServiceError(constants.ErrCodeBadRequest, err.Error())
	}

	contentType := guessContentType(srcForExt, basename)
	if err := os.Rename(p.TempPath, destAbs); err != nil {
		return nil, WrapServiceError(constants.ErrCodeInternalError, "failed to move uploaded file into place", err)
	}
	fi, err := os.Stat(destAbs)
	if err != nil {
		return nil, WrapServiceError(constants.ErrCodeInternalError, "failed to stat destination file", err)
	}

	var refID string
	var assetCreated bool
	err = database.WithTx(s.app.GetDB(), func(tx *sql.Tx) error {
		refID, assetCreated, err = s.ingestFile(tx, ingestFileParams{
			hash:      canonical,
			absPath:   destAbs,
			sizeBytes: fi.Size(),
			mtimeNs:   fi.ModTime().UnixNano(),
			mimeType:  contentType,
			name:      displayName(p.Name, p.ClientFilename, digest),
			ownerID:   p.OwnerID,
			tags:      p.Tags,
			tagOrigin: constants.TagOriginUser,
			userMeta:  p.UserMetadata,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.Get(refID, p.OwnerID)
	if err != nil {
		return nil, err
	}
	return &AssetCreated{AssetDetail: *detail, CreatedNew: assetCreated}, nil
}

// CreateFromHash registers a new reference on already-known content.
func (s *AssetService) CreateFromHash(hash, name string, tags []string, userMeta map[string]any, ownerID string) (*AssetCreated, error) {
	canonical, err := hashing.Normalize(hash)
	if err != nil {
		return nil, ErrInvalidHash
	}
	digest, _ := hashing.Digest(canonical)
	return s.registerExisting(canonical, displayName(name, "", digest), tags, userMeta, ownerID)
}

// Get fetches the full detail of a reference visible to owner.
func (s *AssetService) Get(id, ownerID string) (*AssetDetail, error) {
	db := s.app.GetDB()
	ref, err := database.GetReferenceByID(db, id, ownerID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, ErrAssetNotFound
	}
	tags, err := database.GetReferenceTags(db, ref.ID)
	if err != nil {
		return nil, err
	}
	ref.Tags = tags
	return detailFromRef(ref)
}

// List returns one page of visible references under the given filters.
func (s *AssetService) List(p ListParams) (*AssetsList, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = constants.DefaultPageLimit
	}
	if limit > constants.MaxPageLimit {
		limit = constants.MaxPageLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	order := strings.ToLower(p.Order)
	if order != "asc" && order != "desc" {
		order = "desc"
	}
	metaSQL, metaArgs := database.BuildMetadataFilter(p.MetadataFilter)

	refs, total, err := database.ListReferencesPage(s.app.GetDB(), database.ListReferencesOptions{
		OwnerID:      p.OwnerID,
		IncludeTags:  p.IncludeTags,
		ExcludeTags:  p.ExcludeTags,
		NameContains: p.NameContains,
		MetadataSQL:  metaSQL,
		MetadataArgs: metaArgs,
		SortBy:       p.Sort,
		SortDesc:     order == "desc",
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, err
	}

	out := &AssetsList{Total: total}
	for _, r := range refs {
		summary := AssetSummary{
			ID:             r.ID,
			Name:           r.Name,
			Tags:           tagsOrEmpty(r.Tags),
			CreatedAt:      timeFromNanos(r.CreatedAt),
			UpdatedAt:      timeFromNanos(r.UpdatedAt),
			LastAccessTime: timeFromNanos(r.LastAccessTime),
		}
		if r.AssetHash.Valid {
			h := r.AssetHash.String
			summary.AssetHash = &h
		}
		size := r.AssetSizeBytes
		summary.Size = &size
		if r.AssetMimeType.Valid {
			m := r.AssetMimeType.String
			summary.MimeType = &m
		}
		out.Assets = append(out.Assets, summary)
	}
	out.HasMore = offset+len(out.Assets) < total
	return out, nil
}

// Update applies a partial update to name, tags, or metadata.
func (s *AssetService) Update(id, ownerID string, p UpdateParams) (*AssetDetail, error) {
	err := database.WithTx(s.app.GetDB(), func(tx *sql.Tx) error {
		ref, err := database.GetReferenceByID(tx, id, ownerID)
		if err != nil {
			return err
		}
		if ref == nil {
			return ErrAssetNotFound
		}

		if p.Name != nil {
			name := sanitize.Name(*p.Name)
			if name != "" && name != ref.Name {
				if _, err := database.UpdateReferenceName(tx, id, ownerID, name); err != nil {
					return err
				}
			}
		}

		computed := s.computeFilename(tx, ref.AssetID)
		var newMeta map[string]any
		if p.HasMetadata {
			newMeta = map[string]any{}
			for k, v := range p.Metadata {
				newMeta[k] = v
			}
		} else if computed != "" {
			current, _ := decodeMeta(ref.UserMetadata)
			if cur, _ := current["filename"].(string); cur != computed {
				newMeta = current
				if newMeta == nil {
					newMeta = map[string]any{}
				}
			}
		}
		if newMeta != nil {
			if computed != "" {
				newMeta["filename"] = computed
			}
			if err := writeMetadata(tx, id, newMeta); err != nil {
				return err
			}
		}

		if p.HasTags {
			if err := database.SetReferenceTags(tx, id, p.Tags, constants.TagOriginUser); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id, ownerID)
}

// SetPreview sets or clears the preview asset on a reference.
func (s *AssetService) SetPreview(id, ownerID string, previewID *string) (*AssetDetail, error) {
	err := database.WithTx(s.app.GetDB(), func(tx *sql.Tx) error {
		if previewID != nil {
			asset, err := database.GetAssetByID(tx, *previewID)
			if err != nil {
				return err
			}
			if asset == nil {
				previewID = nil
			}
		}
		updated, err := database.SetReferencePreview(tx, id, ownerID, previewID)
		if err != nil {
			return err
		}
		if !updated {
			return ErrAssetNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id, ownerID)
}

// Delete removes a reference. When deleteContent is set and the asset is
// orphaned, the asset row goes too and its files are removed after commit,
// best-effort.
func (s *AssetService) Delete(id, ownerID string, deleteContent bool) (bool, error) {
	var orphanPaths []string
	deleted := false
	err := database.WithTx(s.app.GetDB(), func(tx *sql.Tx) error {
		assetID, ok, err := database.DeleteReferenceByID(tx, id, ownerID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		deleted = true
		if !deleteContent {
			return nil
		}
		still, err := database.ReferenceExistsForAsset(tx, assetID)
		if err != nil || still {
			return err
		}
		states, err := database.ListCacheStatesByAssetID(tx, assetID)
		if err != nil {
			return err
		}
		for _, st := range states {
			orphanPaths = append(orphanPaths, st.FilePath)
		}
		_, err = database.DeleteAssetsByIDs(tx, []string{assetID})
		return err
	})
	if err != nil {
		return false, err
	}
	for _, p := range orphanPaths {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			if err := os.Remove(p); err != nil {
				s.logger.Warn("failed to remove orphaned file %s: %v", p, err)
			}
		}
	}
	return deleted, nil
}

// ResolveDownload picks the best live path behind a reference and bumps its
// access time.
func (s *AssetService) ResolveDownload(id, ownerID string) (*DownloadResolution, error) {
	db := s.app.GetDB()
	ref, err := database.GetReferenceByID(db, id, ownerID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, ErrAssetNotFound
	}
	states, err := database.ListCacheStatesByAssetID(db, ref.AssetID)
	if err != nil {
		return nil, err
	}
	path := bestLivePath(states)
	if path == "" {
		return nil, ErrFileNotFound
	}
	if err := database.TouchReferenceAccessTime(db, ref.ID, database.NowNanos()); err != nil {
		s.logger.Warn("failed to bump access time for %s: %v", ref.ID, err)
	}

	filename := ref.Name
	if filepath.Ext(filename) == "" {
		filename += filepath.Ext(path)
	}
	contentType := guessContentType(path, filename)
	if contentType == "application/octet-stream" && ref.AssetMimeType.Valid {
		contentType = ref.AssetMimeType.String
	}
	return &DownloadResolution{AbsPath: path, ContentType: contentType, Filename: filename}, nil
}

// ParseMetadataFilter decodes the metadata_filter query parameter: a JSON
// object of key to value-or-list-of-values.
func ParseMetadataFilter(raw []byte) (map[string][]metadata.Value, error) {
	obj, err := metadata.DecodeObject(raw)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	out := make(map[string][]metadata.Value, len(obj))
	for key, v := range obj {
		if list, ok := v.([]any); ok {
			vals := make([]metadata.Value, 0, len(list))
			for _, elem := range list {
				vals = append(vals, metadata.ValueOf(elem))
			}
			out[key] = vals
			continue
		}
		out[key] = []metadata.Value{metadata.ValueOf(v)}
	}
	return out, nil
}

type ingestFileParams struct {
	hash      string
	absPath   string
	sizeBytes int64
	mtimeNs   int64
	mimeType  string
	name      string
	ownerID   string
	tags      []string
	tagOrigin string
	userMeta  map[string]any
}

// ingestFile is the single-file ingest path used by uploads: upsert asset
// by hash, claim the path, get-or-create the reference, then tags and
// metadata. Runs inside the caller's transaction.
func (s *AssetService) ingestFile(tx *sql.Tx, p ingestFileParams) (string, bool, error) {
	var mimePtr *string
	if p.mimeType != "" {
		mimePtr = &p.mimeType
	}
	asset, assetCreated, _, err := database.UpsertAsset(tx, uuid.NewString(), p.hash, p.sizeBytes, mimePtr)
	if err != nil {
		return "", false, err
	}
	if _, _, err := database.UpsertCacheState(tx, asset.ID, p.absPath, &p.mtimeNs, false); err != nil {
		return "", false, err
	}

	ref, _, err := database.InsertReference(tx, database.ReferenceRow{
		ID:              uuid.NewString(),
		AssetID:         asset.ID,
		OwnerID:         p.ownerID,
		Name:            p.name,
		EnrichmentLevel: constants.EnrichmentHashed,
		CreatedAt:       database.NowNanos(),
	})
	if err != nil {
		return "", false, err
	}

	if len(p.tags) > 0 {
		if _, _, err := database.AddTagsToReference(tx, ref.ID, p.tags, p.tagOrigin); err != nil {
			return "", false, err
		}
	}

	updates := map[string]any{}
	for k, v := range p.userMeta {
		updates[k] = v
	}
	if computed := s.computeFilename(tx, asset.ID); computed != "" {
		updates["filename"] = computed
	}
	if len(updates) > 0 {
		var existing *string
		if ref.UserMetadata.Valid {
			existing = &ref.UserMetadata.String
		}
		jsonText, rows, err := metadata.MergeObject(existing, updates)
		if err != nil {
			return "", false, err
		}
		if err := database.SetReferenceUserMetadataUnscoped(tx, ref.ID, &jsonText); err != nil {
			return "", false, err
		}
		if err := database.ReplaceMetadataProjection(tx, ref.ID, rows); err != nil {
			return "", false, err
		}
	}

	if err := database.RemoveMissingTagFromAssetReferences(tx, asset.ID); err != nil {
		s.logger.Warn("failed to clear missing tag for asset %s: %v", asset.ID, err)
	}
	return ref.ID, assetCreated, nil
}

// registerExisting creates (or returns) a reference on known content.
func (s *AssetService) registerExisting(canonical, name string, tags []string, userMeta map[string]any, ownerID string) (*AssetCreated, error) {
	var refID string
	err := database.WithTx(s.app.GetDB(), func(tx *sql.Tx) error {
		asset, err := database.GetAssetByHash(tx, canonical)
		if err != nil {
			return err
		}
		if asset == nil {
			return ErrAssetNotFound
		}
		ref, created, err := database.InsertReference(tx, database.ReferenceRow{
			ID:              uuid.NewString(),
			AssetID:         asset.ID,
			OwnerID:         ownerID,
			Name:            name,
			EnrichmentLevel: constants.EnrichmentHashed,
			CreatedAt:       database.NowNanos(),
		})
		if err != nil {
			return err
		}
		refID = ref.ID
		if !created {
			return nil
		}

		newMeta := map[string]any{}
		for k, v := range userMeta {
			newMeta[k] = v
		}
		if computed := s.computeFilename(tx, asset.ID); computed != "" {
			newMeta["filename"] = computed
		}
		if len(newMeta) > 0 {
			if err := writeMetadata(tx, ref.ID, newMeta); err != nil {
				return err
			}
		}
		if len(tags) > 0 {
			if err := database.SetReferenceTags(tx, ref.ID, tags, constants.TagOriginUser); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	detail, err := s.Get(refID, ownerID)
	if err != nil {
		return nil, err
	}
	return &AssetCreated{AssetDetail: *detail, CreatedNew: false}, nil
}

// computeFilename derives the filename metadata entry from the asset's best
// live cache state, relative to its owning base directory.
func (s *AssetService) computeFilename(tx database.DBTX, assetID string) string {
	states, err := database.ListCacheStatesByAssetID(tx, assetID)
	if err != nil {
		return ""
	}
	path := bestLivePath(states)
	if path == "" {
		return ""
	}
	return s.app.GetRoots().RelativeFilename(path)
}

// bestLivePath prefers a verified on-disk state, then any on-disk state.
// States arrive ordered active-first, verified-first.
func bestLivePath(states []database.CacheState) string {
	fallback := ""
	for _, st := range states {
		if st.IsMissing {
			continue
		}
		fi, err := os.Stat(st.FilePath)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if !st.NeedsVerify {
			return st.FilePath
		}
		if fallback == "" {
			fallback = st.FilePath
		}
	}
	return fallback
}

// writeMetadata rewrites the raw JSON and its projection in one place.
func writeMetadata(tx database.DBTX, refID string, meta map[string]any) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	text := string(b)
	if err := database.SetReferenceUserMetadataUnscoped(tx, refID, &text); err != nil {
		return err
	}
	return database.ReplaceMetadataProjection(tx, refID, metadata.RowsForObject(meta))
}

func detailFromRef(r *database.ReferenceWithAsset) (*AssetDetail, error) {
	meta, err := decodeMeta(r.UserMetadata)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string]any{}
	}
	d := &AssetDetail{
		ID:             r.ID,
		Name:           r.Name,
		Tags:           tagsOrEmpty(r.Tags),
		UserMetadata:   meta,
		CreatedAt:      timeFromNanos(r.CreatedAt),
		UpdatedAt:      timeFromNanos(r.UpdatedAt),
		LastAccessTime: timeFromNanos(r.LastAccessTime),
	}
	if r.AssetHash.Valid {
		h := r.AssetHash.String
		d.AssetHash = &h
	}
	size := r.AssetSizeBytes
	d.Size = &size
	if r.AssetMimeType.Valid {
		m := r.AssetMimeType.String
		d.MimeType = &m
	}
	if r.PreviewID.Valid {
		p := r.PreviewID.String
		d.PreviewID = &p
	}
	return d, nil
}

func decodeMeta(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	return metadata.DecodeObject([]byte(raw.String))
}

func displayName(name, clientFilename, fallback string) string {
	if n := sanitize.Name(name); n != "" {
		return n
	}
	if n := sanitize.Name(clientFilename); n != "" {
		return n
	}
	return fallback
}

func guessContentType(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if ext := filepath.Ext(filepath.Base(c)); ext != "" {
			if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
				return ct
			}
		}
	}
	return "application/octet-stream"
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func timeFromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
