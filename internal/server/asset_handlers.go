package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"assetbank/internal/constants"
	"assetbank/internal/hashing"
	"assetbank/internal/metadata"
	"assetbank/internal/sanitize"
	"assetbank/internal/services"
)

func ownerID(r *http.Request) string {
	return r.Header.Get(constants.HeaderUserID)
}

// assetID extracts and validates the {id} path parameter. Malformed IDs
// cannot match any reference, so they report not-found rather than a
// parse error.
func (s *Server) assetID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, http.StatusNotFound, constants.ErrCodeAssetNotFound, "Asset not found.")
		return "", false
	}
	return id, true
}

func (s *Server) handleHeadAssetByHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, err := hashing.Normalize(hash); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	exists, err := s.app.Services.Asset.Exists(hash)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if exists {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := services.ListParams{
		OwnerID:      ownerID(r),
		IncludeTags:  splitTagParams(q["include_tags"]),
		ExcludeTags:  splitTagParams(q["exclude_tags"]),
		NameContains: q.Get("name_contains"),
		Sort:         q.Get("sort"),
		Order:        q.Get("order"),
	}
	if raw := q.Get("metadata_filter"); raw != "" {
		filter, err := services.ParseMetadataFilter([]byte(raw))
		if err != nil {
			WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidQuery, "metadata_filter must be a JSON object")
			return
		}
		p.MetadataFilter = filter
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidQuery, "limit must be an integer")
			return
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidQuery, "offset must be a non-negative integer")
			return
		}
		p.Offset = n
	}

	list, err := s.app.Services.Asset.List(p)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// splitTagParams accepts both repeated parameters and comma-separated
// values within one parameter.
func splitTagParams(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// uploadForm collects the multipart fields of an asset upload. The file
// part streams to a temp file so large models never sit in memory.
type uploadForm struct {
	tempPath       string
	clientFilename string
	name           string
	hash           string
	tags           []string
	userMetadata   map[string]any
}

func (s *Server) readUploadForm(r *http.Request) (*uploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, services.NewServiceError(constants.ErrCodeInvalidBody, "expected a multipart/form-data body")
	}

	form := &uploadForm{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return form, services.WrapServiceError(constants.ErrCodeInvalidBody, "malformed multipart body", err)
		}
		switch part.FormName() {
		case "file":
			tmp, err := os.CreateTemp("", "assetbank-upload-*")
			if err != nil {
				part.Close()
				return form, services.WrapServiceError(constants.ErrCodeInternalError, "failed to create temp file", err)
			}
			form.tempPath = tmp.Name()
			form.clientFilename = part.FileName()
			_, copyErr := io.Copy(tmp, part)
			closeErr := tmp.Close()
			part.Close()
			if copyErr != nil {
				return form, services.WrapServiceError(constants.ErrCodeInvalidBody, "failed to read uploaded file", copyErr)
			}
			if closeErr != nil {
				return form, services.WrapServiceError(constants.ErrCodeInternalError, "failed to write temp file", closeErr)
			}
		case "name", "hash":
			value, err := readPartString(part)
			if err != nil {
				return form, err
			}
			if part.FormName() == "name" {
				form.name = value
			} else {
				form.hash = value
			}
		case "tags":
			value, err := readPartString(part)
			if err != nil {
				return form, err
			}
			if value != "" {
				if err := json.Unmarshal([]byte(value), &form.tags); err != nil {
					return form, services.NewServiceError(constants.ErrCodeInvalidBody, "tags must be a JSON array of strings")
				}
			}
		case "user_metadata":
			value, err := readPartString(part)
			if err != nil {
				return form, err
			}
			if value != "" {
				meta, err := metadata.DecodeObject([]byte(value))
				if err != nil {
					return form, services.NewServiceError(constants.ErrCodeInvalidJSON, "user_metadata must be a JSON object")
				}
				form.userMetadata = meta
			}
		default:
			part.Close()
		}
	}
	return form, nil
}

func readPartString(part io.ReadCloser) (string, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, 1<<20))
	if err != nil {
		return "", services.WrapServiceError(constants.ErrCodeInvalidBody, "failed to read form field", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	form, err := s.readUploadForm(r)
	if form != nil && form.tempPath != "" {
		defer os.Remove(form.tempPath)
	}
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	// A known hash registers a new reference without re-reading bytes.
	if form.hash != "" {
		canonical, err := hashing.Normalize(form.hash)
		if err != nil {
			s.handleServiceError(w, services.ErrInvalidHash)
			return
		}
		exists, err := s.app.Services.Asset.Exists(canonical)
		if err != nil {
			s.handleServiceError(w, err)
			return
		}
		if exists {
			name := form.name
			if name == "" {
				name = form.clientFilename
			}
			created, err := s.app.Services.Asset.CreateFromHash(canonical, name, form.tags, form.userMetadata, ownerID(r))
			if err != nil {
				s.handleServiceError(w, err)
				return
			}
			WriteJSON(w, uploadStatus(created), created)
			return
		}
		if form.tempPath == "" {
			WriteError(w, http.StatusNotFound, constants.ErrCodeAssetNotFound, "No asset content exists for the given hash.")
			return
		}
	}

	if form.tempPath == "" {
		WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "missing file part")
		return
	}

	created, err := s.app.Services.Asset.Upload(services.UploadParams{
		TempPath:       form.tempPath,
		Name:           form.name,
		Tags:           form.tags,
		UserMetadata:   form.userMetadata,
		ClientFilename: form.clientFilename,
		OwnerID:        ownerID(r),
		ExpectedHash:   form.hash,
	})
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, uploadStatus(created), created)
}

// uploadStatus maps an upload result to 201 for new content and 200 for a
// deduplicated one.
func uploadStatus(created *services.AssetCreated) int {
	if created.CreatedNew {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (s *Server) handleCreateFromHash(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash         string         `json:"hash"`
		Name         string         `json:"name"`
		Tags         []string       `json:"tags"`
		UserMetadata map[string]any `json:"user_metadata"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		s.handleServiceError(w, err)
		return
	}
	if body.Hash == "" {
		WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "hash is required")
		return
	}
	created, err := s.app.Services.Asset.CreateFromHash(body.Hash, body.Name, body.Tags, body.UserMetadata, ownerID(r))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assetID(w, r)
	if !ok {
		return
	}
	detail, err := s.app.Services.Asset.Get(id, ownerID(r))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assetID(w, r)
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := decodeJSONBody(r, &body); err != nil {
		s.handleServiceError(w, err)
		return
	}

	var p services.UpdateParams
	if raw, present := body["name"]; present {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "name must be a string")
			return
		}
		p.Name = &name
	}
	if raw, present := body["tags"]; present {
		var tags []string
		if err := json.Unmarshal(raw, &tags); err != nil {
			WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "tags must be an array of strings")
			return
		}
		p.Tags = tags
		p.HasTags = true
	}
	if raw, present := body["user_metadata"]; present {
		meta, err := metadata.DecodeObject(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidJSON, "user_metadata must be a JSON object")
			return
		}
		p.Metadata = meta
		p.HasMetadata = true
	}

	detail, err := s.app.Services.Asset.Update(id, ownerID(r), p)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSetPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assetID(w, r)
	if !ok {
		return
	}
	var body struct {
		PreviewID *string `json:"preview_id"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		s.handleServiceError(w, err)
		return
	}
	if body.PreviewID != nil {
		if _, err := uuid.Parse(*body.PreviewID); err != nil {
			WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "preview_id must be a UUID")
			return
		}
	}
	detail, err := s.app.Services.Asset.SetPreview(id, ownerID(r), body.PreviewID)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assetID(w, r)
	if !ok {
		return
	}
	deleteContent := true
	switch strings.ToLower(r.URL.Query().Get("delete_content")) {
	case "0", "false", "no":
		deleteContent = false
	}
	deleted, err := s.app.Services.Asset.Delete(id, ownerID(r), deleteContent)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, constants.ErrCodeAssetNotFound, "Asset not found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownloadAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assetID(w, r)
	if !ok {
		return
	}
	res, err := s.app.Services.Asset.ResolveDownload(id, ownerID(r))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	f, err := os.Open(res.AbsPath)
	if err != nil {
		s.handleServiceError(w, services.ErrFileNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.handleServiceError(w, services.ErrFileNotFound)
		return
	}

	disposition := "attachment"
	if r.URL.Query().Get("disposition") == "inline" {
		disposition = "inline"
	}
	w.Header().Set(constants.HeaderContentType, res.ContentType)
	w.Header().Set(constants.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
	w.Header().Set(constants.HeaderContentDisposition, contentDisposition(disposition, res.Filename))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, constants.DownloadChunkSize)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		// Headers are gone; all we can do is note the broken transfer.
		s.logger.Warn("download of %s aborted: %v", id, err)
	}
}

// contentDisposition builds the header with an ASCII fallback plus the
// RFC 5987 encoded full filename.
func contentDisposition(disposition, filename string) string {
	ascii := sanitize.ContentDispositionFilename(filename)
	encoded := url.PathEscape(filename)
	return fmt.Sprintf("%s; filename=\"%s\"; filename*=UTF-8''%s", disposition, ascii, encoded)
}

func decodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 10<<20))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return services.NewServiceError(constants.ErrCodeInvalidJSON, "request body must be valid JSON")
	}
	return nil
}
