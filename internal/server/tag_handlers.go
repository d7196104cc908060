package server

import (
	"net/http"
	"strconv"
	"strings"

	"assetbank/internal/constants"
	"assetbank/internal/services"
)

func (s *Server) handleAddTags(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assetID(w, r)
	if !ok {
		return
	}
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		s.handleServiceError(w, err)
		return
	}
	if len(body.Tags) == 0 {
		WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "tags is required")
		return
	}
	applied, err := s.app.Services.Tag.Apply(id, ownerID(r), body.Tags)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, applied)
}

func (s *Server) handleRemoveTags(w http.ResponseWriter, r *http.Request) {
	id, ok := s.assetID(w, r)
	if !ok {
		return
	}
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		s.handleServiceError(w, err)
		return
	}
	if len(body.Tags) == 0 {
		WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "tags is required")
		return
	}
	removed, err := s.app.Services.Tag.Remove(id, ownerID(r), body.Tags)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, removed)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := services.ListTagsParams{
		OwnerID: ownerID(r),
		Prefix:  q.Get("prefix"),
		Order:   q.Get("order"),
	}
	// include_zero defaults to true.
	switch strings.ToLower(q.Get("include_zero")) {
	case "false", "0", "no":
		p.HideZero = true
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
	list, err := s.app.Services.Tag.List(p)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}
