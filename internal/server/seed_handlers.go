package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"assetbank/internal/config"
	"assetbank/internal/constants"
	"assetbank/internal/scanner"
)

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	roots := config.AllRoots
	var body struct {
		Roots         []string `json:"roots"`
		ComputeHashes *bool    `json:"compute_hashes"`
	}
	if data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)); err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &body); err == nil && body.Roots != nil {
			roots = nil
			for _, raw := range body.Roots {
				if rt, ok := config.ParseRoot(raw); ok {
					roots = append(roots, rt)
				}
			}
		}
	}
	if len(roots) == 0 {
		WriteError(w, http.StatusBadRequest, constants.ErrCodeInvalidBody, "No valid roots specified")
		return
	}

	// Hashing every discovered file is slow, so it is opt-in; discovery
	// alone records stub assets the enrich pass can hash later.
	computeHashes := false
	if body.ComputeHashes != nil {
		computeHashes = *body.ComputeHashes
	}

	sup := s.app.Scanner
	started := sup.Start(scanner.Options{
		Roots:         roots,
		Phase:         scanner.PhaseFull,
		ComputeHashes: computeHashes,
	})
	if !started {
		WriteJSON(w, http.StatusConflict, map[string]any{"status": "already_running"})
		return
	}

	wait := strings.ToLower(r.URL.Query().Get("wait"))
	if wait == "true" || wait == "1" || wait == "yes" {
		sup.Wait(0)
		status := sup.Status()
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "completed",
			"progress": status.Progress,
			"errors":   status.Errors,
		})
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
}

func (s *Server) handleSeedStatus(w http.ResponseWriter, r *http.Request) {
	status := s.app.Scanner.Status()
	WriteJSON(w, http.StatusOK, map[string]any{
		"state":    status.State,
		"progress": status.Progress,
		"errors":   status.Errors,
	})
}

func (s *Server) handleSeedCancel(w http.ResponseWriter, r *http.Request) {
	if s.app.Scanner.Cancel() {
		WriteJSON(w, http.StatusOK, map[string]any{"status": "cancelling"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "idle"})
}

// handlePrune marks cache states outside all configured roots as missing
// and drops unreferenced stub assets. Refused while a scan runs; partial
// scans would misclassify paths belonging to roots they never visited.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	result, ok := s.app.Scanner.Prune()
	if !ok {
		if s.app.Scanner.Status().State != scanner.StateIdle {
			WriteJSON(w, http.StatusConflict, map[string]any{"status": "scan_running", "marked": 0})
			return
		}
		WriteError(w, http.StatusInternalServerError, constants.ErrCodeInternalError, "prune failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "completed", "marked": result.MarkedMissing})
}
