package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/redacted/internal/matcher"
	"github.com/raaihank/redacted/internal/privacy"
	"github.com/raaihank/redacted/internal/websocket"
)

// auditSource labels findings recorded by the API
const auditSource = "api"

// TextRequest is the body of scan and redact requests
type TextRequest struct {
	Text string `json:"text"`
}

// ScanMatch is one classified match in a scan response
type ScanMatch struct {
	Text      string             `json:"text"`
	InfoType  string             `json:"info_type"`
	Positions []matcher.Position `json:"positions"`
}

// ScanResponse is returned by POST /v1/scan
type ScanResponse struct {
	RequestID string      `json:"request_id"`
	Matches   []ScanMatch `json:"matches"`
}

// RedactResponse is returned by POST /v1/redact
type RedactResponse struct {
	RequestID  string            `json:"request_id"`
	MaskedText string            `json:"masked_text"`
	Findings   []privacy.Finding `json:"findings"`
	CacheHit   bool              `json:"cache_hit"`
}

// InfoTypeResponse describes one registered info type
type InfoTypeResponse struct {
	Name         string `json:"name"`
	Pattern      string `json:"pattern"`
	WordBoundary bool   `json:"word_boundary"`
	Enabled      bool   `json:"enabled"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.currentConfig()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":               "redacted",
		"version":            Version,
		"privacy_enabled":    cfg.Privacy.Enabled,
		"masking":            cfg.Privacy.Masking.Type,
		"enabled_info_types": s.redactor.EnabledInfoTypes(),
		"fingerprint":        s.redactor.Fingerprint(),
		"cache_enabled":      s.cache != nil,
		"audit_enabled":      s.audit != nil,
		"uptime":             time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleListInfoTypes(w http.ResponseWriter, r *http.Request) {
	types := s.redactor.Registry().InfoTypes()

	resp := make([]InfoTypeResponse, 0, len(types))
	for _, t := range types {
		resp = append(resp, InfoTypeResponse{
			Name:         t.Name(),
			Pattern:      t.Pattern(),
			WordBoundary: t.WordBoundary(),
			Enabled:      s.redactor.IsEnabled(t.Name()),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSample returns a synthetic value for an info type. An info type
// without a generator yields an empty value.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	value, err := s.redactor.Registry().Generate(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"info_type": name,
		"value":     value,
	})
}

func (s *Server) handleToggle(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]

		var err error
		if enable {
			err = s.redactor.EnableInfoType(name)
		} else {
			err = s.redactor.DisableInfoType(name)
		}
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"info_type": name,
			"enabled":   enable,
		})
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := getRequestID(r.Context())

	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}

	matches := s.redactor.Scan(req.Text)

	resp := ScanResponse{RequestID: requestID, Matches: make([]ScanMatch, 0, len(matches))}
	counts := make(map[string]int)
	for _, m := range matches {
		resp.Matches = append(resp.Matches, ScanMatch{
			Text:      m.Text,
			InfoType:  m.InfoTypeName(),
			Positions: m.Positions,
		})
		counts[m.InfoTypeName()] += len(m.Positions)
	}

	s.totalRequests.Add(1)
	s.logger.WithRequestID(requestID).LogScan("scan", len(req.Text), counts, time.Since(start))
	s.publishScanLog(r, requestID, http.StatusOK, len(req.Text), false, start)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}

	var (
		result   privacy.ProcessResult
		cacheHit bool
	)

	// Lookup, processing and store share one snapshot
	view := s.redactor.View()
	fingerprint := view.Fingerprint()
	useCache := s.cache != nil && view.Cacheable()

	if useCache {
		if cached, hit := s.cache.Get(r.Context(), fingerprint, req.Text); hit {
			result, cacheHit = *cached, true
		}
	}

	if !cacheHit {
		result = view.ProcessText(req.Text)
		if useCache {
			if err := s.cache.Set(r.Context(), fingerprint, req.Text, result); err != nil {
				log.Warn("Failed to cache result", zap.Error(err))
			}
		}
	}

	s.totalRequests.Add(1)

	if result.HasFindings() {
		s.totalDetections.Add(1)

		if s.audit != nil {
			if err := s.audit.RecordFindings(r.Context(), requestID, auditSource, result.Findings); err != nil {
				log.Warn("Failed to record findings", zap.Error(err))
			}
		}

		if s.hub != nil {
			total := 0
			for _, f := range result.Findings {
				total += f.Count
			}
			s.hub.PublishDetection(websocket.DetectionEvent{
				RequestID:     requestID,
				Source:        auditSource,
				ClientIP:      websocket.ClientIP(r),
				Findings:      result.Findings,
				TotalFindings: total,
				ProcessingMS:  float64(time.Since(start).Microseconds()) / 1000,
			})
		}
	}

	log.LogScan("redact", len(req.Text), result.Counts(), time.Since(start))
	s.publishScanLog(r, requestID, http.StatusOK, len(req.Text), cacheHit, start)

	writeJSON(w, http.StatusOK, RedactResponse{
		RequestID:  requestID,
		MaskedText: result.MaskedText,
		Findings:   result.Findings,
		CacheHit:   cacheHit,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusNotFound, "cache is not enabled")
		return
	}

	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusNotFound, "cache is not enabled")
		return
	}

	if err := s.cache.Clear(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuditSummary totals findings over a window given as ?window=24h
func (s *Server) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit is not enabled")
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	summary, err := s.audit.Summary(r.Context(), time.Now().Add(-window))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decodeText reads a TextRequest, writing the error response itself
func (s *Server) decodeText(w http.ResponseWriter, r *http.Request) (TextRequest, bool) {
	var req TextRequest

	if limit := s.currentConfig().Server.MaxBodyBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}

	return req, true
}

func (s *Server) publishScanLog(r *http.Request, requestID string, status, textBytes int, cacheHit bool, start time.Time) {
	if s.hub == nil {
		return
	}
	s.hub.PublishScanLog(websocket.ScanLogEvent{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		StatusCode: status,
		ClientIP:   websocket.ClientIP(r),
		Duration:   time.Since(start),
		TextBytes:  textBytes,
		CacheHit:   cacheHit,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
