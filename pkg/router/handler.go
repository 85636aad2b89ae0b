package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RecordsPath is the route of the transformation endpoint.
const RecordsPath = "/records"

// maxBatchBytes caps the request body of one transformation batch.
const maxBatchBytes = 6 << 20

// TransformationRequest is the body posted by the stream.
type TransformationRequest struct {
	InvocationID string   `json:"invocationId,omitempty"`
	Records      []Record `json:"records"`
}

// TransformationResponse is the body returned to the stream.
type TransformationResponse struct {
	Records []Result `json:"records"`
}

// BatchObserver is notified of the duration of each batch.
type BatchObserver interface {
	ObserveBatch(elapsed time.Duration)
}

// Handler serves the record transformation endpoint.
type Handler struct {
	router   *Router
	observer BatchObserver
	logger   zerolog.Logger
}

// NewHandler creates the HTTP handler for r. observer may be nil.
func NewHandler(r *Router, observer BatchObserver, logger zerolog.Logger) *Handler {
	return &Handler{
		router:   r,
		observer: observer,
		logger:   logger.With().Str("component", "RouterHandler").Logger(),
	}
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST "+RecordsPath, h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body TransformationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBatchBytes))
	if err := dec.Decode(&body); err != nil {
		h.logger.Warn().Err(err).Msg("Rejecting undecodable batch.")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	results, err := h.router.RouteBatch(req.Context(), body.Records)
	if h.observer != nil {
		h.observer.ObserveBatch(time.Since(start))
	}
	if err != nil {
		h.logger.Error().Err(err).Str("invocation_id", body.InvocationID).Int("record_count", len(body.Records)).Msg("Batch failed.")
		http.Error(w, "batch failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(TransformationResponse{Records: results}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write response.")
	}
}
