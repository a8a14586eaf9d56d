package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "nikkeicli/internal/errors"
	"nikkeicli/internal/services"
)

// AnalysisHandler exposes the contribution analysis over HTTP.
type AnalysisHandler struct {
	service      AnalysisServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *validator.Validate
}

// NewAnalysisHandler creates an analysis handler.
func NewAnalysisHandler(service AnalysisServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "analysis_handler")),
		errorHandler: errorHandler,
		validate:     validator.New(),
	}
}

// Routes returns the analysis routes.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/analyze", h.RunAnalysis)
	r.Get("/status", h.GetStatus)
	r.Get("/data", h.GetData)
	r.Get("/movers", h.GetMovers)

	return r
}

// analyzeRequest is the optional POST /analyze body.
type analyzeRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=realtime batch"`
}

// RunAnalysis handles POST /api/analysis/analyze. A second request while a
// run is in progress gets 409 rather than queuing.
func (h *AnalysisHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	req := analyzeRequest{Mode: "realtime"}
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusBadRequest,
				"INVALID_REQUEST",
				"Invalid request body",
				map[string]interface{}{"error": err.Error()},
			))
			return
		}
		if req.Mode == "" {
			req.Mode = "realtime"
		}
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("mode", "Mode must be one of: realtime, batch"))
		return
	}

	h.logger.InfoContext(r.Context(), "starting analysis",
		slog.String("request_id", reqID),
		slog.String("mode", req.Mode),
	)

	run := h.service.RunRealtime
	if req.Mode == "batch" {
		run = h.service.RunBatch
	}

	snapshot, err := run(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "analysis failed",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID),
			slog.String("mode", req.Mode),
		)

		switch {
		case errors.Is(err, services.ErrAnalysisRunning):
			h.errorHandler.HandleError(w, r, apierrors.ErrAnalysisRunning)
		case errors.Is(err, services.ErrNoObservations), errors.Is(err, services.ErrNoIndexChange):
			h.errorHandler.HandleError(w, r, apierrors.AnalysisFailedError(err))
		default:
			h.errorHandler.HandleError(w, r, err)
		}
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   snapshot,
	})
}

// GetStatus handles GET /api/analysis/status.
func (h *AnalysisHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   h.service.Status(),
	})
}

// GetData handles GET /api/analysis/data, returning the latest snapshot.
func (h *AnalysisHandler) GetData(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Latest()
	if err != nil {
		if errors.Is(err, services.ErrNoSnapshot) {
			h.errorHandler.HandleError(w, r, apierrors.ErrNoAnalysisData)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   snapshot,
	})
}

// GetMovers handles GET /api/analysis/movers with an optional limit.
func (h *AnalysisHandler) GetMovers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "10"
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 100 {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("limit", "Limit must be a number between 1 and 100"))
		return
	}

	h.logger.InfoContext(r.Context(), "fetching market movers",
		slog.String("request_id", reqID),
		slog.Int("limit", limit),
	)

	gainers, losers, err := h.service.Movers(limit)
	if err != nil {
		if errors.Is(err, services.ErrNoSnapshot) {
			h.errorHandler.HandleError(w, r, apierrors.ErrNoAnalysisData)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"gainers": gainers,
			"losers":  losers,
		},
		"count": len(gainers) + len(losers),
	})
}
