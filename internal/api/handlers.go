package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

type scrapeRequest struct {
	URL  string `json:"url"`
	Idle int    `json:"idle,omitempty"`
	Lang string `json:"lang,omitempty"`
	Mode string `json:"mode,omitempty"`
}

type scrapeResponse struct {
	Status    string           `json:"status"`
	TargetURL string           `json:"targetUrl"`
	Result    *scraper.Outcome `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// scrape runs one synchronous scrape: the session is acquired and
// released within this request's lifetime.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	outcome, err := s.runner.Scrape(r.Context(), req)
	if err != nil {
		s.logger.Error("synchronous scrape failed",
			zap.String("url", req.URL),
			zap.String("stage", scraper.Stage(err)),
			zap.Error(err),
		)
		s.writeJSON(w, http.StatusInternalServerError, scrapeResponse{
			Status:    "failed",
			TargetURL: req.URL,
			Error:     err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, scrapeResponse{
		Status:    "success",
		TargetURL: req.URL,
		Result:    &outcome,
	})
}

// enqueue validates the request, hands it to the queue, and returns 202;
// processing happens asynchronously in the batch consumer.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "encode request")
		return
	}
	if err := s.publisher.Publish(r.Context(), payload); err != nil {
		s.logger.Error("enqueue scrape failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	s.writeJSON(w, http.StatusAccepted, scrapeResponse{
		Status:    "queued",
		TargetURL: req.URL,
	})
}

// decodeRequest parses the request body into a defaults-filled, valid
// scrape request, writing the error response itself on failure.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (scraper.Request, bool) {
	var body scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return scraper.Request{}, false
	}
	if body.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return scraper.Request{}, false
	}

	req := scraper.Request{
		URL:          body.URL,
		IdleWindowMs: body.Idle,
		Language:     body.Lang,
		Mode:         scraper.Mode(body.Mode),
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		msg := "invalid request"
		if errors.Is(err, scraper.ErrValidation) {
			msg = err.Error()
		}
		s.writeError(w, http.StatusBadRequest, msg)
		return scraper.Request{}, false
	}
	return req, true
}
