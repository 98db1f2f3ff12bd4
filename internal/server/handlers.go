package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/contactkeval/iv-terminal/internal/logger"
	"github.com/contactkeval/iv-terminal/internal/market"
)

var errNotFound = errors.New("not found")

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Ticker string `json:"ticker,omitempty"`
}

// SetResponse writes obj as a 200 JSON body.
func SetResponse[T any](obj *T, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(obj); err != nil {
		return err
	}
	return nil
}

// SetErrorResponse writes {error, ticker} with statusCode.
func SetErrorResponse(ticker string, statusCode int, err error, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := errorResponse{Error: err.Error(), Ticker: ticker}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		return encodeErr
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: s.now().Format(time.RFC3339),
		Version:   Version,
	}
	if err := SetResponse(&resp, w); err != nil {
		logger.Errorf("health: %v", err)
	}
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, "quote", s.service.Quote, func(resp *market.QuoteResponse) string { return resp.Error })
}

func (s *Server) options(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, "options", s.service.Options, func(resp *market.OptionsResponse) string { return resp.Error })
}

func (s *Server) ivSurface(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, "iv-surface", s.service.Surface, func(resp *market.SurfaceResponse) string { return resp.Error })
}

func (s *Server) termStructure(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, "term-structure", s.service.TermStructure, func(resp *market.TermStructureResponse) string { return resp.Error })
}

// serve runs one service query. Failures become 500 {error, ticker};
// no-data answers stay 200 and are counted.
func serve[T any](s *Server, w http.ResponseWriter, r *http.Request, route string,
	query func(context.Context, string) (*T, error), reason func(*T) string) {
	ticker := mux.Vars(r)["ticker"]

	resp, err := query(r.Context(), ticker)
	if err != nil {
		logger.Errorf("%s %s [%s]: %v", route, ticker, RequestID(r.Context()), err)
		if werr := SetErrorResponse(ticker, http.StatusInternalServerError, err, w); werr != nil {
			logger.Errorf("%s: writing error response: %v", route, werr)
		}
		return
	}

	if msg := reason(resp); msg != "" {
		s.metrics.noData.WithLabelValues(route, msg).Inc()
	}
	if err := SetResponse(resp, w); err != nil {
		logger.Errorf("%s: writing response: %v", route, err)
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	_ = SetErrorResponse("", http.StatusNotFound, errNotFound, w)
}
