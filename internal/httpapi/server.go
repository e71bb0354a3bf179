// Package httpapi serves evaluations over HTTP: single and batch evaluation,
// plus read access to the archive when one is configured.
package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/joelkehle/trialscope/internal/concept"
	"github.com/joelkehle/trialscope/internal/evaluation"
	"github.com/joelkehle/trialscope/internal/store"
)

const maxBodyBytes = 4 << 20

// Evaluator is satisfied by *evaluation.Service.
type Evaluator interface {
	Evaluate(ctx context.Context, d concept.Descriptor) (evaluation.Evaluation, error)
	EvaluateBatch(ctx context.Context, ds []concept.Descriptor) ([]evaluation.Evaluation, error)
}

// Archive is satisfied by *store.SQLiteStore.
type Archive interface {
	SaveAll(ctx context.Context, evs []evaluation.Evaluation) error
	Get(ctx context.Context, id string) (evaluation.Evaluation, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
}

type Config struct {
	Evaluator Evaluator
	// Archive is optional. Without it evaluations are not persisted and the
	// read endpoints answer 503.
	Archive Archive
	// Secret, when set, requires POST bodies to carry an HMAC-SHA256 signature
	// in X-Signature.
	Secret string
}

type Server struct {
	eval    Evaluator
	archive Archive
	secret  string
}

func NewServer(cfg Config) http.Handler {
	s := &Server{
		eval:    cfg.Evaluator,
		archive: cfg.Archive,
		secret:  strings.TrimSpace(cfg.Secret),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/evaluations", s.handleEvaluations)
	mux.HandleFunc("/v1/evaluations/batch", s.handleBatch)
	mux.HandleFunc("/v1/evaluations/", s.handleEvaluation)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var ae *Error
	if errors.As(err, &ae) {
		writeJSON(w, ae.Status, map[string]any{
			"ok": false,
			"error": map[string]any{
				"code":      ae.Code,
				"message":   ae.Message,
				"transient": ae.Transient,
			},
		})
		return
	}
	writeJSON(w, 500, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":      CodeInternal,
			"message":   err.Error(),
			"transient": true,
		},
	})
}

var errBodyTooLarge = newError(CodeValidation, fmt.Sprintf("request body too large (limit %d bytes)", maxBodyBytes), false)

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(blob) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return blob, nil
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) verifySignature(signature string, payload []byte) error {
	if s.secret == "" {
		return nil
	}
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return newError(CodeUnauthorized, "X-Signature required", false)
	}
	if strings.HasPrefix(strings.ToLower(sig), "sha256=") {
		sig = sig[len("sha256="):]
	}
	provided, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return newError(CodeUnauthorized, "invalid signature encoding", false)
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	_, _ = mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return newError(CodeUnauthorized, "invalid signature", false)
	}
	return nil
}

// signedBody reads the request body and checks its signature.
func (s *Server) signedBody(r *http.Request) ([]byte, error) {
	blob, err := readBody(r)
	if errors.Is(err, errBodyTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, validationJSONError(err)
	}
	if err := s.verifySignature(r.Header.Get("X-Signature"), blob); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, newError(CodeValidation, "request body is empty", false)
	}
	return blob, nil
}

func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createEvaluation(w, r)
	case http.MethodGet:
		s.listEvaluations(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createEvaluation(w http.ResponseWriter, r *http.Request) {
	blob, err := s.signedBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var d concept.Descriptor
	if err := json.Unmarshal(blob, &d); err != nil {
		writeError(w, validationJSONError(err))
		return
	}
	ev, err := s.eval.Evaluate(r.Context(), d)
	if err != nil {
		writeError(w, evaluationError(err))
		return
	}
	s.persist(r.Context(), []evaluation.Evaluation{ev})
	s.writeEvaluation(w, r, ev)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	blob, err := s.signedBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var ds []concept.Descriptor
	if err := json.Unmarshal(blob, &ds); err != nil {
		writeError(w, validationJSONError(err))
		return
	}
	if len(ds) == 0 {
		writeError(w, newError(CodeValidation, "batch is empty", false))
		return
	}
	evs, err := s.eval.EvaluateBatch(r.Context(), ds)
	if err != nil {
		writeError(w, evaluationError(err))
		return
	}
	s.persist(r.Context(), evs)
	if format := r.URL.Query().Get("format"); format == "markdown" || format == "html" {
		s.writeReport(w, format, evaluation.BuildBatchMarkdown(evs))
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "evaluations": evs})
}

func (s *Server) listEvaluations(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, newError(CodeUnavailable, "no archive configured", false))
		return
	}
	rows, err := s.archive.List(r.Context(), parseInt(r.URL.Query().Get("limit"), store.DefaultListLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []store.Summary{}
	}
	writeJSON(w, 200, map[string]any{"ok": true, "evaluations": rows})
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/evaluations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, newError(CodeNotFound, "unknown path", false))
		return
	}
	if s.archive == nil {
		writeError(w, newError(CodeUnavailable, "no archive configured", false))
		return
	}
	ev, err := s.archive.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, newError(CodeNotFound, "evaluation "+id+" not found", false))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeEvaluation(w, r, ev)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "archive": s.archive != nil})
}

func (s *Server) writeEvaluation(w http.ResponseWriter, r *http.Request, ev evaluation.Evaluation) {
	if format := r.URL.Query().Get("format"); format == "markdown" || format == "html" {
		s.writeReport(w, format, evaluation.BuildMarkdown(ev))
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "evaluation": ev})
}

func (s *Server) writeReport(w http.ResponseWriter, format, md string) {
	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(200)
		_, _ = io.WriteString(w, md)
		return
	}
	html, err := evaluation.RenderHTML(md)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(200)
	_, _ = io.WriteString(w, html)
}

// persist archives evaluations when an archive is configured. A failed write
// is logged; the caller still gets the evaluation.
func (s *Server) persist(ctx context.Context, evs []evaluation.Evaluation) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveAll(ctx, evs); err != nil {
		log.Printf("httpapi: archive write failed: %v", err)
	}
}

func evaluationError(err error) error {
	if errors.Is(err, evaluation.ErrMissingConceptID) {
		return newError(CodeValidation, err.Error(), false)
	}
	return err
}
