package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/essayist/internal/essay"
	"github.com/dgallion1/essayist/internal/markup"
	"github.com/dgallion1/essayist/internal/source"
)

const maxTransformBody = 5 << 20

// handleEssay fetches an essay from its repository and returns the
// transformed HTML document. With raw=true the Markdown is returned as is.
func (s *Server) handleEssay(w http.ResponseWriter, r *http.Request) {
	acct := chi.URLParam(r, "acct")
	repo := chi.URLParam(r, "repo")
	p := "/" + chi.URLParam(r, "*")
	q := r.URL.Query()
	ref := q.Get("ref")
	if ref == "" {
		ref = s.cfg.GHRef
	}

	ctx, cancel := s.transformContext(r.Context())
	defer cancel()

	doc, err := s.source.Fetch(ctx, acct, repo, ref, p)
	if err != nil {
		s.log.Warn("essay fetch failed", "acct", acct, "repo", repo, "path", p, "error", err)
		jsonError(w, err.Error(), statusFor(err, http.StatusBadGateway))
		return
	}

	if q.Get("raw") == "true" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write(doc.Markdown)
		return
	}

	res, err := s.transformer.Execute(ctx, essay.Request{
		Markdown: doc.Markdown,
		Path:     doc.Path,
		Site:     s.site(r, acct, repo, ref),
		Refresh:  q.Get("refresh") == "true",
	})
	if err != nil {
		jsonError(w, err.Error(), statusFor(err, http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Run-ID", res.Run.ID)
	w.Write([]byte(res.HTML))
}

type transformRequest struct {
	Markdown string `json:"markdown"`
	Path     string `json:"path"`
	Acct     string `json:"acct"`
	Repo     string `json:"repo"`
	Ref      string `json:"ref"`
	Refresh  bool   `json:"refresh"`
}

type transformResponse struct {
	HTML    string            `json:"html"`
	Title   string            `json:"title,omitempty"`
	Records []*markup.Record  `json:"records"`
	Run     essay.RunSnapshot `json:"run"`
}

// handleTransform transforms Markdown posted in the request body.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTransformBody)

	var req transformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Markdown == "" {
		jsonError(w, "markdown is required", http.StatusBadRequest)
		return
	}
	if req.Ref == "" {
		req.Ref = s.cfg.GHRef
	}
	if req.Acct == "" && req.Repo == "" {
		req.Acct, req.Repo = s.cfg.GHAcct, s.cfg.GHRepo
	}

	ctx, cancel := s.transformContext(r.Context())
	defer cancel()

	res, err := s.transformer.Execute(ctx, essay.Request{
		Markdown: []byte(req.Markdown),
		Path:     req.Path,
		Site:     s.site(r, req.Acct, req.Repo, req.Ref),
		Refresh:  req.Refresh,
	})
	if err != nil {
		jsonError(w, err.Error(), statusFor(err, http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(transformResponse{
		HTML:    res.HTML,
		Title:   res.Title,
		Records: res.Records,
		Run:     res.Run,
	})
}

func (s *Server) transformContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TransformTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.TransformTimeout)
}

func (s *Server) site(r *http.Request, acct, repo, ref string) essay.Site {
	host := s.cfg.Site
	if host == "" {
		host = r.Host
	}
	return essay.Site{
		Acct:      acct,
		Repo:      repo,
		Ref:       ref,
		Host:      host,
		LocalRoot: s.cfg.ContentRoot != "",
	}
}

// statusFor maps pipeline and source errors to HTTP status codes.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, essay.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return fallback
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
