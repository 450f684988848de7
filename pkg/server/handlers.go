package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"forge/pkg/engine"
	"forge/pkg/object"
	"forge/pkg/repo"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrRepoNotFound),
		errors.Is(err, repo.ErrRefNotFound),
		errors.Is(err, repo.ErrPathNotFound),
		errors.Is(err, object.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrRepoExists):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidRepoName):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.WithRequestID(r.Context()).Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.ListRepositories()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"repos": names})
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		DefaultBranch string `json:"default_branch"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	if err := s.engine.CreateRepository(name, body.DefaultBranch); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRepository(r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.engine.ListBranches(r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (s *Server) handleListTree(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.ListTree(r.Context(),
		r.PathValue("name"), r.PathValue("rev"), r.PathValue("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": items})
}

func (s *Server) handleCommitHistory(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	commits, err := s.engine.CommitHistory(r.Context(),
		r.PathValue("name"), r.PathValue("branch"), page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	changes, patch, err := s.engine.DiffRefs(r.Context(),
		r.PathValue("name"), r.PathValue("base"), r.PathValue("head"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"changes": changes,
		"patch":   patch,
	})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Base    string `json:"base"`
		Head    string `json:"head"`
		Author  string `json:"author"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Base == "" || body.Head == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base and head are required"})
		return
	}
	if body.Author == "" {
		body.Author = "forge"
	}

	result, err := s.engine.Merge(r.Context(),
		r.PathValue("name"), body.Base, body.Head, body.Author, body.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Status == repo.MergeConflicted || result.Status == repo.MergeRefMoved {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]any{
		"status":    result.Status.String(),
		"commit":    result.CommitHash,
		"conflicts": result.Conflicts,
	})
}
