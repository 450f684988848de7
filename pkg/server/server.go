// Package server fronts the repository engine over HTTP: a JSON API for
// browsing and merging, and the smart wire endpoints for clone, fetch,
// and push.
package server

import (
	"net/http"

	"forge/pkg/engine"
)

// Server ties the engine to an HTTP surface.
type Server struct {
	engine *engine.Engine
	logger *Logger
	cfg    Config
}

func New(eng *engine.Engine, logger *Logger, cfg Config) *Server {
	return &Server{engine: eng, logger: logger, cfg: cfg}
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/repos", s.handleListRepos)
	mux.HandleFunc("POST /api/repos/{name}", s.handleCreateRepo)
	mux.HandleFunc("DELETE /api/repos/{name}", s.handleDeleteRepo)
	mux.HandleFunc("GET /api/repos/{name}/branches", s.handleListBranches)
	mux.HandleFunc("GET /api/repos/{name}/tree/{rev}", s.handleListTree)
	mux.HandleFunc("GET /api/repos/{name}/tree/{rev}/{path...}", s.handleListTree)
	mux.HandleFunc("GET /api/repos/{name}/commits/{branch}", s.handleCommitHistory)
	mux.HandleFunc("GET /api/repos/{name}/diff/{base}/{head}", s.handleDiff)
	mux.HandleFunc("POST /api/repos/{name}/merge", s.handleMerge)

	mux.HandleFunc("GET /{repo}/info/refs", s.handleInfoRefs)
	mux.HandleFunc("POST /{repo}/git-upload-pack", s.handleUploadPack)
	mux.HandleFunc("POST /{repo}/git-receive-pack", s.handleReceivePack)

	return Chain(mux,
		Recover(s.logger),
		RequestLogger(s.logger),
		RequestID,
	)
}

// ListenAndServe runs the server on the configured address.
func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.cfg.ListenAddr, s.Handler())
}
