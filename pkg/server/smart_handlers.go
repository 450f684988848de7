package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	serviceUploadPack  = "git-upload-pack"
	serviceReceivePack = "git-receive-pack"
)

// repoFromWirePath maps the "{name}.git" wire path segment to the
// repository name.
func repoFromWirePath(segment string) (string, bool) {
	name, ok := strings.CutSuffix(segment, ".git")
	return name, ok && name != ""
}

func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	name, ok := repoFromWirePath(r.PathValue("repo"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	service := r.URL.Query().Get("service")
	if service != serviceUploadPack && service != serviceReceivePack {
		http.Error(w, "unsupported service", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-"+service+"-advertisement")
	if err := s.engine.AdvertiseRefs(name, w); err != nil {
		s.writeError(w, r, err)
	}
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	s.serveWire(w, r, serviceUploadPack)
}

func (s *Server) handleReceivePack(w http.ResponseWriter, r *http.Request) {
	s.serveWire(w, r, serviceReceivePack)
}

// serveWire runs one upload-pack or receive-pack exchange, transparently
// handling zstd content encoding on both directions.
func (s *Server) serveWire(w http.ResponseWriter, r *http.Request, service string) {
	name, ok := repoFromWirePath(r.PathValue("repo"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	body := io.Reader(r.Body)
	if strings.Contains(r.Header.Get("Content-Encoding"), "zstd") {
		dec, err := zstd.NewReader(r.Body)
		if err != nil {
			http.Error(w, "bad zstd stream", http.StatusBadRequest)
			return
		}
		defer dec.Close()
		body = dec
	}

	out := io.Writer(w)
	var enc *zstd.Encoder
	if strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") {
		var err error
		enc, err = zstd.NewWriter(w)
		if err == nil {
			w.Header().Set("Content-Encoding", "zstd")
			out = enc
		}
	}
	w.Header().Set("Content-Type", "application/x-"+service+"-result")

	var err error
	switch service {
	case serviceUploadPack:
		err = s.engine.UploadPack(r.Context(), name, body, out)
	case serviceReceivePack:
		err = s.engine.ReceivePack(r.Context(), name, body, out)
	}
	if enc != nil {
		_ = enc.Close()
	}
	if err != nil {
		// Headers are already gone; the failure travels in-band on the
		// sideband error channel. Log it here.
		s.logger.WithRequestID(r.Context()).Warn("wire exchange failed",
			zap.String("service", service),
			zap.String("repo", name),
			zap.Error(err),
		)
	}
}
