package httpd

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

const defaultFile = "/index.shtml"

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := s.extra[r.URL.Path]; ok {
		h.ServeHTTP(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.serveGet(w, r)
	case http.MethodPost:
		s.servePost(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveGet(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Path
	for i, c := range s.cgi {
		if c.Path == uri {
			params := s.splitQuery(r.URL.RawQuery)
			uri = c.Handler(r.Context(), i, params)
			s.log.Debug().Str("path", c.Path).Int("params", len(params)).Str("render", uri).Msg("cgi")
			break
		}
	}
	s.render(w, r, uri)
}

// splitQuery cuts a raw query into at most MaxParams pairs.
func (s *Server) splitQuery(raw string) []Param {
	if raw == "" {
		return nil
	}
	var params []Param
	for _, kv := range strings.Split(raw, "&") {
		if len(params) == s.opts.MaxParams {
			break
		}
		if kv == "" {
			continue
		}
		name, value, _ := strings.Cut(kv, "=")
		params = append(params, Param{Name: name, Value: value})
	}
	return params
}

func (s *Server) servePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.post == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	conn := uuid.NewString()
	if err := s.post.Begin(ctx, conn, r.URL.Path, r.ContentLength); err != nil {
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("post rejected")
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	if r.ContentLength > s.opts.MaxPostPayload {
		s.log.Warn().Str("path", r.URL.Path).Int64("length", r.ContentLength).Msg("post body too large")
		s.post.Finished(ctx, conn)
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}

	tooLarge := false
	body := io.LimitReader(r.Body, s.opts.MaxPostPayload+1)
	var total int64
	for {
		seg := make([]byte, s.opts.SegmentLen)
		n, err := io.ReadFull(body, seg)
		if n > 0 {
			total += int64(n)
			if total > s.opts.MaxPostPayload {
				tooLarge = true
				break
			}
			if rerr := s.post.Receive(ctx, conn, seg[:n]); rerr != nil {
				s.log.Debug().Err(rerr).Str("conn", conn).Msg("receive stopped")
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.log.Warn().Err(err).Str("conn", conn).Msg("post body read failed")
			}
			break
		}
	}

	uri := s.post.Finished(ctx, conn)
	if tooLarge {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}
	s.log.Debug().Str("path", r.URL.Path).Int64("bytes", total).Str("render", uri).Msg("post")
	s.render(w, r, uri)
}

// render serves the file at uri, running SSI files through the tag
// callback.
func (s *Server) render(w http.ResponseWriter, r *http.Request, uri string) {
	if uri == "" || uri == "/" {
		uri = defaultFile
	}
	name := strings.TrimPrefix(path.Clean(uri), "/")
	content, err := fs.ReadFile(s.root, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	ext := path.Ext(name)
	if isSSI(ext) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Cache-Control", "no-cache")
		var out bytes.Buffer
		s.expand(r.Context(), &out, content)
		content = out.Bytes()
	} else if ct := mime.TypeByExtension(ext); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(content)
	}
}

func isSSI(ext string) bool {
	switch ext {
	case ".shtml", ".shtm", ".ssi":
		return true
	}
	return false
}
