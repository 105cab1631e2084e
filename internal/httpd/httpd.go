// Package httpd is a small embedded-style web server.
//
// Applications plug into it through three callback tables instead of
// http.Handlers:
//
//   - CGI: exact paths whose handler sees the raw query parameters and
//     returns the URI of the file to render.
//   - POST: Begin accepts or rejects a request before its body is read,
//     Receive is handed the body in segments, Finished names the file to
//     render.
//   - SSI: files ending in .shtml, .shtm or .ssi have their <!--#tag-->
//     placeholders replaced through a tag callback that may ask to be called
//     again for the same tag (multipart tags).
//
// Requests are handled one at a time. Everything else is served from an
// fs.FS.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Defaults of Options.
const (
	DefaultMaxParams      = 10
	DefaultInsertLen      = 256
	DefaultSegmentLen     = 512
	DefaultMaxPostPayload = 4096
	DefaultMaxTagNameLen  = 16

	// LastTagPart is returned by an SSI callback that has nothing more to
	// insert for the current tag.
	LastTagPart = -1

	shutdownTimeout = 5 * time.Second
)

// ErrRejected is returned by PostHandler.Begin for a URI that takes no POST.
var ErrRejected = errors.New("httpd: post rejected")

// Param is one name=value pair of a query string, as sent by the client.
// Values are not percent-decoded; a name without '=' has an empty value.
type Param struct {
	Name  string
	Value string
}

// CGIHandler handles a request for one CGI path. index is the position of
// the path in the table. It returns the URI to render.
type CGIHandler func(ctx context.Context, index int, params []Param) string

// CGI binds an exact path to its handler.
type CGI struct {
	Path    string
	Handler CGIHandler
}

// PostHandler follows a POST request through its life. conn identifies the
// exchange and is the same across the three calls.
type PostHandler interface {
	// Begin accepts the request or returns an error to reject it with 501
	// before any of the body is read.
	Begin(ctx context.Context, conn, uri string, contentLength int64) error
	// Receive is handed the next body segment. The segment is not reused.
	// An error stops the delivery of the rest of the body.
	Receive(ctx context.Context, conn string, segment []byte) error
	// Finished returns the URI to render as the response.
	Finished(ctx context.Context, conn string) string
}

// SSI resolves template tags.
type SSI interface {
	// Tags returns the known tag names; a tag's index is its position.
	Tags() []string
	// BeginPass is called once before the tags of one file are resolved.
	BeginPass(ctx context.Context)
	// Insert writes the text for tag index, part part, into insert and
	// returns how much it wrote and the next part, or LastTagPart.
	Insert(ctx context.Context, index int, insert []byte, part int) (n int, next int)
}

// Options tunes the engine limits. Zero values take the defaults.
type Options struct {
	Addr           string
	MaxParams      int
	InsertLen      int
	SegmentLen     int
	MaxPostPayload int64
	MaxTagNameLen  int
}

func (o *Options) setDefaults() {
	if o.MaxParams <= 0 {
		o.MaxParams = DefaultMaxParams
	}
	if o.InsertLen <= 0 {
		o.InsertLen = DefaultInsertLen
	}
	if o.SegmentLen <= 0 {
		o.SegmentLen = DefaultSegmentLen
	}
	if o.MaxPostPayload <= 0 {
		o.MaxPostPayload = DefaultMaxPostPayload
	}
	if o.MaxTagNameLen <= 0 {
		o.MaxTagNameLen = DefaultMaxTagNameLen
	}
}

// Server is the engine. Create it with New.
type Server struct {
	mu    sync.Mutex
	opts  Options
	root  fs.FS
	cgi   []CGI
	post  PostHandler
	ssi   SSI
	tags  map[string]int
	extra map[string]http.Handler

	httpServer *http.Server
	addr       net.Addr
	done       chan struct{}
	log        zerolog.Logger
}

// New returns a Server serving files from root. post and ssi may be nil.
func New(root fs.FS, cgi []CGI, post PostHandler, ssi SSI, opts Options, log zerolog.Logger) *Server {
	opts.setDefaults()
	s := &Server{
		opts:  opts,
		root:  root,
		cgi:   cgi,
		post:  post,
		ssi:   ssi,
		tags:  map[string]int{},
		extra: map[string]http.Handler{},
		done:  make(chan struct{}),
		log:   log,
	}
	if ssi != nil {
		for i, t := range ssi.Tags() {
			if len(t) > opts.MaxTagNameLen {
				log.Warn().Str("tag", t).Int("max", opts.MaxTagNameLen).Msg("tag name too long, never matched")
				continue
			}
			s.tags[t] = i
		}
	}
	return s
}

// Handle serves path with h outside the callback protocol. Such requests
// are not serialized with the rest, so long-lived handlers like websockets
// don't stall the engine.
func (s *Server) Handle(path string, h http.Handler) {
	s.extra[path] = h
}

// Start listens on Options.Addr and serves in the background until ctx is
// cancelled. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler: s,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	s.addr = ln.Addr()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("http server shutdown error")
		}
	}()
	return nil
}

// Addr is the address the server listens on, nil before Start.
func (s *Server) Addr() net.Addr { return s.addr }

// Done is closed once the server has shut down.
func (s *Server) Done() <-chan struct{} { return s.done }
