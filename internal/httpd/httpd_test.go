package httpd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoot = fstest.MapFS{
	"index.shtml": {Data: []byte("<p><!--#status--></p><table><!--#table--></table>")},
	"state.shtml": {Data: []byte("<i><!--#status--></i><i><!--# nope --></i><i><!--#broken")},
	"app.js":      {Data: []byte("console.log(1)")},
	"other.html":  {Data: []byte("<!--#status-->")},
}

type fakeSSI struct {
	passes int
	calls  []string
}

func (f *fakeSSI) Tags() []string { return []string{"status", "table", "averyveryverylongtagname"} }

func (f *fakeSSI) BeginPass(context.Context) { f.passes++ }

func (f *fakeSSI) Insert(_ context.Context, index int, insert []byte, part int) (int, int) {
	f.calls = append(f.calls, fmt.Sprintf("%d/%d", index, part))
	switch index {
	case 0:
		return copy(insert, "Pass"), LastTagPart
	case 1:
		n := copy(insert, fmt.Sprintf("<tr>%d</tr>", part+1))
		if part < 2 {
			return n, part + 1
		}
		return n, LastTagPart
	}
	return 0, LastTagPart
}

type fakePost struct {
	begun    []string
	segments [][]byte
	finished int
	failAt   int
}

func (p *fakePost) Begin(_ context.Context, conn, uri string, _ int64) error {
	if uri != "/ok.cgi" {
		return ErrRejected
	}
	p.begun = append(p.begun, conn)
	return nil
}

func (p *fakePost) Receive(_ context.Context, conn string, seg []byte) error {
	p.segments = append(p.segments, seg)
	if p.failAt > 0 && len(p.segments) == p.failAt {
		return errors.New("enough")
	}
	return nil
}

func (p *fakePost) Finished(context.Context, string) string {
	p.finished++
	return "/other.html"
}

func newTestServer(cgi []CGI, post PostHandler, ssi SSI, opts Options) *Server {
	return New(testRoot, cgi, post, ssi, opts, zerolog.Nop())
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRootRendersIndexWithTags(t *testing.T) {
	ssi := &fakeSSI{}
	s := newTestServer(nil, nil, ssi, Options{})

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>Pass</p><table><tr>1</tr><tr>2</tr><tr>3</tr></table>", rec.Body.String())
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, 1, ssi.passes, "one snapshot per render")
	assert.Equal(t, []string{"0/0", "1/0", "1/1", "1/2"}, ssi.calls)
}

func TestUnknownAndBrokenTags(t *testing.T) {
	s := newTestServer(nil, nil, &fakeSSI{}, Options{})
	rec := get(t, s, "/state.shtml")
	assert.Equal(t, "<i>Pass</i><i><b>***UNKNOWN TAG nope***</b></i><i><!--#broken", rec.Body.String())
}

func TestTagNameLimit(t *testing.T) {
	s := newTestServer(nil, nil, &fakeSSI{}, Options{})
	_, ok := s.tags["averyveryverylongtagname"]
	assert.False(t, ok)
}

func TestPlainFilesAreNotExpanded(t *testing.T) {
	s := newTestServer(nil, nil, &fakeSSI{}, Options{})
	rec := get(t, s, "/other.html")
	assert.Equal(t, "<!--#status-->", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = get(t, s, "/missing.html")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCGIGetsRawParamsAndPicksFile(t *testing.T) {
	var gotIndex int
	var got []Param
	cgi := []CGI{
		{Path: "/", Handler: func(context.Context, int, []Param) string { return "/index.shtml" }},
		{Path: "/x.cgi", Handler: func(_ context.Context, i int, p []Param) string {
			gotIndex, got = i, p
			return "/app.js"
		}},
	}
	s := newTestServer(cgi, nil, &fakeSSI{}, Options{})

	rec := get(t, s, "/x.cgi?text=Ol%C3%A1+mundo&flag&&r=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())
	assert.Equal(t, 1, gotIndex)
	assert.Equal(t, []Param{{"text", "Ol%C3%A1+mundo"}, {"flag", ""}, {"r", "1"}}, got)
}

func TestCGIParamLimit(t *testing.T) {
	var got []Param
	cgi := []CGI{{Path: "/x.cgi", Handler: func(_ context.Context, _ int, p []Param) string {
		got = p
		return "/app.js"
	}}}
	s := newTestServer(cgi, nil, nil, Options{})

	q := make([]string, 15)
	for i := range q {
		q[i] = fmt.Sprintf("p%d=%d", i, i)
	}
	get(t, s, "/x.cgi?"+strings.Join(q, "&"))
	assert.Len(t, got, DefaultMaxParams)
	assert.Equal(t, "p9", got[9].Name)
}

func TestPostRejectedBeforeBody(t *testing.T) {
	post := &fakePost{}
	s := newTestServer(nil, post, nil, Options{})

	body := &countingReader{r: strings.NewReader("a=1")}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nope.cgi", body))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Zero(t, body.n, "body untouched")
	assert.Zero(t, post.finished)
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestPostDeliversSegments(t *testing.T) {
	post := &fakePost{}
	s := newTestServer(nil, post, &fakeSSI{}, Options{SegmentLen: 4})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ok.cgi", strings.NewReader("r=200&g=1")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<!--#status-->", rec.Body.String(), "finished picks the file")

	require.Len(t, post.segments, 3)
	assert.Equal(t, "r=20", string(post.segments[0]))
	assert.Equal(t, "0&g=", string(post.segments[1]))
	assert.Equal(t, "1", string(post.segments[2]))
	assert.Equal(t, 1, post.finished)
	require.Len(t, post.begun, 1)
}

func TestPostReceiveErrorStopsDelivery(t *testing.T) {
	post := &fakePost{failAt: 1}
	s := newTestServer(nil, post, nil, Options{SegmentLen: 2})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ok.cgi", strings.NewReader("abcdef")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, post.segments, 1)
	assert.Equal(t, 1, post.finished)
}

func TestPostTooLarge(t *testing.T) {
	post := &fakePost{}
	s := newTestServer(nil, post, nil, Options{MaxPostPayload: 8})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ok.cgi", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Len(t, post.begun, 1)
	assert.Empty(t, post.segments, "declared length checked before the body")
	assert.Equal(t, 1, post.finished)

	req := httptest.NewRequest(http.MethodPost, "/ok.cgi", io.MultiReader(strings.NewReader("0123456789")))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 2, post.finished, "connection state is still released")
}

func TestOversizedPostToUnknownPath(t *testing.T) {
	post := &fakePost{}
	s := newTestServer(nil, post, nil, Options{MaxPostPayload: 8})

	body := &countingReader{r: strings.NewReader(strings.Repeat("x", 5000))}
	req := httptest.NewRequest(http.MethodPost, "/nope.cgi", body)
	req.ContentLength = 5000
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Zero(t, body.n)
	assert.Zero(t, post.finished)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(nil, nil, nil, Options{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExtraHandlerBypassesLock(t *testing.T) {
	s := newTestServer(nil, nil, nil, Options{})
	s.Handle("/ws", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := get(t, s, "/ws")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := newTestServer(nil, nil, &fakeSSI{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Serve(ctx, ln))

	resp, err := http.Get("http://" + ln.Addr().String() + "/app.js")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "console.log(1)", string(b))

	assert.Equal(t, ln.Addr(), s.Addr())

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
	_, err = http.Get("http://" + ln.Addr().String() + "/app.js")
	assert.Error(t, err)
}
