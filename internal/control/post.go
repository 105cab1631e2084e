package control

import (
	"context"
	"fmt"

	"github.com/coreman2200/panelhttpd/internal/httpd"
	"github.com/coreman2200/panelhttpd/internal/param"
	"github.com/coreman2200/panelhttpd/internal/textsan"
)

// Value buffer sizes of the POST parameters. A value that does not fit,
// terminator byte included, is ignored.
const (
	ledStateBuf = 8
	levelBuf    = 8
	textBuf     = (textsan.DisplayWidth+1)*4 + 1
	dataBuf     = 256
)

// postURIs are the paths that accept a POST.
var postURIs = map[string]bool{
	"/led.cgi":    true,
	"/rgb.cgi":    true,
	"/oled.cgi":   true,
	"/matrix.cgi": true,
}

// post is the body of one POST exchange, kept as it arrived.
type post struct {
	uri  string
	body param.Stream
}

var _ httpd.PostHandler = (*Controller)(nil)

// Begin accepts POSTs to the control endpoints only.
func (c *Controller) Begin(_ context.Context, conn, uri string, _ int64) error {
	if !postURIs[uri] {
		return fmt.Errorf("%s: %w", uri, httpd.ErrRejected)
	}
	c.posts[conn] = &post{uri: uri}
	return nil
}

// Receive keeps a body segment. Segments are never joined.
func (c *Controller) Receive(_ context.Context, conn string, segment []byte) error {
	p, ok := c.posts[conn]
	if !ok {
		return fmt.Errorf("unknown connection %s", conn)
	}
	p.body = append(p.body, segment)
	return nil
}

// Finished applies every parameter the body carries, whatever the URI:
// led_state, then r+g+b (all three required), text and data.
func (c *Controller) Finished(ctx context.Context, conn string) string {
	p, ok := c.posts[conn]
	delete(c.posts, conn)
	if !ok {
		return Redirect
	}
	s := p.body
	c.log.Debug().Str("uri", p.uri).Int("bytes", s.Len()).Int("segments", len(s)).Msg("post finished")

	if v, ok := param.Value(s, "led_state=", make([]byte, ledStateBuf)); ok {
		c.setStatus(string(v) == "ON")
	}

	rb, gb, bb := make([]byte, levelBuf), make([]byte, levelBuf), make([]byte, levelBuf)
	r, rok := param.Value(s, "r=", rb)
	g, gok := param.Value(s, "g=", gb)
	b, bok := param.Value(s, "b=", bb)
	if rok && gok && bok {
		c.setRGB(ParseLevel(string(r)), ParseLevel(string(g)), ParseLevel(string(b)))
	}

	if v, ok := param.Value(s, "text=", make([]byte, textBuf)); ok {
		c.pushText(ctx, v)
	}

	if v, ok := param.Value(s, "data=", make([]byte, dataBuf)); ok {
		c.setMatrix(string(textsan.Decode(v)))
	}
	return Redirect
}
