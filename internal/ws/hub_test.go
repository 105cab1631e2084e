package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/panelhttpd/internal/arbiter"
	"github.com/coreman2200/panelhttpd/internal/board"
	"github.com/coreman2200/panelhttpd/internal/diagnostics"
	"github.com/coreman2200/panelhttpd/internal/display"
)

type lines struct {
	list []string
	err  error
}

func (l *lines) Lines(context.Context, time.Duration) ([]string, error) {
	return l.list, l.err
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return c
}

func read(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := c.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func TestBroadcastState(t *testing.T) {
	sim := board.NewSim()
	sim.Press(board.Pressed{B: true})
	sim.Move(board.Axes{X: 100, Y: 200})
	h := NewHub(board.NewSimBoard(sim, zerolog.Nop()), &lines{list: []string{"", "hello"}}, time.Hour, 0, zerolog.Nop())
	c := dial(t, h)

	h.Broadcast(h.Sample(context.Background()))

	var st State
	read(t, c, &st)
	assert.NotZero(t, st.T)
	assert.True(t, st.Snapshot.Buttons.B)
	assert.Equal(t, board.Axes{X: 100, Y: 200}, st.Snapshot.Joy)
	assert.Equal(t, []string{"", "hello"}, st.Lines)
}

func TestSampleKeepsLinesWhenDisplayBusy(t *testing.T) {
	src := &lines{list: []string{"first"}}
	h := NewHub(board.NewSimBoard(board.NewSim(), zerolog.Nop()), src, time.Hour, 0, zerolog.Nop())
	h.Sample(context.Background())

	src.list, src.err = nil, arbiter.ErrTimeout
	st := h.Sample(context.Background())
	assert.Equal(t, []string{"first"}, st.Lines)
}

func TestSampleReadsDisplay(t *testing.T) {
	arb := arbiter.New(zerolog.Nop())
	arb.Init(arbiter.Display)
	disp := display.New(arb, display.NewConsole(zerolog.Nop()), zerolog.Nop())
	require.NoError(t, disp.PushLine(context.Background(), "ready"))

	h := NewHub(board.NewSimBoard(board.NewSim(), zerolog.Nop()), disp, time.Hour, 10*time.Millisecond, zerolog.Nop())
	st := h.Sample(context.Background())
	require.Len(t, st.Lines, display.Lines)
	assert.Equal(t, "ready", st.Lines[display.Lines-1])
}

func TestNewClientGetsLastState(t *testing.T) {
	h := NewHub(board.NewSimBoard(board.NewSim(), zerolog.Nop()), &lines{list: []string{"x"}}, time.Hour, 0, zerolog.Nop())
	h.Sample(context.Background())
	c := dial(t, h)

	var st State
	read(t, c, &st)
	assert.Equal(t, []string{"x"}, st.Lines)
	assert.Equal(t, uint16(board.AxisCenter), st.Snapshot.Joy.X)
}

func TestReportPushesDiagnostic(t *testing.T) {
	h := NewHub(board.NewSimBoard(board.NewSim(), zerolog.Nop()), &lines{}, time.Hour, 0, zerolog.Nop())
	c := dial(t, h)

	h.Report(diagnostics.Busy("oled", errors.New("timeout")))

	var d diagnostics.Diagnostic
	read(t, c, &d)
	assert.Equal(t, diagnostics.CodeBusy, d.Code)
	assert.Equal(t, diagnostics.Warn, d.Severity)
}

func TestRunTicksAndClosesClients(t *testing.T) {
	h := NewHub(board.NewSimBoard(board.NewSim(), zerolog.Nop()), &lines{}, 10*time.Millisecond, 0, zerolog.Nop())
	c := dial(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	var st State
	read(t, c, &st)
	assert.NotZero(t, st.T)

	cancel()
	<-done
	assert.Zero(t, h.Clients())
}

func TestHealth(t *testing.T) {
	h := NewHub(board.NewSimBoard(board.NewSim(), zerolog.Nop()), &lines{}, time.Hour, 0, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp struct {
		Clients int `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Clients)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
