package telemetry

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/panelhttpd/internal/board"
)

// packet reads one MQTT control packet: the type nibble and the body.
func packet(r *bufio.Reader) (byte, []byte, error) {
	h, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	n, mul := 0, 1
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		n += int(b&0x7f) * mul
		if b&0x80 == 0 {
			break
		}
		mul *= 128
	}
	body := make([]byte, n)
	_, err = io.ReadFull(r, body)
	return h >> 4, body, err
}

type publish struct {
	topic string
	msg   Message
}

// broker accepts one connection on c and forwards every PUBLISH it gets.
func broker(t *testing.T, c net.Conn, accept bool, out chan<- publish) {
	t.Helper()
	defer c.Close()
	r := bufio.NewReader(c)
	typ, _, err := packet(r)
	if err != nil || typ != 1 {
		return
	}
	code := byte(0)
	if !accept {
		code = 5
	}
	if _, err := c.Write([]byte{0x20, 0x02, 0x00, code}); err != nil {
		return
	}
	for {
		typ, body, err := packet(r)
		if err != nil {
			return
		}
		if typ != 3 || len(body) < 2 {
			continue
		}
		tl := int(binary.BigEndian.Uint16(body))
		var p publish
		p.topic = string(body[2 : 2+tl])
		if json.Unmarshal(body[2+tl:], &p.msg) == nil {
			select {
			case out <- p:
			default:
			}
		}
	}
}

func pipeDial(t *testing.T, accept bool, out chan<- publish) func(context.Context, string, string) (net.Conn, error) {
	return func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		go broker(t, server, accept, out)
		return client, nil
	}
}

func TestPublishesSnapshots(t *testing.T) {
	sim := board.NewSim()
	sim.Press(board.Pressed{Joy: true})
	out := make(chan publish, 8)
	p := New(board.NewSimBoard(sim, zerolog.Nop()), Options{
		ClientID: "test",
		Topic:    "panel/state",
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
		Dial:     pipeDial(t, true, out),
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case got := <-out:
			assert.Equal(t, "panel/state", got.topic)
			assert.True(t, got.msg.Snapshot.Buttons.Joy)
			assert.Equal(t, uint16(board.AxisCenter), got.msg.Snapshot.Joy.Y)
		case <-time.After(2 * time.Second):
			t.Fatal("no publish")
		}
	}
	cancel()
	<-done
	assert.GreaterOrEqual(t, p.Published(), int64(2))
}

func TestRefusedConnection(t *testing.T) {
	p := New(board.NewSimBoard(board.NewSim(), zerolog.Nop()), Options{
		Topic:    "t",
		Interval: time.Hour,
		Timeout:  time.Second,
		Dial:     pipeDial(t, false, make(chan publish, 1)),
	}, zerolog.Nop())

	err := p.session(context.Background())
	require.Error(t, err)
	assert.Zero(t, p.Published())
}

func TestRunRetriesDial(t *testing.T) {
	calls := make(chan struct{}, 8)
	p := New(board.NewSimBoard(board.NewSim(), zerolog.Nop()), Options{
		Topic:    "t",
		Interval: time.Hour,
		Retry:    5 * time.Millisecond,
		Dial: func(context.Context, string, string) (net.Conn, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return nil, errors.New("refused")
		},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("no redial")
		}
	}
	cancel()
	<-done
}

func TestPacketIDNeverZero(t *testing.T) {
	assert.Equal(t, uint16(1), packetID(0))
	assert.Equal(t, uint16(2), packetID(1))
	assert.Equal(t, uint16(0xFFFF), packetID(0xFFFE))
	assert.Equal(t, uint16(1), packetID(0xFFFF))
}

func TestSessionPublishesBeforeInterval(t *testing.T) {
	out := make(chan publish, 1)
	p := New(board.NewSimBoard(board.NewSim(), zerolog.Nop()), Options{
		Topic:    "panel/state",
		Interval: time.Hour,
		Timeout:  time.Second,
		Dial:     pipeDial(t, true, out),
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.session(ctx) }()
	select {
	case got := <-out:
		assert.Equal(t, "panel/state", got.topic)
	case <-time.After(2 * time.Second):
		t.Fatal("no publish")
	}
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), p.Published())
}
