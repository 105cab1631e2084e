// Package telemetry publishes board snapshots to an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	mqtt "github.com/soypat/natiu-mqtt"

	"github.com/coreman2200/panelhttpd/internal/board"
)

// Source supplies the snapshot to publish.
type Source interface {
	Sample(ctx context.Context) board.Snapshot
}

type Options struct {
	Addr     string
	ClientID string
	Topic    string
	Interval time.Duration
	// Timeout bounds the broker handshake and each publish.
	Timeout time.Duration
	// Retry is the wait before reconnecting.
	Retry time.Duration
	Dial  func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Message is the published payload.
type Message struct {
	T        int64          `json:"t"`
	Snapshot board.Snapshot `json:"snapshot"`
}

var ErrNotConnected = errors.New("telemetry: broker did not accept the connection")

// Publisher sends one QoS0 message per interval while Run is active.
type Publisher struct {
	src       Source
	o         Options
	log       zerolog.Logger
	published atomic.Int64
}

func New(src Source, o Options, log zerolog.Logger) *Publisher {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Retry <= 0 {
		o.Retry = 2 * time.Second
	}
	if o.Dial == nil {
		o.Dial = (&net.Dialer{}).DialContext
	}
	return &Publisher{src: src, o: o, log: log}
}

// Published returns the number of messages sent so far.
func (p *Publisher) Published() int64 { return p.published.Load() }

// Run publishes until ctx is done, reconnecting after every failure.
func (p *Publisher) Run(ctx context.Context) {
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			return
		}
		p.log.Warn().Err(err).Str("broker", p.o.Addr).Dur("retry", p.o.Retry).Msg("mqtt session ended")
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.o.Retry):
		}
	}
}

func (p *Publisher) session(ctx context.Context) error {
	conn, err := p.o.Dial(ctx, "tcp", p.o.Addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client, err := p.connect(conn)
	if err != nil {
		return err
	}
	p.log.Info().Str("broker", p.o.Addr).Str("topic", p.o.Topic).Msg("mqtt connected")

	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return err
	}
	vars := mqtt.VariablesPublish{TopicName: []byte(p.o.Topic)}

	t := time.NewTicker(p.o.Interval)
	defer t.Stop()
	for {
		if err := p.publish(ctx, conn, client, flags, vars); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Publisher) connect(conn net.Conn) (*mqtt.Client, error) {
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(_ mqtt.Header, _ mqtt.VariablesPublish, r io.Reader) error {
			_, err := io.Copy(io.Discard, r)
			return err
		},
	})
	var vc mqtt.VariablesConnect
	vc.SetDefaultMQTT([]byte(p.o.ClientID))

	conn.SetDeadline(time.Now().Add(p.o.Timeout))
	if err := client.StartConnect(conn, &vc); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.HandleNext(); err != nil {
		return nil, fmt.Errorf("connack: %w", err)
	}
	if !client.IsConnected() {
		if err := client.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		return nil, ErrNotConnected
	}
	conn.SetDeadline(time.Time{})
	return client, nil
}

func (p *Publisher) publish(ctx context.Context, conn net.Conn, client *mqtt.Client, flags mqtt.PacketFlags, vars mqtt.VariablesPublish) error {
	payload, err := json.Marshal(Message{T: time.Now().UnixMilli(), Snapshot: p.src.Sample(ctx)})
	if err != nil {
		return err
	}
	vars.PacketIdentifier = packetID(p.published.Load())
	conn.SetWriteDeadline(time.Now().Add(p.o.Timeout))
	if err := client.PublishPayload(flags, vars, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	n := p.published.Add(1)
	p.log.Debug().Int64("n", n).Int("bytes", len(payload)).Msg("published")
	return nil
}

// packetID numbers the n-th publish; the client rejects a zero identifier.
func packetID(n int64) uint16 {
	return uint16(n%0xFFFF + 1)
}
