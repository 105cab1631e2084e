package led

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/panelhttpd/internal/layout"
)

// MinResetGap is the idle time WS2812 parts need between two frames to
// recognise the frame boundary.
const MinResetGap = 60 * time.Microsecond

// ErrNotReady is returned by frame operations before a successful Init.
var ErrNotReady = errors.New("led: matrix not initialized")

// Matrix streams frames to an addressable LED panel.
//
// It keeps a copy of the last latched frame so a partial update only changes
// the LEDs it names. Matrix is written from the request path only; its mutex
// protects the retained frame for concurrent readers.
type Matrix struct {
	mu    sync.Mutex
	grid  layout.Grid
	gap   time.Duration
	drv   Driver
	frame []Color
	wire  []byte
	last  time.Time
	sleep func(time.Duration)
	log   zerolog.Logger
}

// NewMatrix returns an uninitialized Matrix for grid. gap below MinResetGap
// is raised to MinResetGap.
func NewMatrix(grid layout.Grid, gap time.Duration, log zerolog.Logger) *Matrix {
	if gap < MinResetGap {
		gap = MinResetGap
	}
	return &Matrix{
		grid:  grid,
		gap:   gap,
		frame: make([]Color, grid.Count()),
		wire:  make([]byte, grid.Count()*3),
		sleep: time.Sleep,
		log:   log,
	}
}

// Init claims the output through open and clears the panel. It runs open at
// most once: later calls report the state of the first. A failure is logged
// and reported as false; the Matrix then refuses frame operations with
// ErrNotReady.
func (m *Matrix) Init(open func() (Driver, error)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drv != nil {
		return true
	}
	drv, err := open()
	if err != nil {
		m.log.Error().Err(err).Msg("led matrix init failed")
		return false
	}
	m.drv = drv
	for i := range m.frame {
		m.frame[i] = Black
	}
	if err := m.sendLocked(); err != nil {
		m.log.Warn().Err(err).Msg("initial clear failed")
	}
	m.log.Info().Int("leds", m.grid.Count()).Msg("led matrix ready")
	return true
}

// Ready reports whether Init succeeded.
func (m *Matrix) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drv != nil
}

// Grid returns the panel geometry.
func (m *Matrix) Grid() layout.Grid { return m.grid }

// SendFrame replaces the whole frame. frame is indexed by chain position.
func (m *Matrix) SendFrame(frame []Color) error {
	if len(frame) != m.grid.Count() {
		return fmt.Errorf("frame has %d colors, panel has %d", len(frame), m.grid.Count())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drv == nil {
		return ErrNotReady
	}
	copy(m.frame, frame)
	return m.sendLocked()
}

// SetPixels overwrites chain positions start.. with colors and sends the
// frame. Colors past the end of the chain are ignored. It returns how many
// LEDs were updated.
func (m *Matrix) SetPixels(start int, colors []Color) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drv == nil {
		return 0, ErrNotReady
	}
	if start < 0 || start >= len(m.frame) {
		return 0, fmt.Errorf("start %d outside chain of %d", start, len(m.frame))
	}
	n := copy(m.frame[start:], colors)
	return n, m.sendLocked()
}

// SetXY sets one LED addressed by panel coordinates.
func (m *Matrix) SetXY(x, y int, c Color) error {
	if !m.grid.Contains(x, y) {
		return fmt.Errorf("(%d,%d) outside %dx%d panel", x, y, m.grid.W, m.grid.H)
	}
	_, err := m.SetPixels(m.grid.Index(x, y), []Color{c})
	return err
}

// FillAll sets every LED to c.
func (m *Matrix) FillAll(c Color) error {
	frame := make([]Color, m.grid.Count())
	for i := range frame {
		frame[i] = c
	}
	return m.SendFrame(frame)
}

// Clear turns every LED off.
func (m *Matrix) Clear() error {
	return m.FillAll(Black)
}

// Frame returns a copy of the last latched frame in chain order.
func (m *Matrix) Frame() []Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Color(nil), m.frame...)
}

// Close releases the driver.
func (m *Matrix) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drv == nil {
		return nil
	}
	err := m.drv.Close()
	m.drv = nil
	return err
}

// sendLocked converts the frame to wire order and writes it, keeping at
// least gap between the end of one frame and the start of the next.
func (m *Matrix) sendLocked() error {
	for i, c := range m.frame {
		grb := c.GRB()
		m.wire[i*3+0] = byte(grb >> 16)
		m.wire[i*3+1] = byte(grb >> 8)
		m.wire[i*3+2] = byte(grb)
	}
	if !m.last.IsZero() {
		if wait := m.gap - time.Since(m.last); wait > 0 {
			m.sleep(wait)
		}
	}
	err := m.drv.Write(m.wire)
	m.last = time.Now()
	if err != nil {
		return fmt.Errorf("led write: %w", err)
	}
	return nil
}
