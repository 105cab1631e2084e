package display

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Console is a Panel for boards without a screen: every render is logged and
// the last screen is kept for inspection.
type Console struct {
	mu      sync.Mutex
	last    []Row
	renders int
	log     zerolog.Logger
}

func NewConsole(log zerolog.Logger) *Console {
	return &Console{log: log}
}

func (c *Console) Render(_ context.Context, rows []Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = append(c.last[:0], rows...)
	c.renders++
	arr := zerolog.Arr()
	for _, r := range rows {
		arr.Str(r.Text)
	}
	c.log.Info().Array("lines", arr).Msg("display")
	return nil
}

// Screen returns the rows of the last render.
func (c *Console) Screen() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Row(nil), c.last...)
}

// Renders returns how many times the screen was drawn.
func (c *Console) Renders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renders
}
