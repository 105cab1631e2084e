package diagnostics

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerForwards(t *testing.T) {
	var buf bytes.Buffer
	rec := &Recorder{}
	l := Logger{Log: zerolog.New(&buf), Next: rec}

	l.Report(Busy("i2c1", errors.New("i2c1: arbiter: peripheral busy")))
	l.Report(InitFailed("led matrix", errors.New("no spidev")))

	assert.Equal(t, []string{CodeBusy, CodeInitFailed}, rec.Codes())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, CodeBusy, first["code"])
	assert.Equal(t, "i2c1 busy, update skipped", first["message"])
}

func TestDiagnosticJSON(t *testing.T) {
	d := NotReady("led matrix")
	b, err := json.Marshal(d)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "warning", m["severity"])
	assert.Equal(t, CodeNotReady, m["code"])
	assert.NotContains(t, m, "detail")
}
