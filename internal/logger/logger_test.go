package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := new(bytes.Buffer)
	SetOutput(buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetVerbose(false)
	})
	return buf
}

func TestDebug_SilentByDefault(t *testing.T) {
	buf := capture(t)

	Debug("fetching chunk %d", 3)

	assert.Empty(t, buf.String())
}

func TestDebug_PrintsWhenVerbose(t *testing.T) {
	buf := capture(t)
	SetVerbose(true)

	Debug("fetching chunk %d", 3)

	assert.Equal(t, "[DEBUG] fetching chunk 3\n", buf.String())
}

func TestInfo_GatedByVerbose(t *testing.T) {
	buf := capture(t)

	Info("enumerated %d items", 250)
	assert.Empty(t, buf.String())

	SetVerbose(true)
	Info("enumerated %d items", 250)
	assert.Equal(t, "[INFO] enumerated 250 items\n", buf.String())
}

func TestWarn_AlwaysPrints(t *testing.T) {
	buf := capture(t)

	Warn("checkpoint save failed: %s", "disk full")

	assert.Equal(t, "[WARN] checkpoint save failed: disk full\n", buf.String())
}

func TestIsVerbose_TracksSetting(t *testing.T) {
	capture(t)

	assert.False(t, IsVerbose())
	SetVerbose(true)
	assert.True(t, IsVerbose())
}
