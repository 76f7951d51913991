package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsCanonicalKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "escrowd", "test", slog.LevelInfo)
	logger.Info("escrow funded", "escrow", "abc")
	logger.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "escrow funded", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "escrowd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestMaskIdentity(t *testing.T) {
	id := [20]byte{0xAB, 0xCD}
	id[19] = 0xEF
	debugEnabled.Store(false)
	require.Equal(t, "0xabcd…00ef", MaskIdentity(id))
	debugEnabled.Store(true)
	t.Cleanup(func() { debugEnabled.Store(false) })
	require.Equal(t, "0xabcd0000000000000000000000000000000000ef", MaskIdentity(id))
}

func TestMaskIdentityWhileLevelChanges(t *testing.T) {
	t.Cleanup(func() { debugEnabled.Store(false) })
	id := [20]byte{0x01}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if MaskIdentity(id) == "" {
					t.Error("empty masked identity")
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		debugEnabled.Store(j%2 == 0)
	}
	wg.Wait()
}

func TestMaskFieldHonoursAllowlist(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("buyer", "0x01").Value.String())
	require.Equal(t, "RELEASED", MaskField("state", "RELEASED").Value.String())
	require.Contains(t, RedactionAllowlist(), "escrow")
}
