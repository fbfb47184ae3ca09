package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("warn")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, lvl)

	lvl, ok = ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, LevelInfo, lvl)
}

func TestLogger_WritesFileAndRing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assetvault.log")

	log, err := New(Config{Level: "DEBUG", Format: "text", Output: path, BufferSize: 10})
	require.NoError(t, err)

	log.Info("loaded %d assets", 3)
	log.With("kind", "avatars").Warn("slow load")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "loaded 3 assets")
	assert.Contains(t, string(data), "WARN")

	recent := log.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "loaded 3 assets", recent[0].Message)
	assert.Equal(t, LevelWarn, recent[1].Level)
	assert.Equal(t, "avatars", recent[1].Fields["kind"])
}

func TestLogger_RingKeepsNewest(t *testing.T) {
	log, err := New(Config{Level: "INFO", Output: filepath.Join(t.TempDir(), "l.log"), BufferSize: 3})
	require.NoError(t, err)
	defer log.Close()

	for i := 0; i < 5; i++ {
		log.Info("entry %d", i)
	}

	all := log.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, "entry 2", all[0].Message)
	assert.Equal(t, "entry 4", all[2].Message)

	last := log.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "entry 4", last[0].Message)
}

func TestLogger_SetLevelFilters(t *testing.T) {
	log := Nop()
	log.SetLevel("ERROR")

	log.Info("dropped")
	log.Error("kept")

	recent := log.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, "kept", recent[0].Message)
	assert.Equal(t, LevelError, log.Level())

	log.SetLevel("bogus")
	assert.Equal(t, LevelError, log.Level())
}

func TestLogger_JSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "json.log")
	log, err := New(Config{Level: "INFO", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("hello")
	require.NoError(t, log.Sync())
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(data)), "{"))
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestLogger_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.log")
	log, err := New(Config{Level: "INFO", Output: path, QueueSize: 4, BufferSize: 1000})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				log.Info("worker %d line %d", g, i)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 200, strings.Count(string(data), "\n"))
	assert.Len(t, log.Recent(0), 200)
}

func TestLogger_LogAfterCloseDoesNotPanic(t *testing.T) {
	log, err := New(Config{Output: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	assert.NotPanics(t, func() { log.Info("late") })
	assert.NoError(t, log.Close())
}

func TestEntry_String(t *testing.T) {
	log := Nop()
	log.Warn("disk %s", "full")

	s := log.Recent(1)[0].String()
	assert.Contains(t, s, "[WARN] disk full")
	assert.Equal(t, fmt.Sprintf("[%s]", LevelWarn), "[WARN]")
}
