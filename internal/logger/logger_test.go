package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range []string{"json", "text", "custom", ""} {
		t.Run(format, func(t *testing.T) {
			l, err := NewLogger(LogConfig{Level: "debug", Format: format})
			require.NoError(t, err)
			assert.Equal(t, logrus.DebugLevel, l.GetLevel())
			assert.NoError(t, l.Close())
		})
	}

	_, err := NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLogToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "bot.log")

	l, err := NewLogger(LogConfig{Level: "info", Format: "json", LogToFile: true, LogFilePath: path})
	require.NoError(t, err)
	l.WithComponent("test").Info("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "test", line["component"])
}

func TestCustomFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "curve stale",
		Data:    logrus.Fields{"mint": "abc"},
	}
	out, err := (&CustomFormatter{}).Format(entry)
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, "2024-05-01 12:00:00.000"))
	assert.Contains(t, s, "WARNING")
	assert.Contains(t, s, "curve stale | mint=abc")
	assert.True(t, strings.HasSuffix(s, "\n"))
}

type testTrade struct {
	Mint string    `json:"mint"`
	At   time.Time `json:"at"`
}

func (tt testTrade) JournalTime() time.Time { return tt.At }

func (tt testTrade) JournalFields() logrus.Fields {
	return logrus.Fields{"mint": tt.Mint}
}

func TestTradeLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "trades")
	tl, err := NewTradeLogger(dir, NewNop())
	require.NoError(t, err)

	day := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join(dir, "trades_2024-05-01.jsonl"), tl.FileFor(day))

	require.NoError(t, tl.LogTrade(testTrade{Mint: "first", At: day}))
	require.NoError(t, tl.LogTrade(testTrade{Mint: "second", At: day}))
	require.NoError(t, tl.LogTrade(testTrade{Mint: "next-day", At: day.Add(2 * time.Minute)}))

	f, err := os.Open(tl.FileFor(day))
	require.NoError(t, err)
	defer f.Close()

	var mints []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row testTrade
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		mints = append(mints, row.Mint)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"first", "second"}, mints)

	_, err = os.Stat(tl.FileFor(day.Add(2 * time.Minute)))
	assert.NoError(t, err)
}
