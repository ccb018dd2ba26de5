package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TradeEntry is a journal row. The trade's own time picks the daily file.
type TradeEntry interface {
	JournalTime() time.Time
	JournalFields() logrus.Fields
}

// TradeLogger appends trades as JSON lines to trades_YYYY-MM-DD.jsonl.
type TradeLogger struct {
	baseDir string
	logger  *Logger
	mu      sync.Mutex
}

// NewTradeLogger creates a new trade logger
func NewTradeLogger(baseDir string, logger *Logger) (*TradeLogger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trade log directory: %w", err)
	}

	return &TradeLogger{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// FileFor returns the journal path for the day of t.
func (tl *TradeLogger) FileFor(t time.Time) string {
	return filepath.Join(tl.baseDir, fmt.Sprintf("trades_%s.jsonl", t.Format("2006-01-02")))
}

// LogTrade logs a trade to both structured logs and the daily journal file
func (tl *TradeLogger) LogTrade(trade TradeEntry) error {
	fields := trade.JournalFields()
	fields["event"] = "trade_logged"
	tl.logger.WithFields(fields).Info("📒 Trade logged")

	line, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	file, err := os.OpenFile(tl.FileFor(trade.JournalTime()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open trade log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write trade to file: %w", err)
	}
	return nil
}
