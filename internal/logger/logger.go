package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger represents the application logger
type Logger struct {
	*logrus.Logger
	config LogConfig
	file   *lumberjack.Logger
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level       string
	Format      string // "json", "text" or "custom"
	LogToFile   bool
	LogFilePath string
	TradeLogDir string
}

// NewLogger creates a new logger instance
func NewLogger(config LogConfig) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	switch strings.ToLower(config.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			DisableQuote:    true,
		})
	default:
		log.SetFormatter(&CustomFormatter{})
	}

	if config.TradeLogDir != "" {
		if err := os.MkdirAll(config.TradeLogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create trade log directory %s: %w", config.TradeLogDir, err)
		}
	}

	l := &Logger{Logger: log, config: config}

	if config.LogToFile && config.LogFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.LogFilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   config.LogFilePath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stdout, l.file))
	}

	return l, nil
}

// NewNop returns a logger that discards everything. Used by tests and library callers.
func NewNop() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{Logger: log}
}

// Close flushes and closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// CustomFormatter provides a clean, timestamped format for console output
type CustomFormatter struct{}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	level := strings.ToUpper(entry.Level.String())

	var levelColor string
	switch entry.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		levelColor = "\033[36m"
	case logrus.InfoLevel:
		levelColor = "\033[32m"
	case logrus.WarnLevel:
		levelColor = "\033[33m"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = "\033[31m"
	default:
		levelColor = "\033[0m"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s%s\033[0m] %s", timestamp, levelColor, level, entry.Message)

	if len(entry.Data) > 0 {
		b.WriteString(" |")
		for key, value := range entry.Data {
			fmt.Fprintf(&b, " %s=%v", key, value)
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}

// WithToken returns a logger with token context
func (l *Logger) WithToken(mint string) *logrus.Entry {
	return l.WithField("mint", mint)
}

// LogTokenDiscovered logs when a new token is discovered
func (l *Logger) LogTokenDiscovered(mint, creator, name, symbol string) {
	l.WithFields(logrus.Fields{
		"event":   "token_discovered",
		"mint":    mint,
		"creator": creator,
		"name":    name,
		"symbol":  symbol,
	}).Info("🔍 New token discovered")
}

// LogTradeAttempt logs when a trade attempt is made
func (l *Logger) LogTradeAttempt(tradeType, mint string, amount float64) {
	l.WithFields(logrus.Fields{
		"event":  "trade_attempt",
		"type":   tradeType,
		"mint":   mint,
		"amount": amount,
	}).Info("💰 Trade attempt initiated")
}

// LogTradeSuccess logs when a trade is successful
func (l *Logger) LogTradeSuccess(tradeType, mint string, amount float64, signature string, price float64) {
	l.WithFields(logrus.Fields{
		"event":     "trade_success",
		"type":      tradeType,
		"mint":      mint,
		"amount":    amount,
		"signature": signature,
		"price":     price,
	}).Info("✅ Trade successful")
}

// LogTradeError logs when a trade fails
func (l *Logger) LogTradeError(tradeType, mint string, amount float64, err error) {
	l.WithFields(logrus.Fields{
		"event":  "trade_error",
		"type":   tradeType,
		"mint":   mint,
		"amount": amount,
	}).WithError(err).Error("❌ Trade failed")
}

// LogFilterReject logs when a token is rejected by the entry rules
func (l *Logger) LogFilterReject(mint, reason string) {
	l.WithFields(logrus.Fields{
		"event":  "filter_reject",
		"mint":   mint,
		"reason": reason,
	}).Info("✗ Token rejected by filter")
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, mode string, endpoints int) {
	l.WithFields(logrus.Fields{
		"event":     "startup",
		"version":   version,
		"mode":      mode,
		"endpoints": endpoints,
	}).Info("🚀 Bot starting up")
}

// LogShutdown logs application shutdown information
func (l *Logger) LogShutdown(reason string) {
	l.WithFields(logrus.Fields{
		"event":  "shutdown",
		"reason": reason,
	}).Info("🛑 Bot shutting down")
}

// LogLatency logs operation latency
func (l *Logger) LogLatency(operation string, duration time.Duration) {
	l.WithFields(logrus.Fields{
		"event":     "latency",
		"operation": operation,
		"duration":  duration.Milliseconds(),
		"unit":      "ms",
	}).Debug("⏱️ Operation latency")
}
