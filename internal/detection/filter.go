package detection

import (
	"strings"

	"pump-sniper-go/internal/client"
)

const logsNotificationMethod = "logsNotification"

var (
	DefaultPatterns = []string{
		"Program log: Instruction: Create",
		"Program log: Instruction: create",
	}
	DefaultExclude = []string{"CreateTokenAccount"}
)

// Filter decides from the log lines alone whether a notification is a token creation.
type Filter struct {
	patterns []string
	exclude  []string
}

// NewFilter falls back to the default patterns when none are given. A nil
// exclude list uses the defaults, an empty non-nil one disables exclusion.
func NewFilter(patterns, exclude []string) *Filter {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if exclude == nil {
		exclude = DefaultExclude
	}
	return &Filter{patterns: patterns, exclude: exclude}
}

// Evaluate returns the transaction signature when n looks like a successful creation.
func (f *Filter) Evaluate(n *client.LogsNotification) (string, bool) {
	if n == nil || n.Method != logsNotificationMethod || n.Failed() {
		return "", false
	}
	if n.Signature() == "" {
		return "", false
	}

	for _, line := range n.Logs() {
		if f.excluded(line) {
			continue
		}
		for _, p := range f.patterns {
			if strings.Contains(line, p) {
				return n.Signature(), true
			}
		}
	}
	return "", false
}

func (f *Filter) excluded(line string) bool {
	for _, e := range f.exclude {
		if e != "" && strings.Contains(line, e) {
			return true
		}
	}
	return false
}
