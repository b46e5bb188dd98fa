package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// journalKeyLimit is the longest field name journald accepts.
const journalKeyLimit = 64

var journalFailure sync.Once

// JournalHandler sends records to the systemd journal. The module and
// session become the MODULE and SESSION fields, so a recording can be
// followed with journalctl SESSION=<name>.
type JournalHandler struct {
	level slog.Leveler
	scope scope
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

// IsJournalAvailable reports whether the journal socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": Identifier}
	module, session := h.scope.walk(r, func(path []string, v slog.Value) {
		if key := journalKey(path); key != "" {
			fields[key] = journalValue(v)
		}
	})
	if module != "" {
		fields["MODULE"] = module
	}
	if session != "" {
		fields["SESSION"] = session
	}

	if err := journal.Send(r.Message, journalPriority(r.Level), fields); err != nil {
		journalFailure.Do(func() {
			fmt.Fprintf(os.Stderr, "framerec: journal write failed: %v\n", err)
		})
		return err
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{level: h.level, scope: h.scope.withAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	return &JournalHandler{level: h.level, scope: h.scope.withGroup(name)}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalKey builds a field name journald accepts: uppercase letters,
// digits and underscores, not starting with an underscore or a digit.
// Returns "" when nothing usable is left.
func journalKey(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 {
			b.WriteByte('_')
		}
		for _, r := range strings.ToUpper(part) {
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			} else {
				b.WriteByte('_')
			}
		}
	}

	key := strings.TrimLeft(b.String(), "_0123456789")
	if len(key) > journalKeyLimit {
		key = key[:journalKeyLimit]
	}
	return key
}

func journalValue(v slog.Value) string {
	if v.Kind() == slog.KindTime {
		return v.Time().Format(time.RFC3339Nano)
	}
	return v.String()
}
