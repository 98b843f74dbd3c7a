package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (photo saved, storage usage)
	LevelLive    = 2 // Live info (shots taken, burst progress)
	LevelVerbose = 3 // Verbose (crop geometry, pipeline stages)
	LevelTrace   = 4 // Trace (GPIO, constraint calls, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	logger *log.Logger
	out    io.Writer = os.Stdout
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (photos saved, storage usage)
// 2 = live info (shots, burst progress, countdown)
// 3 = verbose (crop rectangles, pipeline stages, capabilities)
// 4 = trace (GPIO, constraint application)
//
// When the process runs under systemd, every line is also sent to the journal.
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	if level > LevelOff {
		logger = log.New(withJournal(out), "[SurveyCam] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		logger = nil
	}
}

// SetOutput redirects debug output (e.g. to stdout + SSE broadcaster).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	if logger != nil {
		logger.SetOutput(withJournal(w))
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func printf(minLevel int, format string, args ...interface{}) {
	mu.RLock()
	l, lg := level, logger
	mu.RUnlock()
	if l >= minLevel && lg != nil {
		lg.Printf(format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "[INFO] "+format, args...)
}

// Warn prints a level 1 warning.
func Warn(format string, args ...interface{}) {
	printf(LevelInfo, "[WARN] "+format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	printf(LevelInfo, "═══════════════════════════════════════")
	printf(LevelInfo, "  %s", title)
	printf(LevelInfo, "═══════════════════════════════════════")
}

// Saved prints a persisted photo (level 1).
func Saved(id int64, bytes int) {
	printf(LevelInfo, "[INFO] Photo %d saved (%d bytes)", id, bytes)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "[LIVE] "+format, args...)
}

// Shot prints a photo capture (level 2).
func Shot(id int64, filter string) {
	printf(LevelLive, "[LIVE] Photo %d captured (filter=%s)", id, filter)
}

// Burst prints burst progress (level 2).
func Burst(session string, shot, total int) {
	printf(LevelLive, "[LIVE] Burst %s: shot %d/%d", session, shot, total)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "[VERBOSE] "+format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	printf(LevelVerbose, "[VERBOSE] %s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printf(LevelVerbose, "  %s", name)
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	printf(LevelVerbose, "[VERBOSE] Step %d: %s", num, description)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "[INFO]   %s = %v", name, value)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "[TRACE] "+format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	printf(LevelTrace, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "[ERROR] %v", err)
}

// Fmt returns a formatted string only if debug is enabled
// (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}

// withJournal tees w into the systemd journal when it is reachable.
func withJournal(w io.Writer) io.Writer {
	if !journal.Enabled() {
		return w
	}
	return io.MultiWriter(w, journalWriter{})
}

// journalWriter forwards each log line to journald, mapping the level tag
// to a syslog priority.
type journalWriter struct{}

func (journalWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	vars := map[string]string{"SYSLOG_IDENTIFIER": "surveycam"}
	if err := journal.Send(msg, priorityFor(msg), vars); err != nil {
		return 0, err
	}
	return len(p), nil
}

func priorityFor(line string) journal.Priority {
	switch {
	case strings.Contains(line, "[ERROR]"):
		return journal.PriErr
	case strings.Contains(line, "[WARN]"):
		return journal.PriWarning
	case strings.Contains(line, "[INFO]"):
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
