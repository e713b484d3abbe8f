// Package debug gates verbose logging by subsystem.
//
// SCREENLEADS_DEBUG (or logging.debug) selects subsystems, e.g.
// "auth,tenant" or "all". SCREENLEADS_LOG_LEVEL (or logging.level) sets the
// minimum level of the default slog logger; debug output needs DEBUG, and
// Trace output needs TRACE.
//
//	debug.Log("tenant", "restriction activated", "company_id", id)
//
// Known categories: auth, apikey, tenant, storage, realtime, transport.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// LevelTrace sits one step below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// categories is written by init and Init only; both run before any
// request is served.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("SCREENLEADS_DEBUG"))
}

// Init installs the default slog logger and the enabled categories.
// Environment variables win over the configured values. format selects
// "json" output; anything else gives text.
func Init(configCategories, configLevel, format string) {
	categories = parseCategories(firstNonEmpty(os.Getenv("SCREENLEADS_DEBUG"), configCategories))
	level := ParseLevel(firstNonEmpty(os.Getenv("SCREENLEADS_LOG_LEVEL"), configLevel))
	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, level)))
}

// NewHandler returns a text or JSON handler writing to w at level.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Enabled reports whether category is switched on.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log writes a DEBUG record tagged with category when it is enabled.
func Log(category string, msg string, args ...any) {
	if Enabled(category) {
		slog.Debug(msg, tagged(category, args)...)
	}
}

// Trace writes a TRACE record tagged with category when it is enabled.
func Trace(category string, msg string, args ...any) {
	if Enabled(category) {
		slog.Log(context.Background(), LevelTrace, msg, tagged(category, args)...)
	}
}

func tagged(category string, args []any) []any {
	return append([]any{"debug", category}, args...)
}

// ParseLevel maps a level name to a slog.Level. Unknown names give INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for k := range categories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Mask hides all but the last four characters of a secret such as a token
// or API key.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// Truncate shortens s to maxLen bytes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		if cat = strings.ToLower(strings.TrimSpace(cat)); cat != "" {
			m[cat] = true
		}
	}
	return m
}
