// Package logging provides category-gated debug logging on top of log/slog.
//
// Categories select WHAT is logged (newton, ptc, ode, adjoint, config, or
// all); the level selects how much. Both come from the configuration or
// the MULTIPHYS_DEBUG and MULTIPHYS_LOG_LEVEL environment variables, the
// environment taking precedence.
//
//	logging.Log("newton", "iteration", "iter", it, "norm", norm)
//	if logging.Enabled("ode") { /* expensive formatting */ }
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

const (
	Newton  = "newton"
	PTC     = "ptc"
	ODE     = "ode"
	Adjoint = "adjoint"
	Config  = "config"
)

// LevelTrace is below slog.LevelDebug and logs per-stage detail.
const LevelTrace = slog.LevelDebug - 4

// Read-only after Init.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("MULTIPHYS_DEBUG"))
}

// Init installs a text handler on w and enables the given categories.
func Init(w io.Writer, configCategories []string, configLevel string) {
	cats := os.Getenv("MULTIPHYS_DEBUG")
	if cats == "" {
		cats = strings.Join(configCategories, ",")
	}
	categories = parseCategories(cats)

	level := os.Getenv("MULTIPHYS_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug record for category. Disabled categories cost a map lookup.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
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
	var result []string
	for k := range categories {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
