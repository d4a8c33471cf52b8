package sysutil

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	lvl, lg, def := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = lg
		zerolog.DefaultContextLogger = def
	})
}

func TestSetLogLevel_AllVariants(t *testing.T) {
	restoreLogging(t)

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := SetLogLevel(tc.in); got != tc.want || zerolog.GlobalLevel() != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v (global %v); want %v", tc.in, got, zerolog.GlobalLevel(), tc.want)
		}
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	restoreLogging(t)
	var buf bytes.Buffer

	SetupLogger("warn", false, &buf)
	log.Info().Msg("dropped")
	log.Warn().Str("chatbot_id", "bot-1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines=%q", lines)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	if m["message"] != "kept" || m["chatbot_id"] != "bot-1" || m["time"] == nil {
		t.Fatalf("entry=%v", m)
	}
}

func TestSetupLogger_PrettyAndContextDefault(t *testing.T) {
	restoreLogging(t)
	var buf bytes.Buffer

	SetupLogger("info", true, &buf)
	// services log through zerolog.Ctx; without a scoped logger it must
	// fall back to the global one instead of a disabled logger.
	zerolog.Ctx(context.Background()).Info().Msg("hola")

	out := buf.String()
	if !strings.Contains(out, "hola") || strings.HasPrefix(out, "{") {
		t.Fatalf("pretty output=%q", out)
	}
}
