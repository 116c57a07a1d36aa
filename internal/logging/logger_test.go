package logging

import (
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHexBytes(t *testing.T) {
	f := HexBytes("raw", []byte{0xAA, 0x55, 0x01})
	if f.String != "aa5501" {
		t.Fatalf("hex = %q", f.String)
	}

	long := make([]byte, 300)
	f = HexBytes("raw", long)
	if !strings.HasSuffix(f.String, "...") || len(f.String) != 2*256+3 {
		t.Fatalf("long dump not truncated: len=%d", len(f.String))
	}
}

func TestInitLogger(t *testing.T) {
	cfg := cfgpkg.LoggingConfig{
		Level:  "debug",
		Format: "console",
		File:   cfgpkg.LumberjackConfig{Filename: filepath.Join(t.TempDir(), "test.log"), MaxSizeMB: 1},
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug level not enabled")
	}
	logger.Debug("frame sent", HexBytes("frame", []byte{0x55, 0xAA}))
	_ = logger.Sync()

	if OrNop(nil) == nil {
		t.Fatalf("OrNop returned nil")
	}
}
