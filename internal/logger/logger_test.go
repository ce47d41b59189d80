package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestToZapLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		InfoLevel:  zapcore.InfoLevel,
		WarnLevel:  zapcore.WarnLevel,
		ErrorLevel: zapcore.ErrorLevel,
		DebugLevel: zapcore.DebugLevel,
		"bogus":    defaultZapLevel,
	}
	for in, want := range cases {
		if got := toZapLevel(in); got != want {
			t.Errorf("toZapLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGet_ReturnsSingleton(t *testing.T) {
	a := Get(InfoLevel)
	b := Get(ErrorLevel)
	if a != b {
		t.Fatalf("expected same logger instance")
	}
}

func TestNamedAndNop(t *testing.T) {
	l := Nop().Named("relay")
	if l == nil || l.SugaredLogger == nil {
		t.Fatalf("expected usable logger")
	}
	l.Infow("ignored", "k", 1)
}
