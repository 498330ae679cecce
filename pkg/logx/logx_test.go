package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "funnel"))
	log.Info("entered", Int64("identity_id", 7), String("offer", "pack_a"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["comp"] != "funnel" || m["offer"] != "pack_a" || m["message"] != "entered" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller=%q", c)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	if !log.Enabled(LevelError) || log.Enabled(LevelDebug) {
		t.Fatalf("Enabled mismatch")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("nothing happens", Err(nil))
}

func TestFormatTelegramHTML(t *testing.T) {
	t.Parallel()

	line := []byte(`{"level":"warn","time":"x","message":"send <failed>","b":"2","a":1}`)
	got := formatTelegramHTML(line)
	want := "<b>[WARN] send &lt;failed&gt;</b>\n<code>a</code>=1\n<code>b</code>=2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	raw := formatTelegramHTML([]byte("not json"))
	if raw != "<pre>not json</pre>" {
		t.Fatalf("raw=%q", raw)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
