package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewJSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentAgent, Output: &buf})

	logger.Info("Group created", FieldGroupID, "ABCDEFGHJ")
	logger.Debug("suppressed")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, buf.String())
	}
	if rec[FieldComponent] != ComponentAgent || rec[FieldGroupID] != "ABCDEFGHJ" {
		t.Errorf("record = %v", rec)
	}
	if logger.Component() != ComponentAgent {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestNewHandlerFormats(t *testing.T) {
	for _, format := range []string{FormatText, FormatJSON, FormatTint, "unknown"} {
		var buf bytes.Buffer
		slog.New(NewHandler(format, &buf, slog.LevelInfo)).Info("hello", "k", "v")
		if !strings.Contains(buf.String(), "hello") {
			t.Errorf("format %s produced %q", format, buf.String())
		}
	}
}

func TestFields(t *testing.T) {
	f := NewFields().WithRequestID("req_1").WithError(nil).WithHTTPResponse(404, 12)
	want := []any{FieldRequestID, "req_1", FieldStatusCode, 404, FieldDuration, int64(12), FieldSuccess, false}
	if len(f) != len(want) {
		t.Fatalf("fields = %v", f)
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("fields[%d] = %v, want %v", i, f[i], want[i])
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: FormatJSON, Output: &buf}).With(FieldRequestID, "req_abc")

	ctx := NewContext(context.Background(), logger)
	FromContext(ctx).Info("inside")

	if !strings.Contains(buf.String(), `"request_id":"req_abc"`) {
		t.Errorf("log output = %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if got := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got == nil || got.Component() != "unknown" {
		t.Errorf("FromContext() = %+v", got)
	}
}
