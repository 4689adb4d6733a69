package helper

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrettyHandler(t *testing.T) {
	t.Run("Create PrettyHandler with default options", func(t *testing.T) {
		var buf bytes.Buffer

		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		require.NotNil(t, handler, "Expected NewPrettyHandler to return a non-nil handler")
		assert.NotNil(t, handler.Handler, "Expected handler to have a non-nil Handler field")
		assert.NotNil(t, handler.l, "Expected handler to have a non-nil logger field")
	})

	t.Run("Level option is respected by Enabled", func(t *testing.T) {
		var buf bytes.Buffer
		opts := PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{Level: slog.LevelWarn},
		}

		handler := NewPrettyHandler(&buf, opts)

		assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo), "Expected INFO to be disabled at WARN level")
		assert.True(t, handler.Enabled(context.Background(), slog.LevelError), "Expected ERROR to be enabled at WARN level")
	})
}

func TestPrettyHandlerHandle(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		level    slog.Level
		message  string
		attrs    []slog.Attr
		contains []string
	}{
		{
			name:     "Handle DEBUG level log",
			level:    slog.LevelDebug,
			message:  "reading property",
			attrs:    []slog.Attr{slog.String("field", "name")},
			contains: []string{"DEBUG:", "reading property", "field", "name"},
		},
		{
			name:     "Handle INFO level log",
			level:    slog.LevelInfo,
			message:  "saved entity",
			attrs:    []slog.Attr{slog.Int("properties", 42)},
			contains: []string{"INFO:", "saved entity", "properties", "42"},
		},
		{
			name:     "Handle WARN level log",
			level:    slog.LevelWarn,
			message:  "unknown property",
			attrs:    []slog.Attr{slog.Bool("skipped", true)},
			contains: []string{"WARN:", "unknown property", "skipped", "true"},
		},
		{
			name:     "Handle ERROR level log",
			level:    slog.LevelError,
			message:  "conversion failed",
			attrs:    []slog.Attr{slog.String("error", "not convertible")},
			contains: []string{"ERROR:", "conversion failed", "not convertible"},
		},
		{
			name:     "Handle log with no attributes",
			level:    slog.LevelInfo,
			message:  "simple message",
			contains: []string{"INFO:", "simple message", "{}"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewPrettyHandler(&buf, PrettyHandlerOptions{
				SlogOpts: slog.HandlerOptions{Level: slog.LevelDebug},
			})

			record := slog.NewRecord(time.Now(), tc.level, tc.message, 0)
			record.AddAttrs(tc.attrs...)

			err := handler.Handle(ctx, record)

			require.NoError(t, err, "Expected Handle to not return an error")
			output := buf.String()
			for _, c := range tc.contains {
				assert.Contains(t, output, c)
			}
			assert.Regexp(t, `\[\d{2}:\d{2}:\d{2}\.\d{3}\]`, output, "Expected output to contain properly formatted timestamp")
		})
	}
}
