package httpx

import (
	"io"
	"log/slog"
)

// testLogger discards output so handler tests stay quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
