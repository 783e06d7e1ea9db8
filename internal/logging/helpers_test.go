package logging

import (
	"io"
	"log/slog"
	"time"
)

func slogJSON(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, nil)
}

func newRecord(msg string) slog.Record {
	return slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
}
