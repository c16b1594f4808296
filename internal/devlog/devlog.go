// Package devlog provides a slog.Handler that bridges device logging to
// both a console writer and the device's own LOG_EVENT channel, so a
// device's internal logs and its radio LOG_EVENT notifications share one
// bounded encoding. Grounded on the teacher's telemetry.SlogHandler.
package devlog

import (
	"context"
	"io"
	"log/slog"
)

// Sink receives every Info-and-above record as a pre-truncated byte
// slice, ready to hand to a gatewaycall.Surface.LogData call. A nil Sink
// disables forwarding (console-only logging).
type Sink func(body []byte)

// Handler bridges console text output and a Sink, mirroring the
// teacher's SlogHandler (console TextHandler + telemetry queue).
type Handler struct {
	text  slog.Handler
	sink  Sink
	attrs []slog.Attr
	group string
}

// New builds a Handler writing text to w and forwarding Info+ records to
// sink (which may be nil).
func New(w io.Writer, sink Sink, opts *slog.HandlerOptions) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{text: slog.NewTextHandler(w, opts), sink: sink}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	err := h.text.Handle(ctx, r)
	if h.sink != nil && r.Level >= slog.LevelInfo {
		h.sink(buildBody(h.group, r))
	}
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &Handler{
		text:  h.text.WithAttrs(attrs),
		sink:  h.sink,
		attrs: newAttrs,
		group: h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &Handler{
		text:  h.text.WithGroup(name),
		sink:  h.sink,
		attrs: h.attrs,
		group: newGroup,
	}
}

// bodyCap matches ipc.LogData's 127-byte payload so a record built here
// always fits the shared-memory LogData field untruncated a second time.
const bodyCap = 127

// buildBody builds a compact "group:msg key=val ..." message truncated to
// bodyCap bytes, the same shape as the teacher's buildTelemetryMessage.
func buildBody(group string, r slog.Record) []byte {
	var buf [bodyCap]byte
	pos := 0

	if group != "" {
		pos = copyTo(buf[:], pos, group)
		if pos < len(buf) {
			buf[pos] = ':'
			pos++
		}
	}
	pos = copyTo(buf[:], pos, r.Message)

	count := 0
	r.Attrs(func(a slog.Attr) bool {
		if count >= 4 || pos >= len(buf)-8 {
			return false
		}
		if pos < len(buf) {
			buf[pos] = ' '
			pos++
		}
		pos = copyTo(buf[:], pos, a.Key)
		if pos < len(buf) {
			buf[pos] = '='
			pos++
		}
		pos = copyTo(buf[:], pos, a.Value.String())
		count++
		return true
	})

	return append([]byte(nil), buf[:pos]...)
}

func copyTo(buf []byte, pos int, s string) int {
	for i := 0; i < len(s) && pos < len(buf); i++ {
		buf[pos] = s[i]
		pos++
	}
	return pos
}
