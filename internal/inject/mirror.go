package inject

import (
	"log/slog"

	"github.com/chaz8081/blekbd/internal/report"
)

// Mirror sends every report to a primary transport and echoes the reports
// the primary accepted to a second one.
type Mirror struct {
	primary report.Transport
	echo    report.Transport
}

// Compile-time interface satisfaction check.
var _ report.Transport = (*Mirror)(nil)

// NewMirror creates a Mirror. Panics if either transport is nil
// (programmer error).
func NewMirror(primary, echo report.Transport) *Mirror {
	if primary == nil || echo == nil {
		panic("inject: NewMirror called with nil transport")
	}
	return &Mirror{primary: primary, echo: echo}
}

// SendReport implements report.Transport. Only the primary's error is
// returned, so a failing echo never stalls the report queue.
func (m *Mirror) SendReport(kind report.Kind, data []byte) error {
	if err := m.primary.SendReport(kind, data); err != nil {
		return err
	}
	if err := m.echo.SendReport(kind, data); err != nil {
		slog.Warn("[INJECT] echo failed", "kind", kind, "error", err)
	}
	return nil
}

// Logger is a report.Transport that only logs reports.
type Logger struct{}

// SendReport implements report.Transport.
func (Logger) SendReport(kind report.Kind, data []byte) error {
	slog.Info("[INJECT] report", "kind", kind, "data", data)
	return nil
}
