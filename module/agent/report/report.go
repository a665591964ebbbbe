// Package report surfaces sync failures that need operator attention.
package report

import "github.com/sirupsen/logrus"

// Sink receives one notification per permanently failed record. The
// caller guarantees at most one report per record id.
type Sink interface {
	Report(kind string, fields map[string]any)
}

const (
	KindDropped = "dropped"
	KindAnomaly = "anomaly"
)

type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

var _ Sink = (*LogSink)(nil)

func (s *LogSink) Report(kind string, fields map[string]any) {
	entry := s.log.WithField("report_kind", kind)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Error("sync record permanently failed")
}
