package eventsink

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusSink is the default Sink implementation: it logs the intent as a
// structured JSON line rather than delivering it anywhere. A production
// deployment swaps this for a webhook or message-broker adapter without
// touching any caller.
type LogrusSink struct {
	logger *logrus.Logger
}

func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) GetName() string { return "logrus" }

func (s *LogrusSink) Enqueue(ctx context.Context, intent Intent) error {
	s.logger.WithFields(logrus.Fields{
		"organization_id": intent.OrganizationID,
		"intent_type":     intent.Type,
		"payload":         intent.Payload,
	}).Info("event sink: intent enqueued")
	return nil
}
