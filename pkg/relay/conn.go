package relay

import (
	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/sirupsen/logrus"
)

// Conn is the live channel bound to an identity. Send must not block: the
// relay calls it from its event loop. It reports false when the frame was not
// accepted, after which the connection is treated as gone.
type Conn interface {
	Send(env model.Envelope) bool
}

func emit(log logrus.FieldLogger, conn Conn, event model.EventType, data any) bool {
	env, err := model.NewEnvelope(event, data)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("Failed to encode event")
		return false
	}
	return conn.Send(env)
}
