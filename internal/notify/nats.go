package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SMSSubject is where outbound SMS requests are published for a gateway to pick up
const SMSSubject = "aegisher.notify.sms"

// NATSNotifier hands messages to an SMS gateway over NATS
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

func NewNATSNotifier(conn *nats.Conn) *NATSNotifier {
	return &NATSNotifier{conn: conn, subject: SMSSubject}
}

func (n *NATSNotifier) Notify(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}
