package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subj)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestNATSPublisher_Subjects(t *testing.T) {
	conn := &recordingConn{}
	p := NewNATSPublisher(conn, "")

	require.NoError(t, p.PublishPayment(context.Background(), Message{TenantID: "clinic-1", PaymentID: "pay_1", Status: "paid"}))
	require.NoError(t, p.PublishSubscription(context.Background(), Message{TenantID: "clinic-1", Status: "active"}))

	assert.Equal(t, []string{"billing.payment.paid", "billing.subscription.active"}, conn.subjects)

	var msg Message
	require.NoError(t, json.Unmarshal(conn.payloads[0], &msg))
	assert.Equal(t, "pay_1", msg.PaymentID)
	assert.False(t, msg.OccurredAt.IsZero())
}

func TestNATSPublisher_PublishError(t *testing.T) {
	p := NewNATSPublisher(&recordingConn{err: errors.New("nats: connection closed")}, "clinicflow")

	err := p.PublishPayment(context.Background(), Message{Status: "failed"})
	assert.ErrorContains(t, err, "clinicflow.payment.failed")
}
