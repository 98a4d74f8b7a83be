package service

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
)

type ackRecorder struct {
	acks    int
	requeue []bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return logger.FromZap(zap.New(core), "notification-subscriber"), logs
}

func event(t *testing.T, evt dao.OrderEvent) []byte {
	t.Helper()
	b, err := json.Marshal(evt)
	require.NoError(t, err)
	return b
}

func TestNotifyLogsStatusChange(t *testing.T) {
	log, logs := observed()
	ns := NewNotificatorService(log)

	err := ns.Notify(amqp.Delivery{Body: event(t, dao.OrderEvent{
		OrderNumber: "ORD-20261017-0003", CustomerName: "Ada", SaleType: dao.SaleInStore,
		OldStatus: dao.StatusPreparing, NewStatus: dao.StatusReady, ChangedBy: "chef-1",
	})})

	require.NoError(t, err)
	entries := logs.FilterMessage("notification_received").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ready", fields["new_status"])
	assert.Equal(t, "Order ORD-20261017-0003 is ready for pickup.", fields["message"])
}

func TestNotifyRejectsBadPayloads(t *testing.T) {
	ns := NewNotificatorService(logger.NewNop())

	assert.Error(t, ns.Notify(amqp.Delivery{Body: []byte("nope")}))
	assert.Error(t, ns.Notify(amqp.Delivery{Body: event(t, dao.OrderEvent{NewStatus: "teleported", OrderNumber: "X"})}))
}

func TestMessageForOnlineOrder(t *testing.T) {
	msg := Message(dao.OrderEvent{OrderNumber: "ORD-1", SaleType: dao.SaleOnline, NewStatus: dao.StatusReady})
	assert.Equal(t, "Order ORD-1 is ready and on its way.", msg)
}

func TestRunSettlesEachDelivery(t *testing.T) {
	ns := NewNotificatorService(logger.NewNop())
	ack := &ackRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: event(t, dao.OrderEvent{OrderNumber: "ORD-1", NewStatus: dao.StatusConfirmed})}
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("{")}
	close(deliveries)

	err := ns.Run(ctx, deliveries)

	assert.Error(t, err)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, []bool{false}, ack.requeue)
}
