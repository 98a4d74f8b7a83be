package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/kitchen/repository"
	"pizzeria-system/internal/microservices/order/domain/dao"
)

type fakeWorkers struct {
	mu        sync.Mutex
	online    map[string]bool
	processed map[string]int
	beats     int
}

func newFakeWorkers() *fakeWorkers {
	return &fakeWorkers{online: map[string]bool{}, processed: map[string]int{}}
}

func (f *fakeWorkers) RegisterOrFail(_ context.Context, name, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.online[name] {
		return fmt.Errorf("%w: %s", repository.ErrWorkerOnline, name)
	}
	f.online[name] = true
	return nil
}

func (f *fakeWorkers) Heartbeat(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return nil
}

func (f *fakeWorkers) SetOffline(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[name] = false
	return nil
}

func (f *fakeWorkers) IncrementProcessed(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[name]++
	return nil
}

func (f *fakeWorkers) GetWorker(_ context.Context, name string) (repository.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := "offline"
	if f.online[name] {
		status = "online"
	}
	return repository.Worker{Name: name, Status: status, OrdersProcessed: f.processed[name]}, nil
}

// fakeOrders applies the real state machine to an in-memory status table.
type fakeOrders struct {
	mu       sync.Mutex
	statuses map[int64]dao.Status
	history  []dao.Status
	failWith error
}

func (f *fakeOrders) AdvanceStatus(_ context.Context, id int64, to dao.Status, _ string) (dao.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return dao.Order{}, f.failWith
	}
	from, ok := f.statuses[id]
	if !ok {
		return dao.Order{}, dao.ErrOrderNotFound
	}
	if err := dao.Transition(from, to); err != nil {
		return dao.Order{}, err
	}
	f.statuses[id] = to
	f.history = append(f.history, to)
	return dao.Order{ID: id, Status: to}, nil
}

type ackRecorder struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func delivery(t *testing.T, ack amqp.Acknowledger, evt dao.OrderEvent) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, DeliveryTag: 1}
}

func confirmed(id int64) dao.OrderEvent {
	return dao.OrderEvent{OrderID: id, OrderNumber: "ORD-20261017-0001", NewStatus: dao.StatusConfirmed}
}

func newKitchen(workers *fakeWorkers, orders *fakeOrders) *KitchenService {
	return NewKitchenService(workers, orders, logger.NewNop(), Options{
		WorkerName:        "chef-1",
		HeartbeatInterval: 10 * time.Millisecond,
		CookTime:          time.Millisecond,
	}).(*KitchenService)
}

func TestHandleCooksConfirmedOrder(t *testing.T) {
	workers := newFakeWorkers()
	orders := &fakeOrders{statuses: map[int64]dao.Status{7: dao.StatusConfirmed}}
	ks := newKitchen(workers, orders)

	err := ks.Handle(context.Background(), delivery(t, nil, confirmed(7)))

	require.NoError(t, err)
	assert.Equal(t, []dao.Status{dao.StatusPreparing, dao.StatusReady}, orders.history)
	assert.Equal(t, 1, workers.processed["chef-1"])
}

func TestHandleSkipsCancelledOrder(t *testing.T) {
	orders := &fakeOrders{statuses: map[int64]dao.Status{7: dao.StatusCancelled}}
	ks := newKitchen(newFakeWorkers(), orders)

	err := ks.Handle(context.Background(), delivery(t, nil, confirmed(7)))

	assert.NoError(t, err)
	assert.Empty(t, orders.history)
}

func TestHandleSkipsMissingOrder(t *testing.T) {
	ks := newKitchen(newFakeWorkers(), &fakeOrders{statuses: map[int64]dao.Status{}})

	assert.NoError(t, ks.Handle(context.Background(), delivery(t, nil, confirmed(99))))
}

func TestHandleResumesRedeliveredOrder(t *testing.T) {
	orders := &fakeOrders{statuses: map[int64]dao.Status{7: dao.StatusPreparing}}
	ks := newKitchen(newFakeWorkers(), orders)
	d := delivery(t, nil, confirmed(7))
	d.Redelivered = true

	require.NoError(t, ks.Handle(context.Background(), d))
	assert.Equal(t, []dao.Status{dao.StatusReady}, orders.history)
}

func TestHandleIgnoresOtherStatuses(t *testing.T) {
	orders := &fakeOrders{statuses: map[int64]dao.Status{7: dao.StatusPending}}
	ks := newKitchen(newFakeWorkers(), orders)
	evt := confirmed(7)
	evt.NewStatus = dao.StatusPending

	assert.NoError(t, ks.Handle(context.Background(), delivery(t, nil, evt)))
	assert.Empty(t, orders.history)
}

func TestHandleMalformedGoesToDLQ(t *testing.T) {
	ks := newKitchen(newFakeWorkers(), &fakeOrders{})

	err := ks.Handle(context.Background(), amqp.Delivery{Body: []byte("{not json")})
	assert.ErrorIs(t, err, ErrDLQ)

	err = ks.Handle(context.Background(), delivery(t, nil, dao.OrderEvent{NewStatus: dao.StatusConfirmed}))
	assert.ErrorIs(t, err, ErrDLQ)
}

func TestHandleStoreFailureRequeues(t *testing.T) {
	orders := &fakeOrders{statuses: map[int64]dao.Status{7: dao.StatusConfirmed}, failWith: errors.New("conn reset")}
	ks := newKitchen(newFakeWorkers(), orders)

	err := ks.Handle(context.Background(), delivery(t, nil, confirmed(7)))

	assert.ErrorIs(t, err, ErrRequeue)
}

func TestHandleShutdownDuringCookRequeues(t *testing.T) {
	orders := &fakeOrders{statuses: map[int64]dao.Status{7: dao.StatusConfirmed}}
	ks := newKitchen(newFakeWorkers(), orders)
	ks.opts.CookTime = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ks.Handle(ctx, delivery(t, nil, confirmed(7)))

	assert.ErrorIs(t, err, ErrRequeue)
}

func TestRunSettlesAndGoesOffline(t *testing.T) {
	workers := newFakeWorkers()
	orders := &fakeOrders{statuses: map[int64]dao.Status{7: dao.StatusConfirmed}}
	ks := newKitchen(workers, orders)
	ack := &ackRecorder{}

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- delivery(t, ack, confirmed(7))
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("garbage")}
	close(deliveries)

	err := ks.Run(context.Background(), deliveries)

	require.ErrorIs(t, err, ErrDeliveriesClosed)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, []bool{false}, ack.requeue)
	assert.False(t, workers.online["chef-1"])
}

func TestRunHeartbeatsUntilCancelled(t *testing.T) {
	workers := newFakeWorkers()
	ks := newKitchen(workers, &fakeOrders{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ks.Run(ctx, make(chan amqp.Delivery)) }()

	require.Eventually(t, func() bool {
		workers.mu.Lock()
		defer workers.mu.Unlock()
		return workers.beats >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	workers.mu.Lock()
	defer workers.mu.Unlock()
	assert.False(t, workers.online["chef-1"])
}

func TestRunRefusesDuplicateWorker(t *testing.T) {
	workers := newFakeWorkers()
	workers.online["chef-1"] = true
	ks := newKitchen(workers, &fakeOrders{})

	err := ks.Run(context.Background(), make(chan amqp.Delivery))

	assert.ErrorIs(t, err, repository.ErrWorkerOnline)
}
