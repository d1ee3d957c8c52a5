package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"neurostore-be/internal/domain/model"
	repo "neurostore-be/internal/repository"
	"neurostore-be/internal/worker"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type sweeperOrderRepoMock struct{ mock.Mock }

func (m *sweeperOrderRepoMock) CancelExpired(ctx context.Context, now time.Time, reason string) (int64, error) {
	args := m.Called(ctx, now, reason)
	return args.Get(0).(int64), args.Error(1)
}

//以下はSweeperでは使わない

func (m *sweeperOrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) FindByStripeSessionID(ctx context.Context, sessionID string) (model.Order, error) {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) CountActiveTemp(ctx context.Context, userID int64) (int64, error) {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) ListHistoryByUserID(ctx context.Context, userID int64) ([]model.Order, error) {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) AttachStripeSession(ctx context.Context, orderID int64, sessionID string) error {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) MarkPaid(ctx context.Context, orderID int64, paymentIntentID string, paidAmount decimal.Decimal, paidAt time.Time) error {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) Cancel(ctx context.Context, orderID int64, reason string) error {
	panic("not used in sweeper tests")
}
func (m *sweeperOrderRepoMock) UpdateTracking(ctx context.Context, orderID int64, trackingNumber string, trackingLink string) error {
	panic("not used in sweeper tests")
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func TestSweepOnce_CancelsExpired(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	orders := new(sweeperOrderRepoMock)
	orders.On("CancelExpired", mock.Anything, now, "expired").Return(int64(2), nil)

	s := worker.NewExpirySweeper(orders, &fixedClock{now: now}, 30*time.Minute)

	n, err := s.SweepOnce(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	orders.AssertExpectations(t)
}

func TestSweepOnce_PropagatesError(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	orders := new(sweeperOrderRepoMock)
	orders.On("CancelExpired", mock.Anything, now, "expired").Return(int64(0), errors.New("db down"))

	s := worker.NewExpirySweeper(orders, &fixedClock{now: now}, 30*time.Minute)

	_, err := s.SweepOnce(context.Background())
	assert.Error(t, err)
}

// Runはctxキャンセルで止まる。起動直後の1回分だけ確認する
func TestRun_StopsOnContextCancel(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	orders := new(sweeperOrderRepoMock)

	swept := make(chan struct{}, 1)
	orders.On("CancelExpired", mock.Anything, now, "expired").Run(func(args mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	}).Return(int64(0), nil)

	s := worker.NewExpirySweeper(orders, &fixedClock{now: now}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("initial sweep did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
