package payouts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/db"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox"
)

func newPayoutsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:payouts_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(
		&models.Order{},
		&models.Vendor{},
		&models.PayoutBatch{},
		&models.OutboxEvent{},
	))
	return conn
}

type stubSequence struct {
	next  int64
	err   error
	names []string
}

func (s *stubSequence) NextSequence(_ context.Context, name string) (int64, error) {
	s.names = append(s.names, name)
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

type recordingMetrics struct {
	transitions map[string]int
	settled     int64
	corrections int
}

func (m *recordingMetrics) ObserveTransition(operation, outcome string) {
	if m.transitions == nil {
		m.transitions = map[string]int{}
	}
	m.transitions[operation+":"+outcome]++
}

func (m *recordingMetrics) AddSettled(cents int64) { m.settled += cents }

func (m *recordingMetrics) AddCorrections(count int) { m.corrections += count }

type fixture struct {
	t       *testing.T
	conn    *gorm.DB
	repo    Repository
	svc     *service
	seq     *stubSequence
	metrics *recordingMetrics
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := newPayoutsDB(t)
	repo := NewRepository(conn)
	seq := &stubSequence{}
	recorder := &recordingMetrics{}
	logg := logger.Nop()
	svc, err := NewService(ServiceParams{
		Repository: repo,
		DB:         db.FromConn(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:     logg,
		Policy:     DefaultPolicy(),
		Sequence:   seq,
		Metrics:    recorder,
	})
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		conn:    conn,
		repo:    repo,
		svc:     svc.(*service),
		seq:     seq,
		metrics: recorder,
		clock:   time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC),
	}
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) vendor(name string, pendingCents int64) models.Vendor {
	f.t.Helper()
	vendor := models.Vendor{Name: name, PendingBalanceCents: pendingCents}
	require.NoError(f.t, f.conn.Create(&vendor).Error)
	return vendor
}

type orderOption func(*models.Order)

func withPayment(status enums.PaymentStatus) orderOption {
	return func(o *models.Order) { o.PaymentStatus = status }
}

func withFulfillment(status string) orderOption {
	return func(o *models.Order) { o.FulfillmentStatus = status }
}

func withoutVendor() orderOption {
	return func(o *models.Order) { o.VendorID = nil }
}

func withPayout(status enums.PayoutStatus, batchID *uuid.UUID, earnings int64) orderOption {
	return func(o *models.Order) {
		o.PayoutStatus = status
		o.PayoutBatchID = batchID
		o.VendorEarningsCents = &earnings
	}
}

// order seeds an order that is eligible for payout unless options say otherwise.
func (f *fixture) order(vendorID uuid.UUID, totalCents int64, opts ...orderOption) models.Order {
	f.t.Helper()
	vid := vendorID
	order := models.Order{
		VendorID:          &vid,
		PaymentStatus:     enums.PaymentStatusCompleted,
		FulfillmentStatus: "delivered",
		TotalAmountCents:  totalCents,
		PayoutStatus:      enums.PayoutStatusPending,
	}
	for _, opt := range opts {
		opt(&order)
	}
	require.NoError(f.t, f.conn.Create(&order).Error)
	return order
}

func (f *fixture) reloadOrder(id uuid.UUID) models.Order {
	f.t.Helper()
	var order models.Order
	require.NoError(f.t, f.conn.First(&order, "id = ?", id).Error)
	return order
}

func (f *fixture) reloadVendor(id uuid.UUID) models.Vendor {
	f.t.Helper()
	var vendor models.Vendor
	require.NoError(f.t, f.conn.First(&vendor, "id = ?", id).Error)
	return vendor
}

func (f *fixture) reloadBatch(id uuid.UUID) models.PayoutBatch {
	f.t.Helper()
	var batch models.PayoutBatch
	require.NoError(f.t, f.conn.First(&batch, "id = ?", id).Error)
	return batch
}

func (f *fixture) outboxTypes() []enums.OutboxEventType {
	f.t.Helper()
	var rows []models.OutboxEvent
	require.NoError(f.t, f.conn.Order("created_at ASC").Find(&rows).Error)
	types := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

// threeOrderVendor seeds the canonical 1000/2000/500 vendor with a consistent cache.
func (f *fixture) threeOrderVendor(name string) (models.Vendor, []models.Order) {
	f.t.Helper()
	vendor := f.vendor(name, 3325)
	orders := []models.Order{
		f.order(vendor.ID, 1000),
		f.order(vendor.ID, 2000),
		f.order(vendor.ID, 500),
	}
	return vendor, orders
}

var errSequenceDown = errors.New("redis unavailable")

// racingRepository lets a test mutate rows inside the service transaction right
// before the first order claim.
type racingRepository struct {
	Repository
	tx          *gorm.DB
	beforeClaim func(tx *gorm.DB)
}

func (r *racingRepository) WithTx(tx *gorm.DB) Repository {
	return &racingRepository{Repository: r.Repository.WithTx(tx), tx: tx, beforeClaim: r.beforeClaim}
}

func (r *racingRepository) ClaimOrder(ctx context.Context, claim OrderClaim) (int64, error) {
	if r.beforeClaim != nil && r.tx != nil {
		r.beforeClaim(r.tx)
		r.beforeClaim = nil
	}
	return r.Repository.ClaimOrder(ctx, claim)
}

type noopTx struct{}

func (noopTx) WithTx(context.Context, func(tx *gorm.DB) error) error { return nil }

type noopOutbox struct{}

func (noopOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error { return nil }
