package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ParcelDesk/internal/broker/messages"
	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	counters map[uint64]int64
	orders   map[uint64]*models.Order
	nextID   uint64

	createCalls int
	getCalls    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{counters: map[uint64]int64{}, orders: map[uint64]*models.Order{}}
}

func (r *fakeRepo) NextPackageNumber(ctx context.Context, orgID uint64) (int64, error) {
	r.counters[orgID]++
	return r.counters[orgID], nil
}

func (r *fakeRepo) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	r.createCalls++
	r.nextID++
	o := &models.Order{
		ID:             r.nextID,
		OrgID:          in.OrgID,
		PackageNumber:  in.PackageNumber,
		CustomerName:   in.CustomerName,
		Status:         models.OrderStatusPendingReview,
		TotalFeesCents: in.TotalFeesCents,
		CreatedAt:      time.Now().UTC(),
	}
	r.orders[o.ID] = o
	return o, nil
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	r.getCalls++
	return r.orders[id], nil
}

func (r *fakeRepo) ApplyReviewStatus(ctx context.Context, orderID uint64, status string) error {
	o, ok := r.orders[orderID]
	if !ok {
		return context.DeadlineExceeded
	}
	o.Status = status
	return nil
}

type fakeCache struct {
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.data[key]
	return b, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = append([]byte{}, value...)
	return nil
}

func TestService_AllocatePackageNumber(t *testing.T) {
	s := New(newFakeRepo(), nil, 0, "PKG")

	n1, err := s.AllocatePackageNumber(context.Background(), 7)
	require.NoError(t, err)
	n2, err := s.AllocatePackageNumber(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "PKG-7-00001", n1)
	require.Equal(t, "PKG-7-00002", n2)

	other, err := s.AllocatePackageNumber(context.Background(), 8)
	require.NoError(t, err)
	require.Equal(t, "PKG-8-00001", other)

	_, err = s.AllocatePackageNumber(context.Background(), 0)
	require.Error(t, err)
}

func TestService_CreateOrder_validates(t *testing.T) {
	s := New(newFakeRepo(), nil, 0, "PKG")

	_, err := s.CreateOrder(context.Background(), models.OrderCreateInput{PackageNumber: "p", CustomerName: "c"})
	require.Error(t, err)
	_, err = s.CreateOrder(context.Background(), models.OrderCreateInput{OrgID: 1, CustomerName: "c"})
	require.Error(t, err)
	_, err = s.CreateOrder(context.Background(), models.OrderCreateInput{OrgID: 1, PackageNumber: "p"})
	require.Error(t, err)
}

func TestService_GetOrderByID_cacheAside(t *testing.T) {
	repo := newFakeRepo()
	c := newFakeCache()
	s := New(repo, c, time.Minute, "PKG")

	o, err := s.CreateOrder(context.Background(), models.OrderCreateInput{
		OrgID: 1, PackageNumber: "PKG-1-00001", CustomerName: "Амина",
	})
	require.NoError(t, err)

	// CreateOrder прогревает кэш, так что чтение не ходит в репозиторий.
	got, err := s.GetOrderByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)
	require.Equal(t, "Амина", got.CustomerName)
	require.Zero(t, repo.getCalls)

	// Промах кэша идёт в БД и прогревает кэш обратно.
	delete(c.data, currentKey(o.ID))
	got, err = s.GetOrderByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)
	require.Equal(t, 1, repo.getCalls)
	_, ok := c.data[currentKey(o.ID)]
	require.True(t, ok)
}

func TestService_GetOrderByID_missing(t *testing.T) {
	s := New(newFakeRepo(), nil, 0, "PKG")
	o, err := s.GetOrderByID(context.Background(), 404)
	require.NoError(t, err)
	require.Nil(t, o)
}

func TestService_ApplyKafkaReview(t *testing.T) {
	repo := newFakeRepo()
	c := newFakeCache()
	s := New(repo, c, time.Minute, "PKG")

	o, err := s.CreateOrder(context.Background(), models.OrderCreateInput{
		OrgID: 1, PackageNumber: "PKG-1-00001", CustomerName: "Нурлан",
	})
	require.NoError(t, err)

	err = s.ApplyKafkaReview(context.Background(), messages.OrderReviewed{
		OrderID: o.ID, Status: models.OrderStatusApproved, ReviewedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusApproved, repo.orders[o.ID].Status)

	// Кэш перегрет новым статусом.
	var cached models.Order
	require.NoError(t, json.Unmarshal(c.data[currentKey(o.ID)], &cached))
	require.Equal(t, models.OrderStatusApproved, cached.Status)
}

func TestService_ApplyKafkaReview_rejectsUnknownStatus(t *testing.T) {
	s := New(newFakeRepo(), nil, 0, "PKG")

	err := s.ApplyKafkaReview(context.Background(), messages.OrderReviewed{OrderID: 1, Status: "SHIPPED"})
	require.Error(t, err)

	err = s.ApplyKafkaReview(context.Background(), messages.OrderReviewed{Status: models.OrderStatusApproved})
	require.Error(t, err)
}
