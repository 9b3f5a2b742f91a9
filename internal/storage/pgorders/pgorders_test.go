package pgorders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "parceldesk_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/parceldesk_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestPGOrders_RepoFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.RegisterSender(ctx, "+5215550001", 7, "Maria"))
	orgID, ok, err := st.GetSenderOrg(ctx, "+5215550001")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), orgID)

	_, ok, err = st.GetSenderOrg(ctx, "+0000000000")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := st.NextPackageNumber(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = st.NextPackageNumber(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// Счётчики организаций независимы.
	n, err = st.NextPackageNumber(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	seller := "Shein"
	extErr := "model timeout"
	o, err := st.CreateOrder(ctx, models.OrderCreateInput{
		OrgID:              7,
		PackageNumber:      "PKG-2",
		CustomerName:       "Maria Lopez",
		Seller:             &seller,
		DeclaredValueCents: 500_00,
		DutyCents:          125_00,
		VATCents:           100_00,
		TotalFeesCents:     225_00,
		ExtractionError:    &extErr,
		Items: []models.OrderItem{
			{Description: "boots", HSCode: "6403", Quantity: 2, TotalValueCents: 500_00},
		},
		Attachments: []models.OrderAttachment{
			{StorageURL: "https://media.internal/objects/a1", ContentType: "image/jpeg"},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, o.ID)
	require.Equal(t, models.OrderStatusPendingReview, o.Status)
	require.Len(t, o.Items, 1)
	require.Len(t, o.Attachments, 1)
	require.NotNil(t, o.ExtractionError)

	require.NoError(t, st.ApplyReviewStatus(ctx, o.ID, models.OrderStatusApproved))
	got, err := st.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusApproved, got.Status)

	require.Error(t, st.ApplyReviewStatus(ctx, 999999, models.OrderStatusApproved))

	missing, err := st.GetOrderByID(ctx, 999999)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestPGOrders_NextPackageNumber_concurrentDistinct(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	const workers = 40
	out := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i], errs[i] = st.NextPackageNumber(ctx, 42)
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, workers)
	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, n := range out {
		_, dup := seen[n]
		require.False(t, dup, "duplicate package number %d", n)
		seen[n] = struct{}{}
	}
	require.Len(t, seen, workers)
}
