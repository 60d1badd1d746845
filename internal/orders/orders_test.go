package orders

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solswap/swap-api/internal/events"
	"github.com/solswap/swap-api/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&types.Order{}))
	return db
}

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return NewService(newTestDB(t), bus), bus
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		UserWallet:  "w1",
		InputToken:  "SOL",
		OutputToken: "USDC",
		InputAmount: 10,
	}
}

func TestSubmitCreatesPendingOrder(t *testing.T) {
	svc, _ := newTestService(t)

	order, err := svc.Submit(validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, "w1", order.UserWallet)
	assert.Equal(t, "SOL", order.InputToken)
	assert.Equal(t, "USDC", order.OutputToken)
	assert.Equal(t, 10.0, order.InputAmount)
	assert.Equal(t, types.StatusPending, order.Status)
	assert.Zero(t, order.OutputAmount)
	assert.Empty(t, order.SelectedVenue)
	assert.Empty(t, order.TxHash)
	assert.Empty(t, order.Error)
}

func TestSubmitIDsAreTimeOrdered(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.Submit(validRequest())
	require.NoError(t, err)
	second, err := svc.Submit(validRequest())
	require.NoError(t, err)

	assert.Less(t, first.OrderID, second.OrderID)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
		field  string
	}{
		{"empty wallet", func(r *SubmitRequest) { r.UserWallet = "" }, "user_wallet"},
		{"blank wallet", func(r *SubmitRequest) { r.UserWallet = "   " }, "user_wallet"},
		{"empty input token", func(r *SubmitRequest) { r.InputToken = "" }, "input_token"},
		{"empty output token", func(r *SubmitRequest) { r.OutputToken = "" }, "output_token"},
		{"same tokens", func(r *SubmitRequest) { r.OutputToken = r.InputToken }, "output_token"},
		{"zero amount", func(r *SubmitRequest) { r.InputAmount = 0 }, "input_amount"},
		{"negative amount", func(r *SubmitRequest) { r.InputAmount = -5 }, "input_amount"},
		{"nan amount", func(r *SubmitRequest) { r.InputAmount = math.NaN() }, "input_amount"},
		{"infinite amount", func(r *SubmitRequest) { r.InputAmount = math.Inf(1) }, "input_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)

			req := validRequest()
			tt.mutate(&req)

			_, err := svc.Submit(req)
			var validation *types.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.field, validation.Field)

			// Nothing persisted on rejection
			persisted, err := svc.ListByWallet("w1", 10)
			require.NoError(t, err)
			assert.Empty(t, persisted)
		})
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get("no-such-order")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestListByWalletNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)

	var ids []string
	for i := 0; i < 5; i++ {
		order, err := svc.Submit(validRequest())
		require.NoError(t, err)
		ids = append(ids, order.OrderID)
	}
	other, err := svc.Submit(SubmitRequest{
		UserWallet: "w2", InputToken: "SOL", OutputToken: "USDC", InputAmount: 1,
	})
	require.NoError(t, err)

	listed, err := svc.ListByWallet("w1", 3)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, ids[4], listed[0].OrderID)
	assert.Equal(t, ids[3], listed[1].OrderID)
	assert.Equal(t, ids[2], listed[2].OrderID)

	for _, o := range listed {
		assert.NotEqual(t, other.OrderID, o.OrderID)
	}
}

func TestClaimRoutingGuardsPendingStatus(t *testing.T) {
	svc, _ := newTestService(t)

	order, err := svc.Submit(validRequest())
	require.NoError(t, err)

	claimed, err := svc.ClaimRouting(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRouting, claimed.Status)

	_, err = svc.ClaimRouting(order.OrderID)
	require.ErrorIs(t, err, types.ErrInvalidState)

	_, err = svc.ClaimRouting("no-such-order")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	svc, _ := newTestService(t)

	order, err := svc.Submit(validRequest())
	require.NoError(t, err)

	const claimers = 8
	errs := make([]error, claimers)

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ClaimRouting(order.OrderID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, types.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestTransitionPersistsBeforePublishing(t *testing.T) {
	svc, bus := newTestService(t)

	order, err := svc.Submit(validRequest())
	require.NoError(t, err)
	_, err = svc.ClaimRouting(order.OrderID)
	require.NoError(t, err)

	sub := bus.Subscribe(order.OrderID)
	defer sub.Unsubscribe()

	_, err = svc.Transition(order.OrderID, types.StatusBuilding)
	require.NoError(t, err)

	event := <-sub.Events()
	assert.Equal(t, types.StatusBuilding, event.Status)

	// Re-querying after observing the event reflects the same status
	stored, err := svc.Get(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusBuilding, stored.Status)
}

func TestCompleteRecordsExecution(t *testing.T) {
	svc, bus := newTestService(t)

	order, err := svc.Submit(validRequest())
	require.NoError(t, err)

	sub := bus.Subscribe(order.OrderID)
	defer sub.Unsubscribe()

	confirmed, err := svc.Complete(order.OrderID, "Raydium", 99.5, "abc123")
	require.NoError(t, err)

	assert.Equal(t, types.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "Raydium", confirmed.SelectedVenue)
	assert.Equal(t, 99.5, confirmed.OutputAmount)
	assert.Equal(t, "abc123", confirmed.TxHash)

	event := <-sub.Events()
	require.NotNil(t, event.Data)
	assert.Equal(t, "Raydium", event.Data.SelectedVenue)
	assert.Equal(t, 99.5, event.Data.OutputAmount)
	assert.Equal(t, "abc123", event.Data.TxHash)
}

func TestFailRecordsError(t *testing.T) {
	svc, bus := newTestService(t)

	order, err := svc.Submit(validRequest())
	require.NoError(t, err)

	sub := bus.Subscribe(order.OrderID)
	defer sub.Unsubscribe()

	failed, err := svc.Fail(order.OrderID, "routing failed: no venues")
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, failed.Status)
	assert.Equal(t, "routing failed: no venues", failed.Error)

	event := <-sub.Events()
	require.NotNil(t, event.Data)
	assert.Equal(t, "routing failed: no venues", event.Data.Error)
}
