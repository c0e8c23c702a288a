package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/draftea/order-system/order-service/application"
	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/order-service/infrastructure"
	"github.com/draftea/order-system/order-service/mocks"
	"github.com/draftea/order-system/shared/events"
	sharedinfra "github.com/draftea/order-system/shared/infrastructure"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	repo      *infrastructure.MemoryOrderRepository
	inventory *mocks.MockInventoryClient
	gateway   *mocks.MockPaymentGateway
	sender    *mocks.MockNotificationSender
	bus       *sharedinfra.MemoryBus
	handlers  *OrderHandlers
	router    chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	policy := resilience.RetryPolicy{AttemptTimeout: time.Second}

	settings := resilience.DefaultSettings()
	settings.VolumeThreshold = 1000
	breakers := resilience.NewRegistry(settings)

	notifyPolicies := map[domain.NotificationService]resilience.RetryPolicy{
		domain.ServiceNotification: policy,
		domain.ServiceEmail:        policy,
		domain.ServiceAnalytics:    policy,
	}

	f := &fixture{
		repo:      infrastructure.NewMemoryOrderRepository(),
		inventory: mocks.NewMockInventoryClient(t),
		gateway:   mocks.NewMockPaymentGateway(t),
		sender:    mocks.NewMockNotificationSender(t),
		bus:       sharedinfra.NewMemoryBus(logger),
	}

	f.handlers = NewOrderHandlers(
		application.NewCreateOrderSync(f.repo, f.inventory, policy, logger),
		application.NewCreateOrderAsync(f.repo, f.bus, policy, 2*time.Second, logger),
		application.NewInitiatePayment(f.repo, f.gateway, breakers, policy, logger),
		application.NewInitiatePaymentAsync(f.repo, f.bus, time.Second, logger),
		application.NewGetPaymentStatus(f.gateway),
		application.NewGetOrderStatus(f.repo),
		application.NewStreamOrderStatus(f.repo, 10*time.Millisecond, 500*time.Millisecond, logger),
		application.NewNotifyOrderSync(f.repo, f.sender, notifyPolicies, true, logger),
		application.NewNotifyOrderAsync(f.repo, f.bus, time.Second, logger),
		logger,
	)

	r := chi.NewRouter()
	f.handlers.RegisterRoutes(r)
	f.router = r
	return f
}

// seed stores an order moved to status
func (f *fixture) seed(t *testing.T, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order, err := domain.NewCreatedOrder("product-1", 2, "customer-1")
	require.NoError(t, err)
	if status != domain.OrderStatusCreated {
		require.NoError(t, order.Confirm())
	}
	if status == domain.OrderStatusPaymentPending || status == domain.OrderStatusPaid {
		require.NoError(t, order.MarkPaymentPending())
	}
	if status == domain.OrderStatusPaid {
		require.NoError(t, order.ApplyPaymentResult(domain.PaymentResult{Success: true, TransactionID: "tx-1"}))
	}
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid quantity", errors.Wrap(domain.ErrInvalidQuantity, "x"), http.StatusBadRequest, "invalid_quantity"},
		{"invalid request", domain.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
		{"insufficient inventory", domain.ErrInsufficientInventory, http.StatusBadRequest, "insufficient_inventory"},
		{"hook disabled", domain.ErrNotificationHookDisabled, http.StatusBadRequest, "hook_disabled"},
		{"circuit open", errors.Wrap(resilience.ErrCircuitOpen, "payment service temporarily unavailable"), http.StatusServiceUnavailable, "circuit_open"},
		{"unavailable", errors.Wrap(domain.ErrServiceUnavailable, "inventory"), http.StatusServiceUnavailable, "service_unavailable"},
		{"not found", domain.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"invalid state", domain.ErrInvalidOrderState, http.StatusConflict, "invalid_state"},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict, "invalid_state"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), errors.New("pq: connection refused"), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, "internal_error", body.Code)
}

func TestOrderHandlers_CreateOrderSync(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		f := newFixture(t)
		f.inventory.EXPECT().Check(mock.Anything, "product-1").
			Return(&domain.InventoryLevel{ProductID: "product-1", Quantity: 10, IsAvailable: true}, nil).Once()
		f.inventory.EXPECT().Reserve(mock.Anything, mock.Anything).Return(nil).Once()

		rec := f.do(http.MethodPost, "/orders/sync", `{"productId":"product-1","quantity":2,"customerId":"c-1"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		order := decodeBody[application.OrderResponse](t, rec)
		assert.Equal(t, "confirmed", order.Status)
		assert.Equal(t, 2, order.Quantity)
		assert.NotEmpty(t, order.ID)
	})

	t.Run("insufficient stock returns the rejected order", func(t *testing.T) {
		f := newFixture(t)
		f.inventory.EXPECT().Check(mock.Anything, "product-1").
			Return(&domain.InventoryLevel{ProductID: "product-1", Quantity: 1}, nil).Once()

		rec := f.do(http.MethodPost, "/orders/sync", `{"productId":"product-1","quantity":5}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody[ErrorResponse](t, rec)
		assert.Equal(t, "insufficient_inventory", body.Code)
		require.NotNil(t, body.Order)
		assert.Equal(t, "failed", body.Order.Status)
	})

	t.Run("fractional quantity", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/orders/sync", `{"productId":"product-1","quantity":1.5}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_quantity", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/orders/sync", `{"productId":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("inventory down", func(t *testing.T) {
		f := newFixture(t)
		f.inventory.EXPECT().Check(mock.Anything, "product-1").Return(nil, errors.New("connection refused")).Once()

		rec := f.do(http.MethodPost, "/orders/sync", `{"productId":"product-1","quantity":1}`)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "service_unavailable", decodeBody[ErrorResponse](t, rec).Code)
	})
}

func TestOrderHandlers_CreateOrderAsync(t *testing.T) {
	f := newFixture(t)
	f.bus.Respond(events.CheckUpdateInventoryTopic, func(ctx context.Context, request *events.Event) (interface{}, error) {
		return domain.InventoryLevel{ProductID: "product-1", Quantity: 8, IsAvailable: true}, nil
	})

	rec := f.do(http.MethodPost, "/orders/async-direct", `{"productId":"product-1","quantity":2}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	order := decodeBody[application.OrderResponse](t, rec)
	assert.Equal(t, "pending", order.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.handlers.createOrderAsync.Wait(ctx))

	rec = f.do(http.MethodGet, "/orders/status/"+order.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decodeBody[application.OrderResponse](t, rec).Status)
}

func TestOrderHandlers_InitiatePayment(t *testing.T) {
	t.Run("paid", func(t *testing.T) {
		f := newFixture(t)
		order := f.seed(t, domain.OrderStatusConfirmed)
		f.gateway.EXPECT().Process(mock.Anything, mock.MatchedBy(func(req domain.PaymentRequest) bool {
			return req.OrderID == order.ID.String() && req.Currency == "USD"
		}), domain.PaymentOptions{ProcessingTime: "250"}).
			Return(&domain.PaymentResult{Success: true, TransactionID: "tx-9", PaymentID: "pay-9", Status: "completed"}, nil).Once()

		body := `{"orderId":"` + order.ID.String() + `","quantity":2}`
		rec := f.do(http.MethodPost, "/orders/payment/sync?processingTime=250", body)

		require.Equal(t, http.StatusOK, rec.Code)
		result := decodeBody[domain.PaymentResult](t, rec)
		assert.True(t, result.Success)
		assert.Equal(t, "tx-9", result.TransactionID)

		rec = f.do(http.MethodGet, "/orders/status/"+order.ID.String(), "")
		status := decodeBody[application.OrderResponse](t, rec)
		assert.Equal(t, "paid", status.Status)
		assert.Equal(t, "tx-9", status.TransactionID)
	})

	t.Run("order not confirmed", func(t *testing.T) {
		f := newFixture(t)
		order := f.seed(t, domain.OrderStatusCreated)

		rec := f.do(http.MethodPost, "/orders/payment/sync", `{"orderId":"`+order.ID.String()+`","quantity":2}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_state", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("async publishes process_payment", func(t *testing.T) {
		f := newFixture(t)
		order := f.seed(t, domain.OrderStatusConfirmed)

		rec := f.do(http.MethodPost, "/orders/payment/async", `{"orderId":"`+order.ID.String()+`","quantity":2,"currency":"eur"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		ack := decodeBody[application.AsyncPaymentResponse](t, rec)
		assert.Equal(t, "payment_pending", ack.Status)

		published := f.bus.Published()
		require.Len(t, published, 1)
		assert.Equal(t, events.ProcessPaymentTopic, published[0].Topic)
		var req domain.PaymentRequest
		require.NoError(t, published[0].UnmarshalPayload(&req))
		assert.Equal(t, "EUR", req.Currency)
	})
}

func TestOrderHandlers_GetPaymentStatus(t *testing.T) {
	f := newFixture(t)
	f.gateway.EXPECT().GetStatus(mock.Anything, "tx-1").
		Return(map[string]interface{}{"transactionId": "tx-1", "status": "completed"}, nil).Once()

	rec := f.do(http.MethodGet, "/orders/payment/status/tx-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody[map[string]interface{}](t, rec)["status"])
}

func TestOrderHandlers_GetOrderStatus(t *testing.T) {
	f := newFixture(t)
	order := f.seed(t, domain.OrderStatusConfirmed)

	rec := f.do(http.MethodGet, "/orders/status/"+order.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.ID.String(), decodeBody[application.OrderResponse](t, rec).ID)

	for _, id := range []string{"not-a-uuid", "9b2e1c1e-8a4d-4a4e-9d55-3c8f0b8f6f10"} {
		rec = f.do(http.MethodGet, "/orders/status/"+id, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, rec).Code)
	}
}

func TestOrderHandlers_NotifyOrderSync(t *testing.T) {
	t.Run("partial success", func(t *testing.T) {
		f := newFixture(t)
		order := f.seed(t, domain.OrderStatusConfirmed)
		f.sender.EXPECT().Send(mock.Anything, domain.ServiceNotification, mock.Anything, false).Return(nil).Once()
		f.sender.EXPECT().Send(mock.Anything, domain.ServiceEmail, mock.Anything, true).Return(errors.New("dial tcp: refused")).Once()
		f.sender.EXPECT().Send(mock.Anything, domain.ServiceAnalytics, mock.Anything, false).Return(nil).Once()

		rec := f.do(http.MethodPost, "/orders/"+order.ID.String()+"/notify-sync", `{"disabledService":"email"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		result := decodeBody[domain.BroadcastResult](t, rec)
		assert.False(t, result.FlowSuccess)
		assert.True(t, result.PartialSuccess)
		assert.Equal(t, 2, result.CompletedServices)
		assert.False(t, result.Services[domain.ServiceEmail].Success)
	})

	t.Run("empty body", func(t *testing.T) {
		f := newFixture(t)
		order := f.seed(t, domain.OrderStatusConfirmed)
		f.sender.EXPECT().Send(mock.Anything, mock.Anything, mock.Anything, false).Return(nil).Times(3)

		rec := f.do(http.MethodPost, "/orders/"+order.ID.String()+"/notify-sync", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[domain.BroadcastResult](t, rec).FlowSuccess)
	})

	t.Run("order not confirmed", func(t *testing.T) {
		f := newFixture(t)
		order := f.seed(t, domain.OrderStatusCreated)

		rec := f.do(http.MethodPost, "/orders/"+order.ID.String()+"/notify-sync", "")

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestOrderHandlers_NotifyOrderAsync(t *testing.T) {
	f := newFixture(t)
	order := f.seed(t, domain.OrderStatusConfirmed)

	rec := f.do(http.MethodPost, "/orders/"+order.ID.String()+"/notify-async", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[application.BroadcastResponse](t, rec).Success)

	published := f.bus.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.OrderConfirmedTopic, published[0].Topic)
	assert.Equal(t, order.ID, published[0].AggregateID)
}
