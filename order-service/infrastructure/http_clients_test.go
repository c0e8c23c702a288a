package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryHTTPClient_Check(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantLevel     *domain.InventoryLevel
		wantPermanent bool
		wantErr       bool
	}{
		{
			name:      "available",
			status:    http.StatusOK,
			body:      `{"productId":"product-1","quantity":10,"isAvailable":true}`,
			wantLevel: &domain.InventoryLevel{ProductID: "product-1", Quantity: 10, IsAvailable: true},
		},
		{
			name:      "unknown product has no stock",
			status:    http.StatusNotFound,
			body:      `{"message":"not found"}`,
			wantLevel: &domain.InventoryLevel{ProductID: "product-1"},
		},
		{
			name:          "bad request",
			status:        http.StatusBadRequest,
			body:          `{"message":"invalid product"}`,
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/inventory/check/product-1", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewInventoryHTTPClient(srv.URL, time.Second)
			level, err := client.Check(context.Background(), "product-1")

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantPermanent, resilience.IsPermanent(err))
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, tt.status, statusErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func TestInventoryHTTPClient_Reserve(t *testing.T) {
	var got domain.InventoryReservation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory/update", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewInventoryHTTPClient(srv.URL, time.Second)
	reservation := domain.InventoryReservation{ProductID: "product-1", Quantity: 2, OrderID: "o-1"}

	require.NoError(t, client.Reserve(context.Background(), reservation))
	assert.Equal(t, reservation, got)
}

func TestInventoryHTTPClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewInventoryHTTPClient(srv.URL, time.Second)
	_, err := client.Check(context.Background(), "product-1")
	require.Error(t, err)
	assert.False(t, resilience.IsPermanent(err))
}

func TestPaymentHTTPClient_Process(t *testing.T) {
	var gotReq domain.PaymentRequest
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment/process", r.URL.Path)
		gotQuery = r.URL.Query().Get("processingTime")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":false,"message":"card declined","paymentId":"pay-1","status":"failed"}`))
	}))
	defer srv.Close()

	client := NewPaymentHTTPClient(srv.URL, time.Second)
	req := domain.PaymentRequest{OrderID: "o-1", Quantity: 100, Currency: "USD"}

	res, err := client.Process(context.Background(), req, domain.PaymentOptions{ProcessingTime: "4000"})
	require.NoError(t, err)
	assert.Equal(t, req, gotReq)
	assert.Equal(t, "4000", gotQuery)
	assert.False(t, res.Success)
	assert.Equal(t, "card declined", res.Message)
	assert.Equal(t, "pay-1", res.PaymentID)
}

func TestPaymentHTTPClient_GetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/tx-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"tx-9","status":"completed"}`))
	}))
	defer srv.Close()

	client := NewPaymentHTTPClient(srv.URL, time.Second)
	status, err := client.GetStatus(context.Background(), "tx-9")
	require.NoError(t, err)
	assert.Equal(t, "completed", status["status"])
}

func TestNotificationHTTPClient_Send(t *testing.T) {
	var mu sync.Mutex
	received := map[string]map[string]interface{}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		received[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewNotificationHTTPClient(NotificationEndpoints{
		Notification: srv.URL,
		Email:        srv.URL,
		Analytics:    srv.URL,
		Unreachable:  "http://127.0.0.1:1",
	}, time.Second)

	order, _ := domain.NewCreatedOrder("p1", 1, "c1")
	ctx := context.Background()

	for _, s := range domain.NotificationServices {
		require.NoError(t, client.Send(ctx, s, order, false))
	}

	assert.Equal(t, "ORDER_CONFIRMATION", received["/notifications"]["type"])
	assert.Equal(t, "Order Confirmation", received["/emails"]["subject"])
	assert.Equal(t, "ORDER_CONFIRMED", received["/events"]["event"])
	assert.Equal(t, order.ID.String(), received["/events"]["orderId"])
	assert.Equal(t, "c1", received["/notifications"]["customerId"])

	err := client.Send(ctx, domain.ServiceEmail, order, true)
	assert.Error(t, err)

	err = client.Send(ctx, domain.NotificationService("sms"), order, false)
	assert.ErrorIs(t, err, domain.ErrUnknownService)
}
