package application

import (
	"context"
	"testing"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/order-service/infrastructure"
	"github.com/draftea/order-system/order-service/mocks"
	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func orderIn(t *testing.T, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order, err := domain.NewCreatedOrder("product-1", 2, "customer-1")
	require.NoError(t, err)
	switch status {
	case domain.OrderStatusCreated:
	case domain.OrderStatusConfirmed:
		require.NoError(t, order.Confirm())
	case domain.OrderStatusPaymentPending:
		require.NoError(t, order.Confirm())
		require.NoError(t, order.MarkPaymentPending())
	case domain.OrderStatusPaid:
		require.NoError(t, order.Confirm())
		require.NoError(t, order.MarkPaymentPending())
		require.NoError(t, order.ApplyPaymentResult(domain.PaymentResult{Success: true}))
	case domain.OrderStatusFailed:
		require.NoError(t, order.Fail())
	default:
		t.Fatalf("unsupported status %s", status)
	}
	return order
}

// tolerantBreakers never trips within a single test
func tolerantBreakers() *resilience.Registry {
	settings := resilience.DefaultSettings()
	settings.VolumeThreshold = 1000
	return resilience.NewRegistry(settings)
}

func TestInitiatePayment_Execute(t *testing.T) {
	tests := []struct {
		name            string
		initial         domain.OrderStatus
		setupGateway    func(*mocks.MockPaymentGateway, *domain.Order)
		persisted       bool
		expectedError   error
		wantStatus      domain.OrderStatus
		wantPaymentErr  string
		wantSuccess     bool
		wantNilResponse bool
	}{
		{
			name:    "payment completed",
			initial: domain.OrderStatusConfirmed,
			setupGateway: func(gw *mocks.MockPaymentGateway, o *domain.Order) {
				gw.EXPECT().Process(mock.Anything,
					domain.PaymentRequest{OrderID: o.ID.String(), Quantity: 2, Currency: "USD"},
					domain.PaymentOptions{ProcessingTime: "250"},
				).Return(&domain.PaymentResult{Success: true, TransactionID: "tx-1", PaymentID: "pay-1", Status: "completed"}, nil).Once()
			},
			persisted:   true,
			wantStatus:  domain.OrderStatusPaid,
			wantSuccess: true,
		},
		{
			name:    "payment declined",
			initial: domain.OrderStatusConfirmed,
			setupGateway: func(gw *mocks.MockPaymentGateway, o *domain.Order) {
				gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).
					Return(&domain.PaymentResult{Success: false, Message: "Payment failed due to large quantity", PaymentID: "pay-2", Status: "failed"}, nil).Once()
			},
			persisted:      true,
			wantStatus:     domain.OrderStatusPaymentFailed,
			wantPaymentErr: "Payment failed due to large quantity",
		},
		{
			name:    "retry after earlier unavailability",
			initial: domain.OrderStatusPaymentPending,
			setupGateway: func(gw *mocks.MockPaymentGateway, o *domain.Order) {
				gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).
					Return(nil, errors.New("connection refused")).Once()
				gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).
					Return(&domain.PaymentResult{Success: true, TransactionID: "tx-3"}, nil).Once()
			},
			persisted:   true,
			wantStatus:  domain.OrderStatusPaid,
			wantSuccess: true,
		},
		{
			name:    "gateway unreachable",
			initial: domain.OrderStatusConfirmed,
			setupGateway: func(gw *mocks.MockPaymentGateway, o *domain.Order) {
				gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).
					Return(nil, errors.New("connection refused")).Times(4)
			},
			persisted:       true,
			expectedError:   domain.ErrServiceUnavailable,
			wantStatus:      domain.OrderStatusPaymentPending,
			wantPaymentErr:  "connection refused",
			wantNilResponse: true,
		},
		{
			name:            "order not payable",
			initial:         domain.OrderStatusFailed,
			setupGateway:    func(*mocks.MockPaymentGateway, *domain.Order) {},
			expectedError:   domain.ErrInvalidOrderState,
			wantStatus:      domain.OrderStatusFailed,
			wantNilResponse: true,
		},
		{
			name:            "order already paid",
			initial:         domain.OrderStatusPaid,
			setupGateway:    func(*mocks.MockPaymentGateway, *domain.Order) {},
			expectedError:   domain.ErrInvalidOrderState,
			wantStatus:      domain.OrderStatusPaid,
			wantNilResponse: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockOrderRepository(t)
			gw := mocks.NewMockPaymentGateway(t)
			order := orderIn(t, tt.initial)

			repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
			if tt.persisted {
				repo.EXPECT().Update(mock.Anything, order).Return(nil).Once()
				repo.EXPECT().UpdateFrom(mock.Anything, order, domain.OrderStatusPaymentPending).Return(nil).Once()
			}
			tt.setupGateway(gw, order)

			uc := NewInitiatePayment(repo, gw, tolerantBreakers(), testPolicy, zap.NewNop())
			result, err := uc.Execute(context.Background(), &PaymentCommand{
				OrderID: order.ID.String(), Quantity: 2, ProcessingTime: "250",
			})

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				require.NoError(t, err)
			}
			if tt.wantNilResponse {
				assert.Nil(t, result)
			} else {
				require.NotNil(t, result)
				assert.Equal(t, tt.wantSuccess, result.Success)
			}
			assert.Equal(t, tt.wantStatus, order.Status)
			assert.Contains(t, order.PaymentError, tt.wantPaymentErr)
		})
	}
}

func TestInitiatePayment_CircuitOpen(t *testing.T) {
	repo := mocks.NewMockOrderRepository(t)
	gw := mocks.NewMockPaymentGateway(t)
	settings := resilience.DefaultSettings()
	settings.VolumeThreshold = 0
	breakers := resilience.NewRegistry(settings)

	// a single failure trips a breaker without a volume threshold
	err := breakers.Fire(context.Background(), PaymentBreakerName, func(context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, resilience.StateOpen, breakers.State(PaymentBreakerName))

	order := orderIn(t, domain.OrderStatusConfirmed)
	repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
	repo.EXPECT().Update(mock.Anything, order).Return(nil).Once()
	repo.EXPECT().UpdateFrom(mock.Anything, order, domain.OrderStatusPaymentPending).Return(nil).Once()

	uc := NewInitiatePayment(repo, gw, breakers, testPolicy, zap.NewNop())
	result, err := uc.Execute(context.Background(), &PaymentCommand{OrderID: order.ID.String(), Quantity: 2, Currency: "usd"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, domain.OrderStatusPaymentPending, order.Status)
	assert.Equal(t, "payment service temporarily unavailable", order.PaymentError)
	gw.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
}

func seededOrder(t *testing.T, repo domain.OrderRepository, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order := orderIn(t, status)
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestInitiatePayment_SettledByCallbackDuringCall(t *testing.T) {
	tests := []struct {
		name        string
		callback    domain.PaymentResult
		gatewayRes  *domain.PaymentResult
		gatewayErr  error
		wantStatus  domain.OrderStatus
		wantSuccess bool
		wantTxID    string
	}{
		{
			name:        "gateway error after callback paid",
			callback:    domain.PaymentResult{Success: true, TransactionID: "tx-cb", PaymentID: "pay-cb", Status: "completed"},
			gatewayErr:  errors.New("connection reset"),
			wantStatus:  domain.OrderStatusPaid,
			wantSuccess: true,
			wantTxID:    "tx-cb",
		},
		{
			name:       "late success after callback declined",
			callback:   domain.PaymentResult{Success: false, Message: "Payment processing failed", Status: "failed"},
			gatewayRes: &domain.PaymentResult{Success: true, TransactionID: "tx-late", Status: "completed"},
			wantStatus: domain.OrderStatusPaymentFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := infrastructure.NewMemoryOrderRepository()
			gw := mocks.NewMockPaymentGateway(t)
			order := seededOrder(t, repo, domain.OrderStatusConfirmed)
			callback := NewHandlePaymentCallback(repo, zap.NewNop())

			gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).
				RunAndReturn(func(ctx context.Context, _ domain.PaymentRequest, _ domain.PaymentOptions) (*domain.PaymentResult, error) {
					assert.NoError(t, callback.Execute(ctx, domain.PaymentCallback{OrderID: order.ID.String(), Payload: tt.callback}))
					return tt.gatewayRes, tt.gatewayErr
				}).Once()
			if tt.gatewayErr != nil {
				gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.gatewayErr).Times(testPolicy.MaxRetries)
			}

			uc := NewInitiatePayment(repo, gw, tolerantBreakers(), testPolicy, zap.NewNop())
			result, err := uc.Execute(context.Background(), &PaymentCommand{OrderID: order.ID.String(), Quantity: 2})

			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantTxID, result.TransactionID)

			stored, err := repo.FindByID(context.Background(), order.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, tt.callback.PaymentID, stored.PaymentID)
		})
	}
}

func TestInitiatePayment_TransientFailureWithDefaultBreaker(t *testing.T) {
	repo := infrastructure.NewMemoryOrderRepository()
	gw := mocks.NewMockPaymentGateway(t)
	order := seededOrder(t, repo, domain.OrderStatusConfirmed)

	settings := resilience.DefaultSettings()
	settings.IsIgnored = resilience.IsPermanent
	breakers := resilience.NewRegistry(settings)

	gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	gw.EXPECT().Process(mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.PaymentResult{Success: true, TransactionID: "tx-9", Status: "completed"}, nil).Once()

	uc := NewInitiatePayment(repo, gw, breakers, testPolicy, zap.NewNop())
	result, err := uc.Execute(context.Background(), &PaymentCommand{OrderID: order.ID.String(), Quantity: 2})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, resilience.StateClosed, breakers.State(PaymentBreakerName))

	stored, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, stored.Status)
	assert.Equal(t, "tx-9", stored.TransactionID)
}

func TestInitiatePayment_Validation(t *testing.T) {
	tests := []struct {
		name          string
		command       *PaymentCommand
		setupRepo     func(*mocks.MockOrderRepository)
		expectedError error
	}{
		{name: "missing order id", command: &PaymentCommand{Quantity: 1}, expectedError: domain.ErrInvalidRequest},
		{name: "malformed order id", command: &PaymentCommand{OrderID: "abc", Quantity: 1}, expectedError: domain.ErrInvalidRequest},
		{name: "bad quantity", command: &PaymentCommand{OrderID: "550e8400-e29b-41d4-a716-446655440000", Quantity: 0.5}, expectedError: domain.ErrInvalidQuantity},
		{
			name:    "unknown order",
			command: &PaymentCommand{OrderID: "550e8400-e29b-41d4-a716-446655440000", Quantity: 1},
			setupRepo: func(repo *mocks.MockOrderRepository) {
				repo.EXPECT().FindByID(mock.Anything, mock.Anything).Return(nil, domain.ErrOrderNotFound).Once()
			},
			expectedError: domain.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockOrderRepository(t)
			if tt.setupRepo != nil {
				tt.setupRepo(repo)
			}
			uc := NewInitiatePayment(repo, mocks.NewMockPaymentGateway(t), tolerantBreakers(), testPolicy, zap.NewNop())

			_, err := uc.Execute(context.Background(), tt.command)
			assert.ErrorIs(t, err, tt.expectedError)
		})
	}
}

func TestInitiatePaymentAsync_Execute(t *testing.T) {
	t.Run("publishes process_payment", func(t *testing.T) {
		repo := mocks.NewMockOrderRepository(t)
		publisher := mocks.NewMockPublisher(t)
		order := orderIn(t, domain.OrderStatusConfirmed)

		repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
		repo.EXPECT().Update(mock.Anything, withStatus(domain.OrderStatusPaymentPending)).Return(nil).Once()
		publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(func(evt *events.Event) bool {
			var req domain.PaymentRequest
			return evt.Topic == events.ProcessPaymentTopic && evt.UnmarshalPayload(&req) == nil &&
				req.OrderID == order.ID.String() && req.Currency == "EUR" && req.Quantity == 2
		})).Return(nil).Once()

		uc := NewInitiatePaymentAsync(repo, publisher, 5*time.Second, zap.NewNop())
		result, err := uc.Execute(context.Background(), &PaymentCommand{OrderID: order.ID.String(), Quantity: 2, Currency: "EUR"})

		require.NoError(t, err)
		assert.Equal(t, &AsyncPaymentResponse{
			OrderID: order.ID.String(),
			Status:  "payment_pending",
			Message: "Payment processing initiated",
		}, result)
	})

	t.Run("publish failure", func(t *testing.T) {
		repo := mocks.NewMockOrderRepository(t)
		publisher := mocks.NewMockPublisher(t)
		order := orderIn(t, domain.OrderStatusConfirmed)

		repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
		repo.EXPECT().Update(mock.Anything, order).Return(nil).Twice()
		publisher.EXPECT().Publish(mock.Anything, mock.Anything).Return(errors.New("channel closed")).Once()

		uc := NewInitiatePaymentAsync(repo, publisher, 5*time.Second, zap.NewNop())
		result, err := uc.Execute(context.Background(), &PaymentCommand{OrderID: order.ID.String(), Quantity: 2})

		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
		assert.Equal(t, domain.OrderStatusPaymentPending, order.Status)
		assert.NotEmpty(t, order.PaymentError)
	})

	t.Run("unconfirmed order", func(t *testing.T) {
		repo := mocks.NewMockOrderRepository(t)
		order := orderIn(t, domain.OrderStatusCreated)
		repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()

		uc := NewInitiatePaymentAsync(repo, mocks.NewMockPublisher(t), 5*time.Second, zap.NewNop())
		_, err := uc.Execute(context.Background(), &PaymentCommand{OrderID: order.ID.String(), Quantity: 2})
		assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	})
}

func TestHandlePaymentCallback_Execute(t *testing.T) {
	tests := []struct {
		name          string
		initial       domain.OrderStatus
		payload       domain.PaymentResult
		findErr       error
		expectUpdate  bool
		updateErr     error
		expectedError bool
		wantStatus    domain.OrderStatus
	}{
		{
			name:         "success settles a pending order",
			initial:      domain.OrderStatusPaymentPending,
			payload:      domain.PaymentResult{Success: true, TransactionID: "tx-1", PaymentID: "pay-1", Status: "completed"},
			expectUpdate: true,
			wantStatus:   domain.OrderStatusPaid,
		},
		{
			name:         "failure settles a pending order",
			initial:      domain.OrderStatusPaymentPending,
			payload:      domain.PaymentResult{Success: false, Message: "Payment processing failed", Status: "failed"},
			expectUpdate: true,
			wantStatus:   domain.OrderStatusPaymentFailed,
		},
		{
			name:         "order settled while the callback was applied",
			initial:      domain.OrderStatusPaymentPending,
			payload:      domain.PaymentResult{Success: true},
			expectUpdate: true,
			updateErr:    domain.ErrOrderStatusChanged,
			wantStatus:   domain.OrderStatusPaid,
		},
		{
			name:       "duplicate callback is ignored",
			initial:    domain.OrderStatusPaid,
			payload:    domain.PaymentResult{Success: false},
			wantStatus: domain.OrderStatusPaid,
		},
		{
			name:       "callback before payment started is ignored",
			initial:    domain.OrderStatusConfirmed,
			payload:    domain.PaymentResult{Success: true},
			wantStatus: domain.OrderStatusConfirmed,
		},
		{
			name:    "unknown order is dropped",
			initial: domain.OrderStatusConfirmed,
			findErr: domain.ErrOrderNotFound,
		},
		{
			name:          "store failure is returned for redelivery",
			initial:       domain.OrderStatusConfirmed,
			findErr:       errors.New("connection lost"),
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockOrderRepository(t)
			order := orderIn(t, tt.initial)

			if tt.findErr != nil {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(nil, tt.findErr).Once()
			} else {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
			}
			if tt.expectUpdate {
				repo.EXPECT().UpdateFrom(mock.Anything, order, domain.OrderStatusPaymentPending).Return(tt.updateErr).Once()
			}

			uc := NewHandlePaymentCallback(repo, zap.NewNop())
			err := uc.Execute(context.Background(), domain.PaymentCallback{OrderID: order.ID.String(), Payload: tt.payload})

			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.findErr == nil {
				assert.Equal(t, tt.wantStatus, order.Status)
			}
		})
	}
}

func TestHandlePaymentCallback_InvalidOrderID(t *testing.T) {
	uc := NewHandlePaymentCallback(mocks.NewMockOrderRepository(t), zap.NewNop())
	assert.NoError(t, uc.Execute(context.Background(), domain.PaymentCallback{OrderID: "not-a-uuid"}))
}

func TestGetPaymentStatus_Execute(t *testing.T) {
	gw := mocks.NewMockPaymentGateway(t)
	gw.EXPECT().GetStatus(mock.Anything, "tx-1").Return(map[string]interface{}{"status": "completed"}, nil).Once()
	gw.EXPECT().GetStatus(mock.Anything, "tx-2").Return(nil, errors.New("timeout")).Once()

	uc := NewGetPaymentStatus(gw)

	status, err := uc.Execute(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status["status"])

	_, err = uc.Execute(context.Background(), "tx-2")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)

	_, err = uc.Execute(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
