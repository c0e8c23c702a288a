package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const ordersSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id             UUID PRIMARY KEY,
	product_id     TEXT        NOT NULL,
	quantity       INTEGER     NOT NULL CHECK (quantity > 0),
	customer_id    TEXT        NOT NULL DEFAULT '',
	status         TEXT        NOT NULL,
	payment_id     TEXT        NOT NULL DEFAULT '',
	payment_status TEXT        NOT NULL DEFAULT '',
	payment_error  TEXT        NOT NULL DEFAULT '',
	transaction_id TEXT        NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *sqlx.DB
}

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(db *sqlx.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// postgresOrder represents an order row
type postgresOrder struct {
	ID            string    `db:"id"`
	ProductID     string    `db:"product_id"`
	Quantity      int       `db:"quantity"`
	CustomerID    string    `db:"customer_id"`
	Status        string    `db:"status"`
	PaymentID     string    `db:"payment_id"`
	PaymentStatus string    `db:"payment_status"`
	PaymentError  string    `db:"payment_error"`
	TransactionID string    `db:"transaction_id"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// InitSchema creates the orders table when missing
func (r *PostgresOrderRepository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, ordersSchema); err != nil {
		return errors.Wrap(err, "failed to create orders table")
	}
	return nil
}

// Create inserts a new order
func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, product_id, quantity, customer_id, status,
			payment_id, payment_status, payment_error, transaction_id,
			created_at, updated_at
		) VALUES (
			:id, :product_id, :quantity, :customer_id, :status,
			:payment_id, :payment_status, :payment_error, :transaction_id,
			:created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, r.toPostgres(order)); err != nil {
		return errors.Wrap(err, "failed to insert order")
	}
	return nil
}

// Update overwrites the whole row. The last writer wins.
func (r *PostgresOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET product_id = :product_id, quantity = :quantity, customer_id = :customer_id,
			status = :status, payment_id = :payment_id, payment_status = :payment_status,
			payment_error = :payment_error, transaction_id = :transaction_id,
			updated_at = :updated_at
		WHERE id = :id`

	order.Timestamps = order.Timestamps.Touch()
	res, err := r.db.NamedExecContext(ctx, query, r.toPostgres(order))
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	return nil
}

// guardedOrder carries the status an UpdateFrom expects to replace
type guardedOrder struct {
	postgresOrder
	From string `db:"from_status"`
}

// UpdateFrom overwrites the row only while its status is still from
func (r *PostgresOrderRepository) UpdateFrom(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	query := `
		UPDATE orders
		SET product_id = :product_id, quantity = :quantity, customer_id = :customer_id,
			status = :status, payment_id = :payment_id, payment_status = :payment_status,
			payment_error = :payment_error, transaction_id = :transaction_id,
			updated_at = :updated_at
		WHERE id = :id AND status = :from_status`

	order.Timestamps = order.Timestamps.Touch()
	res, err := r.db.NamedExecContext(ctx, query, guardedOrder{postgresOrder: *r.toPostgres(order), From: from.String()})
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	if n > 0 {
		return nil
	}

	var status string
	err = r.db.GetContext(ctx, &status, `SELECT status FROM orders WHERE id = $1`, order.ID.String())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	case err != nil:
		return errors.Wrap(err, "failed to update order")
	}
	return errors.Wrapf(domain.ErrOrderStatusChanged, "order %s is %s", order.ID, status)
}

// FindByID finds an order by ID
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	query := `
		SELECT id, product_id, quantity, customer_id, status,
			   payment_id, payment_status, payment_error, transaction_id,
			   created_at, updated_at
		FROM orders
		WHERE id = $1`

	var row postgresOrder
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
		}
		return nil, errors.Wrap(err, "failed to find order")
	}

	return r.toDomain(&row), nil
}

func (r *PostgresOrderRepository) toPostgres(o *domain.Order) *postgresOrder {
	return &postgresOrder{
		ID:            o.ID.String(),
		ProductID:     o.ProductID,
		Quantity:      o.Quantity,
		CustomerID:    o.CustomerID,
		Status:        o.Status.String(),
		PaymentID:     o.PaymentID,
		PaymentStatus: o.PaymentStatus,
		PaymentError:  o.PaymentError,
		TransactionID: o.TransactionID,
		CreatedAt:     o.Timestamps.CreatedAt,
		UpdatedAt:     o.Timestamps.UpdatedAt,
	}
}

func (r *PostgresOrderRepository) toDomain(row *postgresOrder) *domain.Order {
	return &domain.Order{
		ID:            models.ID(row.ID),
		ProductID:     row.ProductID,
		Quantity:      row.Quantity,
		CustomerID:    row.CustomerID,
		Status:        domain.OrderStatus(row.Status),
		PaymentID:     row.PaymentID,
		PaymentStatus: row.PaymentStatus,
		PaymentError:  row.PaymentError,
		TransactionID: row.TransactionID,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt.UTC(),
			UpdatedAt: row.UpdatedAt.UTC(),
		},
	}
}
