package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"payflow/internal/domain/payment/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestFindByUserAndKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "order_key", "txn_id", "amount", "status", "user_id"}).
			AddRow("order-1", "u@x.com-100.00-1-260301120000", "txn_12345678", "100.00", "PENDING", "user-1")
		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE user_id = \$1 AND order_key = \$2`).WillReturnRows(rows)

		order, err := repo.FindByUserAndKey(context.Background(), "user-1", "u@x.com-100.00-1-260301120000")
		require.NoError(t, err)
		assert.Equal(t, "order-1", order.ID)
		assert.Equal(t, "txn_12345678", order.TxnID)
		assert.Equal(t, "100", order.Amount.String())
		assert.Equal(t, model.OrderStatusPending, order.Status)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "orders"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.FindByUserAndKey(context.Background(), "user-1", "missing")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Pending order is updated", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "orders" SET .* WHERE txn_id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := repo.MarkSuccess(context.Background(), "txn_12345678", paidAt)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Already paid order is untouched", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "orders" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

		n, err := repo.MarkSuccess(context.Background(), "txn_12345678", paidAt)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Driver error is returned", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "orders" SET`).WillReturnError(errors.New("connection reset"))

		_, err := repo.MarkSuccess(context.Background(), "txn_12345678", paidAt)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
