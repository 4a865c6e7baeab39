package conversation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStoreResolveThreadReusesLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 3, 18, 12, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, tenant_id, contact_phone, created_at, last_activity_at FROM conversation_threads").
		WithArgs("tenant-1", "5511988887777").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "contact_phone", "created_at", "last_activity_at"}).
			AddRow("thread-1", "tenant-1", "5511988887777", created, created))
	mock.ExpectExec("UPDATE conversation_threads SET last_activity_at").
		WithArgs(now, "thread-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	th, err := NewSQLStore(db).ResolveThread(context.Background(), "tenant-1", "5511988887777", now)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", th.ID)
	assert.Equal(t, now, th.LastActivityAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreResolveThreadCreatesWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, tenant_id, contact_phone").
		WithArgs("tenant-1", "5511988887777").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO conversation_threads").
		WithArgs(sqlmock.AnyArg(), "tenant-1", "5511988887777", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	th, err := NewSQLStore(db).ResolveThread(context.Background(), "tenant-1", "5511988887777", now)
	require.NoError(t, err)
	assert.NotEmpty(t, th.ID)
	assert.Equal(t, now, th.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreResolveThreadPropagatesErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, tenant_id, contact_phone").WillReturnError(errors.New("connection reset"))

	_, err = NewSQLStore(db).ResolveThread(context.Background(), "tenant-1", "5511988887777", time.Now())
	assert.ErrorContains(t, err, "conversation: find thread")

	_, err = NewSQLStore(db).ResolveThread(context.Background(), "", "5511988887777", time.Now())
	assert.Error(t, err)
}

func TestMemoryThreadStoreReusesThread(t *testing.T) {
	store := NewMemoryThreadStore()
	ctx := context.Background()
	first, err := store.ResolveThread(ctx, "t1", "551199", time.Now())
	require.NoError(t, err)
	second, err := store.ResolveThread(ctx, "t1", "551199", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := store.ResolveThread(ctx, "t2", "551199", time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}
