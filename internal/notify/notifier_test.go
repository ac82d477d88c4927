package notify

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwd-registry/pwd-registry/internal/db/dbtest"
)

func TestNotify_InsertsOneRow(t *testing.T) {
	database, mock := dbtest.New(t)
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "member-1", "approval", "Registration Approved", "approved body",
			RelatedPendingRegistration, "c-1", "Ana Cruz", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewNotifier(database).Notify(context.Background(), Message{
		UserID:      "member-1",
		Type:        "approval",
		Title:       "Registration Approved",
		Body:        "approved body",
		ActionBy:    "Ana Cruz",
		RelatedType: RelatedPendingRegistration,
		RelatedID:   "c-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotify_EmptyOptionalFieldsStoredNull(t *testing.T) {
	database, mock := dbtest.New(t)
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "member-1", "expiry_warning", "PWD ID Expiring Soon", "b", nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewNotifier(database).Notify(context.Background(), Message{
		UserID: "member-1", Type: "expiry_warning", Title: "PWD ID Expiring Soon", Body: "b",
	})
	assert.NoError(t, err)
}

func TestNotify_ErrorReturned(t *testing.T) {
	database, mock := dbtest.New(t)
	mock.ExpectExec("INSERT INTO notifications").WillReturnError(assert.AnError)

	err := NewNotifier(database).Notify(context.Background(), Message{UserID: "u", Type: "update", Title: "t"})
	assert.ErrorIs(t, err, assert.AnError)
}
