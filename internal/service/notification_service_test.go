package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcls-dev/circulation-api/internal/models"
)

func TestNotificationServiceSkipsUnregisteredType(t *testing.T) {
	recorder := newNotificationRecorder() // no types registered
	svc := NewNotificationService(recorder, nil)

	svc.EmitRejected(context.Background(), nil, 1, "borrower-1")
	assert.Empty(t, recorder.inserted)
}

func TestNotificationServiceSubmittedRoutesToStaff(t *testing.T) {
	recorder := newNotificationRecorder(models.NotifyBookRequestSubmitted, models.NotifyDocRequestSubmitted)
	recorder.staff[models.RoleLibrarian] = []string{"lib-1", "lib-2"}
	recorder.staff[models.RoleAdmin] = []string{"adm-1"}
	svc := NewNotificationService(recorder, nil)

	svc.EmitSubmitted(context.Background(), nil, 1, models.RouteLibrarian)
	svc.EmitSubmitted(context.Background(), nil, 2, models.RouteAdmin)

	require.Len(t, recorder.inserted, 2)
	assert.Equal(t, models.NotifyBookRequestSubmitted, recorder.inserted[0].Type)
	assert.Equal(t, []string{"lib-1", "lib-2"}, recorder.inserted[0].Recipients)
	assert.Equal(t, models.NotifyDocRequestSubmitted, recorder.inserted[1].Type)
	assert.Equal(t, []string{"adm-1"}, recorder.inserted[1].Recipients)
}

func TestNotificationServiceApprovedSupplementsPickup(t *testing.T) {
	recorder := newNotificationRecorder(models.NotifyBorrowApproved, models.NotifyReadyForPickup)
	svc := NewNotificationService(recorder, nil)

	svc.EmitApproved(context.Background(), nil, 7, "borrower-1")

	require.Len(t, recorder.inserted, 2)
	assert.Equal(t, models.NotifyBorrowApproved, recorder.inserted[0].Type)
	assert.Equal(t, models.NotifyReadyForPickup, recorder.inserted[1].Type)
	for _, n := range recorder.inserted {
		assert.Equal(t, []string{"borrower-1"}, n.Recipients)
		assert.Equal(t, int64(7), n.RelatedID)
		assert.Equal(t, models.RelatedTypeBorrow, n.RelatedType)
	}
}

func TestNotificationServiceReturnRecordedIncludesRouteStaff(t *testing.T) {
	recorder := newNotificationRecorder(models.NotifyReturnRecorded)
	recorder.staff[models.RoleAdmin] = []string{"adm-1"}
	svc := NewNotificationService(recorder, nil)

	svc.EmitReturnRecorded(context.Background(), nil, 3, "borrower-1", models.RouteAdmin)

	require.Len(t, recorder.inserted, 1)
	assert.Equal(t, []string{"borrower-1", "adm-1"}, recorder.inserted[0].Recipients)
}

func TestNotificationServiceDeduplicatesRecipients(t *testing.T) {
	recorder := newNotificationRecorder(models.NotifyReturnRecorded)
	// The borrower is also the only admin; they get one copy.
	recorder.staff[models.RoleAdmin] = []string{"borrower-1"}
	svc := NewNotificationService(recorder, nil)

	svc.EmitReturnRecorded(context.Background(), nil, 3, "borrower-1", models.RouteAdmin)

	require.Len(t, recorder.inserted, 1)
	assert.Equal(t, []string{"borrower-1"}, recorder.inserted[0].Recipients)
}

func TestNotificationServiceOverdueReminderDedupsPerDay(t *testing.T) {
	recorder := newNotificationRecorder(models.NotifyOverdueReminder)
	svc := NewNotificationService(recorder, nil)

	emitted, err := svc.EmitOverdueReminder(context.Background(), nil, 5, "borrower-1", models.RouteLibrarian)
	require.NoError(t, err)
	assert.True(t, emitted)

	emitted, err = svc.EmitOverdueReminder(context.Background(), nil, 5, "borrower-1", models.RouteLibrarian)
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Len(t, recorder.inserted, 1)

	// A different borrow still gets its own reminder.
	emitted, err = svc.EmitOverdueReminder(context.Background(), nil, 6, "borrower-1", models.RouteLibrarian)
	require.NoError(t, err)
	assert.True(t, emitted)
}
