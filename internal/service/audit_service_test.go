package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcls-dev/circulation-api/internal/models"
)

type auditStoreStub struct {
	mu      sync.Mutex
	entries []models.AuditLog
	done    chan struct{}
}

func newAuditStoreStub() *auditStoreStub {
	return &auditStoreStub{done: make(chan struct{}, 8)}
}

func (s *auditStoreStub) Insert(_ context.Context, _ sqlx.ExtContext, entry *models.AuditLog) error {
	s.mu.Lock()
	s.entries = append(s.entries, *entry)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *auditStoreStub) wait(t *testing.T) models.AuditLog {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit write")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[len(s.entries)-1]
}

func TestAuditServiceRecordsBorrowAction(t *testing.T) {
	store := newAuditStoreStub()
	svc := NewAuditService(store, nil, 1, 4, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	actor := "staff-1"
	svc.RecordBorrowAction(&actor, models.AuditActionBorrowApprove, 7, map[string]any{"route": "admin"})

	entry := store.wait(t)
	assert.Equal(t, models.AuditActionBorrowApprove, entry.Action)
	assert.Equal(t, ResourceBorrow, entry.Resource)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "7", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "staff-1", *entry.UserID)

	var details map[string]any
	require.NoError(t, json.Unmarshal(entry.Details, &details))
	assert.Equal(t, "admin", details["route"])
}

func TestAuditServiceRecordsSettingsUpdate(t *testing.T) {
	store := newAuditStoreStub()
	svc := NewAuditService(store, nil, 1, 4, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	actor := "admin-1"
	svc.RecordSettingsUpdate(&actor, map[string]any{"enabled": true})

	entry := store.wait(t)
	assert.Equal(t, models.AuditActionSettingsUpdate, entry.Action)
	assert.Equal(t, ResourceSettings, entry.Resource)
	assert.Nil(t, entry.ResourceID)
}

func TestAuditServiceDropsWhenNotStarted(t *testing.T) {
	store := newAuditStoreStub()
	svc := NewAuditService(store, nil, 1, 4, nil)

	// Recording before Start must not panic or block.
	svc.RecordBorrowAction(nil, models.AuditActionBorrowSubmit, 1, nil)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.entries)
}
