package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmoiron/sqlx"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
)

type settingsStoreStub struct {
	rows map[string]models.Configuration
	err  error
}

func (s *settingsStoreStub) ListByKeys(_ context.Context, _ sqlx.ExtContext, keys []string) ([]models.Configuration, error) {
	if s.err != nil {
		return nil, s.err
	}
	var result []models.Configuration
	for _, key := range keys {
		if row, ok := s.rows[key]; ok {
			result = append(result, row)
		}
	}
	return result, nil
}

func (s *settingsStoreStub) Upsert(_ context.Context, _ sqlx.ExtContext, cfg models.Configuration) error {
	if s.err != nil {
		return s.err
	}
	if s.rows == nil {
		s.rows = make(map[string]models.Configuration)
	}
	s.rows[cfg.Key] = cfg
	return nil
}

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestSettingsServiceGetDefaultsWhenUnconfigured(t *testing.T) {
	svc := NewSettingsService(nil, runnerStub{}, &settingsStoreStub{}, &auditorStub{}, nil, 0, nil)
	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.AutoOverdueEnabled)
	assert.Equal(t, "08:00", settings.AutoOverdueTime)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri"}, settings.AutoOverdueDays)
}

func TestSettingsServiceGetParsesStoredRows(t *testing.T) {
	store := &settingsStoreStub{rows: map[string]models.Configuration{
		models.ConfigKeyAutoOverdueEnabled: {Key: models.ConfigKeyAutoOverdueEnabled, Value: "true"},
		models.ConfigKeyAutoOverdueTime:    {Key: models.ConfigKeyAutoOverdueTime, Value: "14:30"},
		models.ConfigKeyAutoOverdueDays:    {Key: models.ConfigKeyAutoOverdueDays, Value: "Sat, Sun"},
	}}
	svc := NewSettingsService(nil, runnerStub{}, store, &auditorStub{}, nil, 0, nil)
	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, settings.AutoOverdueEnabled)
	assert.Equal(t, "14:30", settings.AutoOverdueTime)
	assert.Equal(t, []string{"Sat", "Sun"}, settings.AutoOverdueDays)
}

func TestSettingsServiceGetIgnoresCorruptBoolean(t *testing.T) {
	store := &settingsStoreStub{rows: map[string]models.Configuration{
		models.ConfigKeyAutoOverdueEnabled: {Key: models.ConfigKeyAutoOverdueEnabled, Value: "banana"},
	}}
	svc := NewSettingsService(nil, runnerStub{}, store, &auditorStub{}, nil, 0, nil)
	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.AutoOverdueEnabled)
}

func TestSettingsServiceUpdatePartialMerge(t *testing.T) {
	store := &settingsStoreStub{}
	auditor := &auditorStub{}
	svc := NewSettingsService(nil, runnerStub{}, store, auditor, nil, 0, nil)

	settings, err := svc.Update(context.Background(), "admin-1", dto.UpdateCirculationSettingsRequest{
		AutoOverdueEnabled: boolPtr(true),
		AutoOverdueDays:    []string{"Mon", "Wed"},
	})
	require.NoError(t, err)
	assert.True(t, settings.AutoOverdueEnabled)
	assert.Equal(t, "08:00", settings.AutoOverdueTime, "time left unchanged")
	assert.Equal(t, []string{"Mon", "Wed"}, settings.AutoOverdueDays)

	assert.Equal(t, "true", store.rows[models.ConfigKeyAutoOverdueEnabled].Value)
	assert.Equal(t, "Mon,Wed", store.rows[models.ConfigKeyAutoOverdueDays].Value)
	assert.Equal(t, []string{"settings"}, auditor.actions)
}

func TestSettingsServiceUpdateRejectsBadTime(t *testing.T) {
	store := &settingsStoreStub{}
	svc := NewSettingsService(nil, runnerStub{}, store, &auditorStub{}, nil, 0, nil)
	_, err := svc.Update(context.Background(), "admin-1", dto.UpdateCirculationSettingsRequest{
		AutoOverdueTime: strPtr("25:99"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.rows)
}

func TestSettingsServiceUpdateRejectsUnknownDayCode(t *testing.T) {
	store := &settingsStoreStub{}
	svc := NewSettingsService(nil, runnerStub{}, store, &auditorStub{}, nil, 0, nil)
	_, err := svc.Update(context.Background(), "admin-1", dto.UpdateCirculationSettingsRequest{
		AutoOverdueDays: []string{"Monday"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.rows)
}
