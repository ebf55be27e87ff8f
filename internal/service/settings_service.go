package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
)

type settingsStore interface {
	ListByKeys(ctx context.Context, ext sqlx.ExtContext, keys []string) ([]models.Configuration, error)
	Upsert(ctx context.Context, ext sqlx.ExtContext, cfg models.Configuration) error
}

type settingsAuditor interface {
	RecordSettingsUpdate(actorID *string, details map[string]any)
}

const settingsCacheKey = "circulation:settings"

var weekdayCodes = map[string]struct{}{
	"Mon": {}, "Tue": {}, "Wed": {}, "Thu": {}, "Fri": {}, "Sat": {}, "Sun": {},
}

// DefaultCirculationSettings is used when no configuration rows exist yet.
func DefaultCirculationSettings() models.CirculationSettings {
	return models.CirculationSettings{
		AutoOverdueEnabled: false,
		AutoOverdueTime:    "08:00",
		AutoOverdueDays:    []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
	}
}

// SettingsService reads and writes the operator configuration driving the
// auto-overdue scheduler. Reads are served from cache when possible.
type SettingsService struct {
	db       sqlx.ExtContext
	runner   txRunner
	settings settingsStore
	auditor  settingsAuditor
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewSettingsService constructs SettingsService. cache may be nil.
func NewSettingsService(db sqlx.ExtContext, runner txRunner, settings settingsStore, auditor settingsAuditor, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{
		db:       db,
		runner:   runner,
		settings: settings,
		auditor:  auditor,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Get returns the current circulation settings, falling back to defaults for
// keys that were never configured.
func (s *SettingsService) Get(ctx context.Context) (models.CirculationSettings, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, settingsCacheKey).Result()
		if err == nil {
			var settings models.CirculationSettings
			if jerr := json.Unmarshal([]byte(cached), &settings); jerr == nil {
				return settings, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("settings cache read failed", zap.Error(err))
		}
	}

	rows, err := s.settings.ListByKeys(ctx, s.db, []string{
		models.ConfigKeyAutoOverdueEnabled,
		models.ConfigKeyAutoOverdueTime,
		models.ConfigKeyAutoOverdueDays,
	})
	if err != nil {
		return models.CirculationSettings{}, err
	}
	settings := DefaultCirculationSettings()
	for _, row := range rows {
		switch row.Key {
		case models.ConfigKeyAutoOverdueEnabled:
			enabled, perr := strconv.ParseBool(row.Value)
			if perr != nil {
				s.logger.Warn("invalid stored value, using default", zap.String("key", row.Key), zap.String("value", row.Value))
				continue
			}
			settings.AutoOverdueEnabled = enabled
		case models.ConfigKeyAutoOverdueTime:
			settings.AutoOverdueTime = row.Value
		case models.ConfigKeyAutoOverdueDays:
			settings.AutoOverdueDays = splitDays(row.Value)
		}
	}

	s.writeCache(ctx, settings)
	return settings, nil
}

// Update applies a partial settings change and invalidates the cache.
func (s *SettingsService) Update(ctx context.Context, actorID string, req dto.UpdateCirculationSettingsRequest) (models.CirculationSettings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return models.CirculationSettings{}, err
	}

	if req.AutoOverdueTime != nil {
		if _, perr := time.Parse("15:04", *req.AutoOverdueTime); perr != nil {
			return models.CirculationSettings{}, appErrors.Clone(appErrors.ErrValidation, "autoOverdueTime must be HH:MM")
		}
		current.AutoOverdueTime = *req.AutoOverdueTime
	}
	if req.AutoOverdueDays != nil {
		for _, day := range req.AutoOverdueDays {
			if _, ok := weekdayCodes[day]; !ok {
				return models.CirculationSettings{}, appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("unknown day code %q", day))
			}
		}
		current.AutoOverdueDays = req.AutoOverdueDays
	}
	if req.AutoOverdueEnabled != nil {
		current.AutoOverdueEnabled = *req.AutoOverdueEnabled
	}

	err = s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
		rows := []models.Configuration{
			{Key: models.ConfigKeyAutoOverdueEnabled, Value: strconv.FormatBool(current.AutoOverdueEnabled), Type: models.ConfigurationTypeBoolean},
			{Key: models.ConfigKeyAutoOverdueTime, Value: current.AutoOverdueTime, Type: models.ConfigurationTypeString},
			{Key: models.ConfigKeyAutoOverdueDays, Value: strings.Join(current.AutoOverdueDays, ","), Type: models.ConfigurationTypeString},
		}
		for _, row := range rows {
			if err := s.settings.Upsert(ctx, ext, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.CirculationSettings{}, err
	}

	s.invalidateCache(ctx)
	s.auditor.RecordSettingsUpdate(&actorID, map[string]any{
		"enabled": current.AutoOverdueEnabled,
		"time":    current.AutoOverdueTime,
		"days":    current.AutoOverdueDays,
	})
	return current, nil
}

func (s *SettingsService) writeCache(ctx context.Context, settings models.CirculationSettings) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, settingsCacheKey, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("settings cache write failed", zap.Error(err))
	}
}

func (s *SettingsService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, settingsCacheKey).Err(); err != nil {
		s.logger.Warn("settings cache invalidation failed", zap.Error(err))
	}
}

func splitDays(value string) []string {
	parts := strings.Split(value, ",")
	days := make([]string, 0, len(parts))
	for _, part := range parts {
		day := strings.TrimSpace(part)
		if day != "" {
			days = append(days, day)
		}
	}
	return days
}
