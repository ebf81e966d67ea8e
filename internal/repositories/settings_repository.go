package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/distribo/services/recouvrement/internal/models"
)

// SettingsRepository provides access to recovery delay settings
type SettingsRepository interface {
	ListSettings(ctx context.Context) ([]models.RecoveryDelaySetting, error)
	GetSetting(ctx context.Context, id uuid.UUID) (*models.RecoveryDelaySetting, error)
	GetSettingByRoot(ctx context.Context, rootName string) (*models.RecoveryDelaySetting, error)
	CreateSetting(ctx context.Context, setting *models.RecoveryDelaySetting) error
	UpdateSetting(ctx context.Context, setting *models.RecoveryDelaySetting) error
	DeleteSetting(ctx context.Context, id uuid.UUID) error
	CountGlobalSettings(ctx context.Context) (int64, error)

	ListCustomSettings(ctx context.Context) ([]models.RecoveryCustomSetting, error)
	GetCustomSetting(ctx context.Context, id uuid.UUID) (*models.RecoveryCustomSetting, error)
	UpsertCustomSetting(ctx context.Context, invoiceID uuid.UUID, days int) (*models.RecoveryCustomSetting, error)
	DeleteCustomSetting(ctx context.Context, id uuid.UUID) error
	DeleteCustomSettings(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type settingsRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db, readOnlyDB *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db, readOnlyDB: readOnlyDB}
}

// ListSettings lists every delay setting with its root
func (r *settingsRepository) ListSettings(ctx context.Context) ([]models.RecoveryDelaySetting, error) {
	var settings []models.RecoveryDelaySetting
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Root").
		Find(&settings).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list delay settings")
	}
	return settings, nil
}

// GetSetting gets a delay setting by ID
func (r *settingsRepository) GetSetting(ctx context.Context, id uuid.UUID) (*models.RecoveryDelaySetting, error) {
	var setting models.RecoveryDelaySetting
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Root").
		First(&setting, "id = ?", id).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get delay setting")
	}
	return &setting, nil
}

// GetSettingByRoot gets the delay setting scoped to a root name
func (r *settingsRepository) GetSettingByRoot(ctx context.Context, rootName string) (*models.RecoveryDelaySetting, error) {
	var setting models.RecoveryDelaySetting
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Root").
		Joins("JOIN roots ON roots.id = recovery_delay_settings.root_id").
		Where("roots.name = ?", rootName).
		First(&setting).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get delay setting by root")
	}
	return &setting, nil
}

// CreateSetting creates a new delay setting
func (r *settingsRepository) CreateSetting(ctx context.Context, setting *models.RecoveryDelaySetting) error {
	if err := r.db.WithContext(ctx).Create(setting).Error; err != nil {
		return errors.Wrap(err, "failed to create delay setting")
	}
	return nil
}

// UpdateSetting updates an existing delay setting
func (r *settingsRepository) UpdateSetting(ctx context.Context, setting *models.RecoveryDelaySetting) error {
	result := r.db.WithContext(ctx).
		Model(&models.RecoveryDelaySetting{}).
		Where("id = ?", setting.ID).
		Updates(map[string]interface{}{
			"days":    setting.Days,
			"root_id": setting.RootID,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update delay setting")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSetting deletes a delay setting
func (r *settingsRepository) DeleteSetting(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.RecoveryDelaySetting{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete delay setting")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountGlobalSettings counts active settings with no root reference
func (r *settingsRepository) CountGlobalSettings(ctx context.Context) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.RecoveryDelaySetting{}).
		Where("root_id IS NULL").
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count global settings")
	}
	return count, nil
}

// ListCustomSettings lists every per-invoice custom delay
func (r *settingsRepository) ListCustomSettings(ctx context.Context) ([]models.RecoveryCustomSetting, error) {
	var customs []models.RecoveryCustomSetting
	if err := r.readOnlyDB.WithContext(ctx).Find(&customs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list custom delay settings")
	}
	return customs, nil
}

// GetCustomSetting gets a custom delay by ID
func (r *settingsRepository) GetCustomSetting(ctx context.Context, id uuid.UUID) (*models.RecoveryCustomSetting, error) {
	var custom models.RecoveryCustomSetting
	err := r.readOnlyDB.WithContext(ctx).First(&custom, "id = ?", id).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get custom delay setting")
	}
	return &custom, nil
}

// UpsertCustomSetting creates or replaces the custom delay of an invoice
func (r *settingsRepository) UpsertCustomSetting(ctx context.Context, invoiceID uuid.UUID, days int) (*models.RecoveryCustomSetting, error) {
	var custom models.RecoveryCustomSetting
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("invoice_id = ?", invoiceID).First(&custom).Error
		switch {
		case err == nil:
			custom.Days = days
			return tx.Model(&custom).Update("days", days).Error
		case isRecordNotFound(err):
			custom = models.RecoveryCustomSetting{
				ID:        uuid.New(),
				InvoiceID: invoiceID,
				Days:      days,
			}
			return tx.Create(&custom).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert custom delay setting")
	}
	return &custom, nil
}

// DeleteCustomSetting deletes a custom delay by ID
func (r *settingsRepository) DeleteCustomSetting(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.RecoveryCustomSetting{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete custom delay setting")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCustomSettings deletes a batch of custom delays, returning the count
func (r *settingsRepository) DeleteCustomSettings(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Delete(&models.RecoveryCustomSetting{}, "id IN ?", ids)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete custom delay settings")
	}
	return result.RowsAffected, nil
}
