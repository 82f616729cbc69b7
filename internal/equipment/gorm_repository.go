package equipment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/models"
)

// GormRepository stores equipment in the `equipment` and `equipment_history`
// tables. The unique (patient_id, device_type) index backs the single active
// unit rule; Replace runs in one transaction.
type GormRepository struct {
	DB *gorm.DB
}

// NewGormRepository creates a new GormRepository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{DB: db}
}

func (r *GormRepository) Current(ctx context.Context, patientID string, deviceType models.DeviceType) (*models.Equipment, error) {
	var eq models.Equipment
	err := r.DB.WithContext(ctx).
		Where("patient_id = ? AND device_type = ?", patientID, deviceType).
		First(&eq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query current %s: %w", deviceType, err)
	}
	return &eq, nil
}

func (r *GormRepository) Insert(ctx context.Context, eq *models.Equipment) error {
	err := r.DB.WithContext(ctx).Create(eq).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("equipment", "slot already has an active "+string(eq.DeviceType))
	}
	if err != nil {
		return fmt.Errorf("insert equipment: %w", err)
	}
	return nil
}

func (r *GormRepository) Update(ctx context.Context, eq *models.Equipment) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Equipment
		if err := tx.Select("id").First(&existing, "id = ?", eq.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("equipment", eq.ID)
			}
			return fmt.Errorf("load equipment %s: %w", eq.ID, err)
		}
		if err := tx.Save(eq).Error; err != nil {
			return fmt.Errorf("update equipment %s: %w", eq.ID, err)
		}
		return nil
	})
}

func (r *GormRepository) Replace(ctx context.Context, archived *models.EquipmentHistoryEntry, next *models.Equipment) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND patient_id = ? AND device_type = ?",
			archived.EquipmentID, next.PatientID, next.DeviceType).
			Delete(&models.Equipment{})
		if res.Error != nil {
			return fmt.Errorf("remove active equipment %s: %w", archived.EquipmentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.NewNotFoundError("equipment", archived.EquipmentID)
		}
		if err := tx.Create(archived).Error; err != nil {
			return fmt.Errorf("archive equipment %s: %w", archived.EquipmentID, err)
		}
		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("install replacement equipment: %w", err)
		}
		return nil
	})
}

func (r *GormRepository) History(ctx context.Context, patientID string) ([]models.EquipmentHistoryEntry, error) {
	var entries []models.EquipmentHistoryEntry
	err := r.DB.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("end_date desc").
		Order("archived_date desc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query equipment history: %w", err)
	}
	return entries, nil
}
