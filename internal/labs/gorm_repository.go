package labs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/models"
)

// GormRepository stores orders in `lab_orders` and results in `lab_results`.
type GormRepository struct {
	DB *gorm.DB
}

// NewGormRepository creates a new GormRepository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{DB: db}
}

func (r *GormRepository) AddOrder(ctx context.Context, order *models.LabOrder) error {
	err := r.DB.WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("lab order", "order "+order.ID+" already exists")
	}
	if err != nil {
		return fmt.Errorf("insert lab order: %w", err)
	}
	return nil
}

func (r *GormRepository) Order(ctx context.Context, id string) (*models.LabOrder, error) {
	var order models.LabOrder
	err := r.DB.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lab order %s: %w", id, err)
	}
	return &order, nil
}

func (r *GormRepository) UpdateOrder(ctx context.Context, order *models.LabOrder) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.LabOrder
		if err := tx.Select("id").First(&existing, "id = ?", order.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("lab order", order.ID)
			}
			return fmt.Errorf("load lab order %s: %w", order.ID, err)
		}
		if err := tx.Save(order).Error; err != nil {
			return fmt.Errorf("update lab order %s: %w", order.ID, err)
		}
		return nil
	})
}

func (r *GormRepository) RemoveOrder(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.LabOrder{})
	if res.Error != nil {
		return fmt.Errorf("delete lab order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("lab order", id)
	}
	return nil
}

func (r *GormRepository) PendingOrders(ctx context.Context) ([]models.LabOrder, error) {
	var orders []models.LabOrder
	if err := r.DB.WithContext(ctx).Order("ordered_date asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("query pending lab orders: %w", err)
	}
	return orders, nil
}

func (r *GormRepository) CompleteOrder(ctx context.Context, orderID string, result *models.LabResult) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", orderID).Delete(&models.LabOrder{})
		if res.Error != nil {
			return fmt.Errorf("consume lab order %s: %w", orderID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.NewNotFoundError("lab order", orderID)
		}
		if err := tx.Create(result).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.NewConflictError("lab result", "order "+orderID+" already has a result")
			}
			return fmt.Errorf("insert lab result: %w", err)
		}
		return nil
	})
}

func (r *GormRepository) Result(ctx context.Context, id string) (*models.LabResult, error) {
	var result models.LabResult
	err := r.DB.WithContext(ctx).First(&result, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lab result %s: %w", id, err)
	}
	return &result, nil
}

func (r *GormRepository) MarkNotified(ctx context.Context, id, by string, at time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.LabResult{}).
		Where("id = ? AND notified = ?", id, false).
		Updates(map[string]interface{}{
			"notified":    true,
			"notified_by": by,
			"notified_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("mark lab result %s notified: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	existing, err := r.Result(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperrors.NewNotFoundError("lab result", id)
	}
	return apperrors.NewConflictError("lab result", "doctor was already notified about result "+id)
}

func (r *GormRepository) Results(ctx context.Context, filter ResultFilter) ([]models.LabResult, error) {
	q := r.DB.WithContext(ctx)
	if filter.PatientID != "" {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if filter.CriticalOnly {
		q = q.Where("is_critical = ?", true)
	}

	var results []models.LabResult
	if err := q.Order("created_at asc").Order("completed_date asc").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("query lab results: %w", err)
	}
	return results, nil
}
