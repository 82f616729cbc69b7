package labs

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/models"
)

// ResultFilter narrows Results. Zero values match everything.
type ResultFilter struct {
	PatientID    string
	CriticalOnly bool
}

func (f ResultFilter) match(r models.LabResult) bool {
	if f.PatientID != "" && r.PatientID != f.PatientID {
		return false
	}
	return !f.CriticalOnly || r.IsCritical
}

// Repository stores pending orders and completed results.
type Repository interface {
	AddOrder(ctx context.Context, order *models.LabOrder) error
	// Order returns nil when the order does not exist.
	Order(ctx context.Context, id string) (*models.LabOrder, error)
	UpdateOrder(ctx context.Context, order *models.LabOrder) error
	RemoveOrder(ctx context.Context, id string) error
	PendingOrders(ctx context.Context) ([]models.LabOrder, error)
	// CompleteOrder removes the order and stores its result as one step.
	// A missing order is a NotFoundError and nothing is stored.
	CompleteOrder(ctx context.Context, orderID string, result *models.LabResult) error
	// Result returns nil when the result does not exist.
	Result(ctx context.Context, id string) (*models.LabResult, error)
	// MarkNotified flips the notification flag of a stored result. A result
	// that was already notified is a ConflictError.
	MarkNotified(ctx context.Context, id, by string, at time.Time) error
	// Results lists matching results in insertion order.
	Results(ctx context.Context, filter ResultFilter) ([]models.LabResult, error)
}

// MemoryRepository keeps lab state in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	orders     map[string]models.LabOrder
	orderSeq   []string
	results    []models.LabResult
	resultByID map[string]int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:     make(map[string]models.LabOrder),
		resultByID: make(map[string]int),
	}
}

// Seed loads initial orders and results. Duplicate IDs are ignored.
func (r *MemoryRepository) Seed(orders []models.LabOrder, results []models.LabResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range orders {
		if _, dup := r.orders[o.ID]; dup {
			continue
		}
		r.orders[o.ID] = o
		r.orderSeq = append(r.orderSeq, o.ID)
	}
	for _, res := range results {
		if _, dup := r.resultByID[res.ID]; dup {
			continue
		}
		r.resultByID[res.ID] = len(r.results)
		r.results = append(r.results, cloneResult(res))
	}
}

func (r *MemoryRepository) AddOrder(_ context.Context, order *models.LabOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.orders[order.ID]; dup {
		return apperrors.NewConflictError("lab order", "order "+order.ID+" already exists")
	}
	r.orders[order.ID] = *order
	r.orderSeq = append(r.orderSeq, order.ID)
	return nil
}

func (r *MemoryRepository) Order(_ context.Context, id string) (*models.LabOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *MemoryRepository) UpdateOrder(_ context.Context, order *models.LabOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return apperrors.NewNotFoundError("lab order", order.ID)
	}
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryRepository) RemoveOrder(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeOrderLocked(id)
}

func (r *MemoryRepository) removeOrderLocked(id string) error {
	if _, ok := r.orders[id]; !ok {
		return apperrors.NewNotFoundError("lab order", id)
	}
	delete(r.orders, id)
	r.orderSeq = lo.Without(r.orderSeq, id)
	return nil
}

func (r *MemoryRepository) PendingOrders(_ context.Context) ([]models.LabOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.orderSeq, func(id string, _ int) models.LabOrder {
		return r.orders[id]
	}), nil
}

func (r *MemoryRepository) CompleteOrder(_ context.Context, orderID string, result *models.LabResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.resultByID[result.ID]; dup {
		return apperrors.NewConflictError("lab result", "result "+result.ID+" already exists")
	}
	if err := r.removeOrderLocked(orderID); err != nil {
		return err
	}
	r.resultByID[result.ID] = len(r.results)
	r.results = append(r.results, cloneResult(*result))
	return nil
}

func (r *MemoryRepository) Result(_ context.Context, id string) (*models.LabResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.resultByID[id]
	if !ok {
		return nil, nil
	}
	out := cloneResult(r.results[i])
	return &out, nil
}

func (r *MemoryRepository) MarkNotified(_ context.Context, id, by string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.resultByID[id]
	if !ok {
		return apperrors.NewNotFoundError("lab result", id)
	}
	res := &r.results[i]
	if res.Notified {
		return apperrors.NewConflictError("lab result", "doctor was already notified about result "+id)
	}
	res.Notified = true
	res.NotifiedBy = by
	res.NotifiedAt = &at
	return nil
}

func (r *MemoryRepository) Results(_ context.Context, filter ResultFilter) ([]models.LabResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := lo.Filter(r.results, func(res models.LabResult, _ int) bool {
		return filter.match(res)
	})
	return lo.Map(matched, func(res models.LabResult, _ int) models.LabResult {
		return cloneResult(res)
	}), nil
}

func cloneResult(r models.LabResult) models.LabResult {
	r.Results = maps.Clone(r.Results)
	if r.NotifiedAt != nil {
		at := *r.NotifiedAt
		r.NotifiedAt = &at
	}
	return r
}

// sortPending puts urgent orders first, oldest first within a priority.
func sortPending(orders []models.LabOrder) {
	slices.SortStableFunc(orders, func(a, b models.LabOrder) int {
		ua, ub := a.Priority == models.PriorityUrgent, b.Priority == models.PriorityUrgent
		if ua != ub {
			if ua {
				return -1
			}
			return 1
		}
		return a.OrderedDate.Compare(b.OrderedDate)
	})
}

// newestFirst orders results by completion time, latest first. Results
// completed at the same instant keep reverse insertion order.
func newestFirst(results []models.LabResult) []models.LabResult {
	out := lo.Reverse(slices.Clone(results))
	slices.SortStableFunc(out, func(a, b models.LabResult) int {
		return b.CompletedDate.Compare(a.CompletedDate)
	})
	return out
}
