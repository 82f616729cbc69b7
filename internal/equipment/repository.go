package equipment

import (
	"context"
	"slices"
	"sync"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/models"
)

// Repository stores active units and the archive. Implementations must be
// safe for concurrent use; the Manager serializes work per patient on top.
type Repository interface {
	// Current returns the active unit in a slot, or nil when the slot is empty.
	Current(ctx context.Context, patientID string, deviceType models.DeviceType) (*models.Equipment, error)
	// Insert installs eq into an empty slot.
	Insert(ctx context.Context, eq *models.Equipment) error
	// Update overwrites the active unit with the same ID.
	Update(ctx context.Context, eq *models.Equipment) error
	// Replace archives the active unit and installs next in one step.
	Replace(ctx context.Context, archived *models.EquipmentHistoryEntry, next *models.Equipment) error
	// History lists a patient's archived units, most recently archived first.
	History(ctx context.Context, patientID string) ([]models.EquipmentHistoryEntry, error)
}

type slotKey struct {
	patientID  string
	deviceType models.DeviceType
}

// MemoryRepository keeps equipment state in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	current map[slotKey]models.Equipment
	history map[string][]models.EquipmentHistoryEntry
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		current: make(map[slotKey]models.Equipment),
		history: make(map[string][]models.EquipmentHistoryEntry),
	}
}

// Seed loads initial state. Later entries for the same slot win.
func (r *MemoryRepository) Seed(current []models.Equipment, history []models.EquipmentHistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, eq := range current {
		r.current[slotKey{eq.PatientID, eq.DeviceType}] = cloneEquipment(eq)
	}
	for _, h := range history {
		r.history[h.PatientID] = append(r.history[h.PatientID], cloneHistory(h))
	}
	for patientID := range r.history {
		sortHistory(r.history[patientID])
	}
}

func (r *MemoryRepository) Current(_ context.Context, patientID string, deviceType models.DeviceType) (*models.Equipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eq, ok := r.current[slotKey{patientID, deviceType}]
	if !ok {
		return nil, nil
	}
	out := cloneEquipment(eq)
	return &out, nil
}

func (r *MemoryRepository) Insert(_ context.Context, eq *models.Equipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{eq.PatientID, eq.DeviceType}
	if _, exists := r.current[key]; exists {
		return apperrors.NewConflictError("equipment", "slot already has an active "+string(eq.DeviceType))
	}
	r.current[key] = cloneEquipment(*eq)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, eq *models.Equipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{eq.PatientID, eq.DeviceType}
	existing, ok := r.current[key]
	if !ok || existing.ID != eq.ID {
		return apperrors.NewNotFoundError("equipment", eq.ID)
	}
	r.current[key] = cloneEquipment(*eq)
	return nil
}

func (r *MemoryRepository) Replace(_ context.Context, archived *models.EquipmentHistoryEntry, next *models.Equipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{next.PatientID, next.DeviceType}
	existing, ok := r.current[key]
	if !ok || existing.ID != archived.EquipmentID {
		return apperrors.NewNotFoundError("equipment", archived.EquipmentID)
	}

	entries := append(r.history[archived.PatientID], cloneHistory(*archived))
	sortHistory(entries)
	r.history[archived.PatientID] = entries
	r.current[key] = cloneEquipment(*next)
	return nil
}

func (r *MemoryRepository) History(_ context.Context, patientID string) ([]models.EquipmentHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.history[patientID]
	out := make([]models.EquipmentHistoryEntry, 0, len(entries))
	for _, h := range entries {
		out = append(out, cloneHistory(h))
	}
	return out, nil
}

// sortHistory orders entries by end date, then archive time, newest first.
func sortHistory(entries []models.EquipmentHistoryEntry) {
	slices.SortStableFunc(entries, func(a, b models.EquipmentHistoryEntry) int {
		if c := b.EndDate.Compare(a.EndDate.Time); c != 0 {
			return c
		}
		return b.ArchivedDate.Compare(a.ArchivedDate)
	})
}

func cloneRecord(rec models.EquipmentRecord) models.EquipmentRecord {
	if rec.Pump != nil {
		pump := *rec.Pump
		rec.Pump = &pump
	}
	if rec.LastUpdatedDate != nil {
		ts := *rec.LastUpdatedDate
		rec.LastUpdatedDate = &ts
	}
	return rec
}

func cloneEquipment(eq models.Equipment) models.Equipment {
	eq.EquipmentRecord = cloneRecord(eq.EquipmentRecord)
	return eq
}

func cloneHistory(h models.EquipmentHistoryEntry) models.EquipmentHistoryEntry {
	h.EquipmentRecord = cloneRecord(h.EquipmentRecord)
	return h
}
