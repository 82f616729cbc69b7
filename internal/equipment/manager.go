package equipment

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/logger"
	"diabetes-clinic-server/internal/metrics"
	"diabetes-clinic-server/internal/models"
	"diabetes-clinic-server/internal/utils"
)

// EquipmentInput is the form data for installing a unit.
type EquipmentInput struct {
	AcquisitionType       models.AcquisitionType `json:"acquisitionType" validate:"omitempty,oneof=new upgrade replacement"`
	SerialNumber          string                 `json:"serialNumber" validate:"required"`
	Model                 string                 `json:"model"`
	Manufacturer          string                 `json:"manufacturer"`
	StartDate             models.Date            `json:"startDate" validate:"required"`
	WarrantyStartDate     models.Date            `json:"warrantyStartDate" validate:"required"`
	WarrantyDurationYears int                    `json:"warrantyDurationYears" validate:"required,min=1,max=10"`
}

// EquipmentPatch is a partial edit of the active unit. Nil fields are kept.
type EquipmentPatch struct {
	AcquisitionType       *models.AcquisitionType `json:"acquisitionType"`
	SerialNumber          *string                 `json:"serialNumber"`
	Model                 *string                 `json:"model"`
	Manufacturer          *string                 `json:"manufacturer"`
	StartDate             *models.Date            `json:"startDate"`
	WarrantyStartDate     *models.Date            `json:"warrantyStartDate"`
	WarrantyDurationYears *int                    `json:"warrantyDurationYears"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithExpiringSoonDays sets the expiring-soon window used by WarrantyStatus.
func WithExpiringSoonDays(days int) Option {
	return func(m *Manager) { m.expiringSoonDays = days }
}

// Manager owns the pump and transmitter slots of every patient.
// Operations on one patient run one at a time; different patients do not
// block each other.
type Manager struct {
	repo             Repository
	log              *logger.Logger
	now              func() time.Time
	expiringSoonDays int
	locks            patientLocks
}

// NewManager creates a Manager over repo.
func NewManager(repo Repository, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:             repo,
		log:              log,
		now:              time.Now,
		expiringSoonDays: DefaultExpiringSoonDays,
		locks:            patientLocks{locks: make(map[string]*patientLock)},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add installs a unit into an empty slot. An occupied slot is a conflict;
// callers replace instead.
func (m *Manager) Add(ctx context.Context, patientID string, deviceType models.DeviceType, in EquipmentInput, actor models.Actor) (*models.Equipment, error) {
	eq, err := m.add(ctx, patientID, deviceType, in, actor)
	metrics.RecordEquipmentOperation("add", string(deviceType), err)
	m.audit(actor, "equipment.add", patientID, deviceType, err, eq)
	return eq, err
}

func (m *Manager) add(ctx context.Context, patientID string, deviceType models.DeviceType, in EquipmentInput, actor models.Actor) (*models.Equipment, error) {
	in = in.normalized(models.AcquisitionNew)
	verr := validateTarget(patientID, deviceType)
	in.validateInto(verr, deviceType)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	unlock := m.locks.lock(patientID)
	defer unlock()

	current, err := m.repo.Current(ctx, patientID, deviceType)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, apperrors.NewConflictError("equipment",
			fmt.Sprintf("patient already has an active %s (serial %s); replace it instead", deviceType, current.SerialNumber))
	}

	eq := m.newEquipment(patientID, deviceType, in, actor)
	if err := m.repo.Insert(ctx, eq); err != nil {
		return nil, err
	}
	return eq, nil
}

// Update edits the descriptive fields of the active unit. The serial number
// identifies the physical unit, so a different serial is rejected; installing
// another unit goes through Replace.
func (m *Manager) Update(ctx context.Context, patientID string, deviceType models.DeviceType, patch EquipmentPatch, actor models.Actor) (*models.Equipment, error) {
	eq, err := m.update(ctx, patientID, deviceType, patch, actor)
	metrics.RecordEquipmentOperation("update", string(deviceType), err)
	m.audit(actor, "equipment.update", patientID, deviceType, err, eq)
	return eq, err
}

func (m *Manager) update(ctx context.Context, patientID string, deviceType models.DeviceType, patch EquipmentPatch, actor models.Actor) (*models.Equipment, error) {
	if err := validateTarget(patientID, deviceType).OrNil(); err != nil {
		return nil, err
	}

	unlock := m.locks.lock(patientID)
	defer unlock()

	current, err := m.repo.Current(ctx, patientID, deviceType)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NewNotFoundError("active "+string(deviceType), patientID)
	}

	in := patch.applyTo(inputFrom(current)).normalized(current.AcquisitionType)
	verr := &apperrors.ValidationError{}
	in.validateInto(verr, deviceType)
	if in.SerialNumber != "" && in.SerialNumber != current.SerialNumber {
		verr.Add("serialNumber", "cannot change the serial number of an installed unit; replace the unit instead")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	updated := cloneEquipment(*current)
	updated.EquipmentRecord = in.record(deviceType)
	updated.AddedBy = current.AddedBy
	updated.AddedDate = current.AddedDate
	now := m.now()
	updated.LastUpdatedBy = actor.DisplayName()
	updated.LastUpdatedDate = &now

	if err := m.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Replace archives the active unit with reason and installs a new one.
// Either both happen or neither does.
func (m *Manager) Replace(ctx context.Context, patientID string, deviceType models.DeviceType, in EquipmentInput, reason string, actor models.Actor) (*models.Equipment, error) {
	eq, err := m.replace(ctx, patientID, deviceType, in, reason, actor)
	metrics.RecordEquipmentOperation("replace", string(deviceType), err)
	m.audit(actor, "equipment.replace", patientID, deviceType, err, eq)
	return eq, err
}

func (m *Manager) replace(ctx context.Context, patientID string, deviceType models.DeviceType, in EquipmentInput, reason string, actor models.Actor) (*models.Equipment, error) {
	in = in.normalized(models.AcquisitionReplacement)
	reason = strings.TrimSpace(reason)

	verr := validateTarget(patientID, deviceType)
	in.validateInto(verr, deviceType)
	if reason == "" {
		verr.Add("reason", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	unlock := m.locks.lock(patientID)
	defer unlock()

	current, err := m.repo.Current(ctx, patientID, deviceType)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NewNotFoundError("active "+string(deviceType), patientID)
	}
	if current.SerialNumber == in.SerialNumber {
		return nil, apperrors.NewValidationError(apperrors.FieldError{
			Field:   "serialNumber",
			Message: "must differ from the unit being replaced",
		})
	}

	now := m.now()
	archived := &models.EquipmentHistoryEntry{
		BaseModel:       models.BaseModel{ID: uuid.NewString()},
		PatientID:       patientID,
		EquipmentID:     current.ID,
		DeviceType:      deviceType,
		EquipmentRecord: cloneRecord(current.EquipmentRecord),
		EndDate:         models.DateOf(now),
		ArchivedBy:      actor.DisplayName(),
		ArchivedDate:    now,
		Reason:          reason,
	}
	next := m.newEquipment(patientID, deviceType, in, actor)

	if err := m.repo.Replace(ctx, archived, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Current returns the active unit in a slot or a NotFoundError.
func (m *Manager) Current(ctx context.Context, patientID string, deviceType models.DeviceType) (*models.Equipment, error) {
	if err := validateTarget(patientID, deviceType).OrNil(); err != nil {
		return nil, err
	}
	eq, err := m.repo.Current(ctx, patientID, deviceType)
	if err != nil {
		return nil, err
	}
	if eq == nil {
		return nil, apperrors.NewNotFoundError("active "+string(deviceType), patientID)
	}
	return eq, nil
}

// History yields the patient's archived units, most recently archived first.
// The sequence is a snapshot and can be ranged over any number of times.
func (m *Manager) History(ctx context.Context, patientID string) (iter.Seq[models.EquipmentHistoryEntry], error) {
	entries, err := m.repo.History(ctx, patientID)
	if err != nil {
		return nil, err
	}
	sortHistory(entries)
	return slices.Values(entries), nil
}

// Profile assembles both slots, their warranty status and the archive.
func (m *Manager) Profile(ctx context.Context, patientID string) (*models.PatientEquipmentProfile, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, apperrors.NewValidationError(apperrors.FieldError{Field: "patientId", Message: "is required"})
	}

	// both slots and the archive are read as one view of the patient
	unlock := m.locks.lock(patientID)
	defer unlock()

	pump, err := m.repo.Current(ctx, patientID, models.DevicePump)
	if err != nil {
		return nil, err
	}
	transmitter, err := m.repo.Current(ctx, patientID, models.DeviceTransmitter)
	if err != nil {
		return nil, err
	}
	history, err := m.History(ctx, patientID)
	if err != nil {
		return nil, err
	}

	profile := &models.PatientEquipmentProfile{
		PatientID: patientID,
		Pump:      models.PumpSlot{HasPump: pump != nil, Current: pump},
		Transmitter: models.TransmitterSlot{
			HasTransmitter: transmitter != nil,
			Current:        transmitter,
		},
		History: slices.Collect(history),
	}
	if pump != nil {
		info := m.WarrantyStatus(pump.WarrantyEndDate)
		profile.Pump.Warranty = &info
	}
	if transmitter != nil {
		info := m.WarrantyStatus(transmitter.WarrantyEndDate)
		profile.Transmitter.Warranty = &info
	}
	if profile.History == nil {
		profile.History = []models.EquipmentHistoryEntry{}
	}
	return profile, nil
}

// WarrantyStatus classifies end against today's date and the configured window.
func (m *Manager) WarrantyStatus(end models.Date) models.WarrantyInfo {
	return WarrantyStatus(end, models.DateOf(m.now()), m.expiringSoonDays)
}

func (m *Manager) newEquipment(patientID string, deviceType models.DeviceType, in EquipmentInput, actor models.Actor) *models.Equipment {
	eq := &models.Equipment{
		BaseModel:       models.BaseModel{ID: uuid.NewString()},
		PatientID:       patientID,
		DeviceType:      deviceType,
		EquipmentRecord: in.record(deviceType),
	}
	eq.AddedBy = actor.DisplayName()
	eq.AddedDate = m.now()
	return eq
}

func (m *Manager) audit(actor models.Actor, action, patientID string, deviceType models.DeviceType, err error, eq *models.Equipment) {
	details := map[string]interface{}{
		"patient_id":  patientID,
		"device_type": deviceType,
	}
	if eq != nil {
		details["equipment_id"] = eq.ID
		details["serial_number"] = eq.SerialNumber
	}
	if err != nil {
		details["error"] = err.Error()
	}
	m.log.Audit(actor.DisplayName(), action, "equipment", err == nil, details)
}

func validateTarget(patientID string, deviceType models.DeviceType) *apperrors.ValidationError {
	verr := &apperrors.ValidationError{}
	if strings.TrimSpace(patientID) == "" {
		verr.Add("patientId", "is required")
	}
	if !deviceType.Valid() {
		verr.Add("deviceType", fmt.Sprintf("must be %q or %q", models.DevicePump, models.DeviceTransmitter))
	}
	return verr
}

func (in EquipmentInput) normalized(defaultAcquisition models.AcquisitionType) EquipmentInput {
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	in.Model = strings.TrimSpace(in.Model)
	in.Manufacturer = strings.TrimSpace(in.Manufacturer)
	if in.AcquisitionType == "" {
		in.AcquisitionType = defaultAcquisition
	}
	return in
}

func (in EquipmentInput) validateInto(verr *apperrors.ValidationError, deviceType models.DeviceType) {
	verr.Fields = append(verr.Fields, utils.ValidateFields(in)...)
	if deviceType == models.DeviceTransmitter {
		if in.Model != "" {
			verr.Add("model", "only applies to pumps")
		}
		if in.Manufacturer != "" {
			verr.Add("manufacturer", "only applies to pumps")
		}
	}
}

// record builds the stored fields, deriving the warranty end date.
func (in EquipmentInput) record(deviceType models.DeviceType) models.EquipmentRecord {
	rec := models.EquipmentRecord{
		AcquisitionType:       in.AcquisitionType,
		SerialNumber:          in.SerialNumber,
		StartDate:             in.StartDate,
		WarrantyStartDate:     in.WarrantyStartDate,
		WarrantyDurationYears: in.WarrantyDurationYears,
		WarrantyEndDate:       WarrantyEndDate(in.WarrantyStartDate, in.WarrantyDurationYears),
	}
	if deviceType == models.DevicePump && (in.Model != "" || in.Manufacturer != "") {
		rec.Pump = &models.PumpDetails{Model: in.Model, Manufacturer: in.Manufacturer}
	}
	return rec
}

func inputFrom(eq *models.Equipment) EquipmentInput {
	in := EquipmentInput{
		AcquisitionType:       eq.AcquisitionType,
		SerialNumber:          eq.SerialNumber,
		StartDate:             eq.StartDate,
		WarrantyStartDate:     eq.WarrantyStartDate,
		WarrantyDurationYears: eq.WarrantyDurationYears,
	}
	if eq.Pump != nil {
		in.Model = eq.Pump.Model
		in.Manufacturer = eq.Pump.Manufacturer
	}
	return in
}

func (p EquipmentPatch) applyTo(in EquipmentInput) EquipmentInput {
	if p.AcquisitionType != nil {
		in.AcquisitionType = *p.AcquisitionType
	}
	if p.SerialNumber != nil {
		in.SerialNumber = *p.SerialNumber
	}
	if p.Model != nil {
		in.Model = *p.Model
	}
	if p.Manufacturer != nil {
		in.Manufacturer = *p.Manufacturer
	}
	if p.StartDate != nil {
		in.StartDate = *p.StartDate
	}
	if p.WarrantyStartDate != nil {
		in.WarrantyStartDate = *p.WarrantyStartDate
	}
	if p.WarrantyDurationYears != nil {
		in.WarrantyDurationYears = *p.WarrantyDurationYears
	}
	return in
}

type patientLocks struct {
	mu    sync.Mutex
	locks map[string]*patientLock
}

type patientLock struct {
	sync.Mutex
	refs int
}

// lock blocks until the caller holds patientID's lock and returns the unlock func.
// Entries are dropped once no caller holds or waits on them.
func (p *patientLocks) lock(patientID string) func() {
	p.mu.Lock()
	l, ok := p.locks[patientID]
	if !ok {
		l = &patientLock{}
		p.locks[patientID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, patientID)
		}
		p.mu.Unlock()
	}
}

func (p *patientLocks) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
