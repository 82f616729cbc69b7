// Package labs turns pending lab orders into interpreted results and tracks
// the doctor notification for critical ones.
package labs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"diabetes-clinic-server/internal/apperrors"
	"diabetes-clinic-server/internal/logger"
	"diabetes-clinic-server/internal/metrics"
	"diabetes-clinic-server/internal/models"
	"diabetes-clinic-server/internal/notify"
	"diabetes-clinic-server/internal/utils"
)

// LabOrderInput is what a doctor fills in to order a test.
type LabOrderInput struct {
	PatientID  string             `json:"patientId" validate:"required"`
	TestType   string             `json:"testType" validate:"required"`
	SampleType string             `json:"sampleType"`
	Priority   models.LabPriority `json:"priority" validate:"omitempty,oneof=Routine Urgent"`
	Notes      string             `json:"notes"`
}

// LabSubmission carries the values a technician entered for one order.
type LabSubmission struct {
	OrderID         string            `json:"-"`
	Values          map[string]string `json:"results"`
	TechnicianNotes string            `json:"technicianNotes"`
	Critical        bool              `json:"isCritical"`
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

// Interpreter owns the pending orders and completed results.
type Interpreter struct {
	repo     Repository
	catalog  *Catalog
	notifier notify.Notifier
	log      *logger.Logger
	now      func() time.Time

	// mu serializes state transitions.
	mu sync.Mutex
}

// NewInterpreter creates an Interpreter.
func NewInterpreter(repo Repository, catalog *Catalog, notifier notify.Notifier, log *logger.Logger, opts ...Option) *Interpreter {
	i := &Interpreter{
		repo:     repo,
		catalog:  catalog,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Catalog returns the test types results are checked against.
func (i *Interpreter) Catalog() *Catalog {
	return i.catalog
}

// Interpret classifies values without touching any state.
func (i *Interpreter) Interpret(testType string, values map[string]string, manualCritical bool) (models.Interpretation, error) {
	return i.catalog.Interpret(testType, values, manualCritical)
}

// AddPendingTest records a new order waiting for its sample.
func (i *Interpreter) AddPendingTest(ctx context.Context, in LabOrderInput, actor models.Actor) (*models.LabOrder, error) {
	order, err := i.addPendingTest(ctx, in, actor)
	metrics.RecordLabOperation("add_order", err)
	i.audit(actor, "lab.order.add", err, orderDetails(order))
	return order, err
}

func (i *Interpreter) addPendingTest(ctx context.Context, in LabOrderInput, actor models.Actor) (*models.LabOrder, error) {
	in.PatientID = strings.TrimSpace(in.PatientID)
	in.TestType = strings.TrimSpace(in.TestType)
	if in.Priority == "" {
		in.Priority = models.PriorityRoutine
	}

	verr := apperrors.NewValidationError(utils.ValidateFields(in)...)
	tt, known := i.catalog.Lookup(in.TestType)
	if in.TestType != "" && !known {
		verr.Add("testType", fmt.Sprintf("unknown test type %q", in.TestType))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	order := &models.LabOrder{
		BaseModel:   models.BaseModel{ID: uuid.NewString()},
		PatientID:   in.PatientID,
		TestType:    tt.Name,
		SampleType:  lo.Ternary(strings.TrimSpace(in.SampleType) != "", strings.TrimSpace(in.SampleType), tt.SampleType),
		OrderedBy:   actor.DisplayName(),
		OrderedDate: i.now(),
		Priority:    in.Priority,
		Status:      models.OrderPendingSample,
		Notes:       strings.TrimSpace(in.Notes),
	}
	if err := i.repo.AddOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkSampleCollected moves an order to Sample Collected so results can be
// entered.
func (i *Interpreter) MarkSampleCollected(ctx context.Context, orderID string, actor models.Actor) (*models.LabOrder, error) {
	order, err := i.markSampleCollected(ctx, orderID, actor)
	metrics.RecordLabOperation("collect_sample", err)
	i.audit(actor, "lab.order.collect", err, map[string]interface{}{"order_id": orderID})
	return order, err
}

func (i *Interpreter) markSampleCollected(ctx context.Context, orderID string, actor models.Actor) (*models.LabOrder, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperrors.NewValidationError(apperrors.FieldError{Field: "orderId", Message: "is required"})
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	order, err := i.repo.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperrors.NewNotFoundError("lab order", orderID)
	}
	if order.Status == models.OrderSampleCollected {
		return nil, apperrors.NewConflictError("lab order", "sample for order "+orderID+" was already collected")
	}

	now := i.now()
	order.Status = models.OrderSampleCollected
	order.SampleCollectedBy = actor.DisplayName()
	order.SampleCollectedAt = &now
	if err := i.repo.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// RemovePendingTest drops an order that will not be run.
func (i *Interpreter) RemovePendingTest(ctx context.Context, orderID string, actor models.Actor) error {
	i.mu.Lock()
	err := i.repo.RemoveOrder(ctx, orderID)
	i.mu.Unlock()

	metrics.RecordLabOperation("remove_order", err)
	i.audit(actor, "lab.order.remove", err, map[string]interface{}{"order_id": orderID})
	return err
}

// PendingTests lists open orders, urgent first and then oldest first.
func (i *Interpreter) PendingTests(ctx context.Context) ([]models.LabOrder, error) {
	orders, err := i.repo.PendingOrders(ctx)
	if err != nil {
		return nil, err
	}
	sortPending(orders)
	return orders, nil
}

// SubmitLabResult completes an order whose sample was collected. The order
// leaves the pending set and the result is stored together; a second
// submission for the same order finds nothing and fails with NotFoundError.
func (i *Interpreter) SubmitLabResult(ctx context.Context, sub LabSubmission, actor models.Actor) (*models.LabResult, error) {
	result, err := i.submitLabResult(ctx, sub, actor)
	metrics.RecordLabOperation("submit_result", err)
	if err == nil {
		metrics.RecordLabResult(result.TestType, string(result.Interpretation))
	}
	details := map[string]interface{}{"order_id": sub.OrderID}
	if result != nil {
		details["result_id"] = result.ID
		details["interpretation"] = result.Interpretation
		details["is_critical"] = result.IsCritical
	}
	i.audit(actor, "lab.result.submit", err, details)
	return result, err
}

func (i *Interpreter) submitLabResult(ctx context.Context, sub LabSubmission, actor models.Actor) (*models.LabResult, error) {
	if strings.TrimSpace(sub.OrderID) == "" {
		return nil, apperrors.NewValidationError(apperrors.FieldError{Field: "orderId", Message: "is required"})
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	order, err := i.repo.Order(ctx, sub.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperrors.NewNotFoundError("lab order", sub.OrderID)
	}

	values := lo.MapValues(sub.Values, func(v string, _ string) string { return strings.TrimSpace(v) })
	verr := &apperrors.ValidationError{}
	if order.Status != models.OrderSampleCollected {
		verr.Add("status", "sample has not been collected yet")
	}
	tt, known := i.catalog.Lookup(order.TestType)
	if known {
		for _, p := range tt.Parameters {
			if values[p.Name] == "" {
				verr.Add(p.Name, "is required")
			}
		}
	} else if len(values) == 0 {
		verr.Add("results", "at least one value is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	interpretation, err := i.catalog.Interpret(order.TestType, values, sub.Critical)
	if err != nil {
		return nil, err
	}

	result := &models.LabResult{
		BaseModel:       models.BaseModel{ID: uuid.NewString()},
		OrderID:         order.ID,
		PatientID:       order.PatientID,
		TestType:        order.TestType,
		SampleType:      order.SampleType,
		Results:         values,
		NormalRange:     tt.NormalRange(),
		Interpretation:  interpretation,
		IsCritical:      interpretation == models.InterpretationCritical || sub.Critical,
		CompletedBy:     actor.DisplayName(),
		CompletedDate:   i.now(),
		TechnicianNotes: strings.TrimSpace(sub.TechnicianNotes),
	}
	if err := i.repo.CompleteOrder(ctx, order.ID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// NotifyDoctor records that the ordering doctor was told about a critical
// result and publishes the event. It succeeds at most once per result. A
// failed publish is logged; the result stays notified.
func (i *Interpreter) NotifyDoctor(ctx context.Context, resultID string, actor models.Actor) (*models.LabResult, error) {
	result, err := i.markNotified(ctx, resultID, actor)
	metrics.RecordLabOperation("notify_doctor", err)
	i.audit(actor, "lab.result.notify", err, map[string]interface{}{"result_id": resultID})
	if err != nil {
		return nil, err
	}

	event := notify.CriticalResultEvent{
		ResultID:       result.ID,
		OrderID:        result.OrderID,
		PatientID:      result.PatientID,
		TestType:       result.TestType,
		Interpretation: string(result.Interpretation),
		Results:        result.Results,
		NotifiedBy:     result.NotifiedBy,
		NotifiedAt:     *result.NotifiedAt,
	}
	// the flag is already committed, so a client hang-up must not drop the event
	pubErr := i.notifier.NotifyCriticalResult(context.WithoutCancel(ctx), event)
	metrics.RecordCriticalNotification(pubErr == nil)
	if pubErr != nil {
		i.log.WithComponent("labs").WithError(pubErr).
			WithField("result_id", result.ID).
			Error("Failed to publish critical result notification")
	}
	return result, nil
}

func (i *Interpreter) markNotified(ctx context.Context, resultID string, actor models.Actor) (*models.LabResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	result, err := i.repo.Result(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if result == nil || !result.IsCritical {
		return nil, apperrors.NewNotFoundError("critical lab result", resultID)
	}
	if result.Notified {
		return nil, apperrors.NewConflictError("lab result", "doctor was already notified about result "+resultID)
	}

	now := i.now()
	by := actor.DisplayName()
	if err := i.repo.MarkNotified(ctx, resultID, by, now); err != nil {
		return nil, err
	}
	result.Notified = true
	result.NotifiedBy = by
	result.NotifiedAt = &now
	return result, nil
}

// CriticalTests lists critical results in the order they were completed.
func (i *Interpreter) CriticalTests(ctx context.Context) ([]models.LabResult, error) {
	return i.repo.Results(ctx, ResultFilter{CriticalOnly: true})
}

// TestsByPatient lists one patient's results, most recently completed first.
func (i *Interpreter) TestsByPatient(ctx context.Context, patientID string) ([]models.LabResult, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, apperrors.NewValidationError(apperrors.FieldError{Field: "patientId", Message: "is required"})
	}
	results, err := i.repo.Results(ctx, ResultFilter{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	return newestFirst(results), nil
}

// CompletedTests lists every result, most recently completed first.
func (i *Interpreter) CompletedTests(ctx context.Context) ([]models.LabResult, error) {
	results, err := i.repo.Results(ctx, ResultFilter{})
	if err != nil {
		return nil, err
	}
	return newestFirst(results), nil
}

// Result returns one result or a NotFoundError.
func (i *Interpreter) Result(ctx context.Context, id string) (*models.LabResult, error) {
	result, err := i.repo.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, apperrors.NewNotFoundError("lab result", id)
	}
	return result, nil
}

func (i *Interpreter) audit(actor models.Actor, action string, err error, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	if err != nil {
		details["error"] = err.Error()
	}
	i.log.Audit(actor.DisplayName(), action, "lab", err == nil, details)
}

func orderDetails(order *models.LabOrder) map[string]interface{} {
	if order == nil {
		return nil
	}
	return map[string]interface{}{
		"order_id":   order.ID,
		"patient_id": order.PatientID,
		"test_type":  order.TestType,
		"priority":   order.Priority,
	}
}
