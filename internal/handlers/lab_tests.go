package handlers

import (
	"github.com/gin-gonic/gin"

	"diabetes-clinic-server/internal/labs"
	"diabetes-clinic-server/internal/utils"
)

// LabHandler handles lab order and result requests.
type LabHandler struct {
	Interpreter *labs.Interpreter
}

// NewLabHandler creates a new LabHandler.
func NewLabHandler(i *labs.Interpreter) *LabHandler {
	return &LabHandler{Interpreter: i}
}

// GetCatalog lists the test types that can be ordered.
func (h *LabHandler) GetCatalog(c *gin.Context) {
	utils.Success(c, "Lab catalog retrieved successfully", h.Interpreter.Catalog().Tests())
}

// CreateOrder records a pending test for a patient.
func (h *LabHandler) CreateOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req labs.LabOrderInput
	if !utils.BindJSON(c, &req) {
		return
	}

	order, err := h.Interpreter.AddPendingTest(c.Request.Context(), req, actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Lab test ordered successfully", order)
}

// GetPendingOrders lists orders awaiting results.
func (h *LabHandler) GetPendingOrders(c *gin.Context) {
	orders, err := h.Interpreter.PendingTests(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Pending lab tests retrieved successfully", orders)
}

// CollectSample marks an order's sample as collected.
func (h *LabHandler) CollectSample(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	order, err := h.Interpreter.MarkSampleCollected(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Sample marked as collected", order)
}

// DeleteOrder removes a pending order.
func (h *LabHandler) DeleteOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if err := h.Interpreter.RemovePendingTest(c.Request.Context(), c.Param("id"), actor); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Lab test removed successfully", nil)
}

// SubmitResult completes an order with the entered values.
func (h *LabHandler) SubmitResult(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req labs.LabSubmission
	if !utils.BindJSON(c, &req) {
		return
	}
	req.OrderID = c.Param("id")

	result, err := h.Interpreter.SubmitLabResult(c.Request.Context(), req, actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Lab result submitted successfully", result)
}

// GetCompletedResults lists every result, newest first.
func (h *LabHandler) GetCompletedResults(c *gin.Context) {
	results, err := h.Interpreter.CompletedTests(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Lab results retrieved successfully", results)
}

// GetCriticalResults lists critical results in completion order.
func (h *LabHandler) GetCriticalResults(c *gin.Context) {
	results, err := h.Interpreter.CriticalTests(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Critical lab results retrieved successfully", results)
}

// NotifyDoctor records that the doctor was told about a critical result.
func (h *LabHandler) NotifyDoctor(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	result, err := h.Interpreter.NotifyDoctor(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Doctor notified successfully", result)
}

// GetPatientResults lists one patient's results, newest first.
func (h *LabHandler) GetPatientResults(c *gin.Context) {
	results, err := h.Interpreter.TestsByPatient(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Patient lab results retrieved successfully", results)
}
