package handlers

import (
	"github.com/gin-gonic/gin"

	"diabetes-clinic-server/internal/equipment"
	"diabetes-clinic-server/internal/models"
	"diabetes-clinic-server/internal/utils"
)

// EquipmentHandler handles insulin pump and transmitter requests.
type EquipmentHandler struct {
	Manager *equipment.Manager
}

// NewEquipmentHandler creates a new EquipmentHandler.
func NewEquipmentHandler(m *equipment.Manager) *EquipmentHandler {
	return &EquipmentHandler{Manager: m}
}

// ReplaceEquipmentRequest is the new unit plus why the old one is retired.
type ReplaceEquipmentRequest struct {
	equipment.EquipmentInput
	Reason string `json:"reason"`
}

// GetProfile returns both device slots with warranty status and the archive.
func (h *EquipmentHandler) GetProfile(c *gin.Context) {
	profile, err := h.Manager.Profile(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Equipment profile retrieved successfully", profile)
}

// AddEquipment installs a device into an empty slot.
func (h *EquipmentHandler) AddEquipment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req equipment.EquipmentInput
	if !utils.BindJSON(c, &req) {
		return
	}

	eq, err := h.Manager.Add(c.Request.Context(), c.Param("patientId"), models.DeviceType(c.Param("deviceType")), req, actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Equipment added successfully", eq)
}

// UpdateEquipment edits the active device. Only the sent fields change.
func (h *EquipmentHandler) UpdateEquipment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req equipment.EquipmentPatch
	if !utils.BindJSON(c, &req) {
		return
	}

	eq, err := h.Manager.Update(c.Request.Context(), c.Param("patientId"), models.DeviceType(c.Param("deviceType")), req, actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Equipment updated successfully", eq)
}

// ReplaceEquipment archives the active device and installs a new one.
func (h *EquipmentHandler) ReplaceEquipment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req ReplaceEquipmentRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	eq, err := h.Manager.Replace(c.Request.Context(), c.Param("patientId"), models.DeviceType(c.Param("deviceType")), req.EquipmentInput, req.Reason, actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Equipment replaced successfully", eq)
}

// GetHistory lists archived devices, most recently archived first.
func (h *EquipmentHandler) GetHistory(c *gin.Context) {
	history, err := h.Manager.History(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	entries := make([]models.EquipmentHistoryEntry, 0)
	for entry := range history {
		entries = append(entries, entry)
	}
	utils.Success(c, "Equipment history retrieved successfully", entries)
}

// GetWarrantyStatus classifies an arbitrary warranty end date against today.
func (h *EquipmentHandler) GetWarrantyStatus(c *gin.Context) {
	end, err := models.ParseDate(c.Query("endDate"))
	if err != nil {
		utils.BadRequest(c, "endDate must be a date in YYYY-MM-DD format")
		return
	}
	utils.Success(c, "Warranty status computed", h.Manager.WarrantyStatus(end))
}
