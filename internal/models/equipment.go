package models

import (
	"time"
)

// DeviceType identifies an equipment slot
type DeviceType string

const (
	DevicePump        DeviceType = "pump"
	DeviceTransmitter DeviceType = "transmitter"
)

// Valid reports whether d names a known slot.
func (d DeviceType) Valid() bool {
	return d == DevicePump || d == DeviceTransmitter
}

// AcquisitionType records how a unit came to the patient
type AcquisitionType string

const (
	AcquisitionNew         AcquisitionType = "new"
	AcquisitionUpgrade     AcquisitionType = "upgrade"
	AcquisitionReplacement AcquisitionType = "replacement"
)

// PumpDetails holds the attributes only insulin pumps carry.
type PumpDetails struct {
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// EquipmentRecord is the part shared by active units and archived ones.
type EquipmentRecord struct {
	AcquisitionType       AcquisitionType `gorm:"size:20" json:"acquisitionType"`
	SerialNumber          string          `gorm:"size:100;not null" json:"serialNumber"`
	StartDate             Date            `json:"startDate"`
	WarrantyStartDate     Date            `json:"warrantyStartDate"`
	WarrantyDurationYears int             `json:"warrantyDurationYears"`
	WarrantyEndDate       Date            `json:"warrantyEndDate"`
	Pump                  *PumpDetails    `gorm:"serializer:json;type:text" json:"pump,omitempty"`
	AddedBy               string          `gorm:"size:255" json:"addedBy"`
	AddedDate             time.Time       `json:"addedDate"`
	LastUpdatedBy         string          `gorm:"size:255" json:"lastUpdatedBy,omitempty"`
	LastUpdatedDate       *time.Time      `json:"lastUpdatedDate,omitempty"`
}

// Equipment is the active unit in a patient's pump or transmitter slot.
// There is at most one per (PatientID, DeviceType).
type Equipment struct {
	BaseModel
	PatientID       string     `gorm:"size:36;not null;uniqueIndex:idx_equipment_slot" json:"patientId"`
	DeviceType      DeviceType `gorm:"size:20;not null;uniqueIndex:idx_equipment_slot" json:"deviceType"`
	EquipmentRecord `gorm:"embedded"`
}

// EquipmentHistoryEntry is an archived unit. Entries are never modified.
type EquipmentHistoryEntry struct {
	BaseModel
	PatientID       string     `gorm:"size:36;not null;index" json:"patientId"`
	EquipmentID     string     `gorm:"size:36" json:"equipmentId"`
	DeviceType      DeviceType `gorm:"size:20;not null" json:"deviceType"`
	EquipmentRecord `gorm:"embedded"`
	EndDate         Date      `gorm:"index" json:"endDate"`
	ArchivedBy      string    `gorm:"size:255" json:"archivedBy"`
	ArchivedDate    time.Time `json:"archivedDate"`
	Reason          string    `gorm:"type:text;not null" json:"reason"`
}

// TableName keeps the archive next to the equipment table.
func (EquipmentHistoryEntry) TableName() string {
	return "equipment_history"
}

// TableName pins the active-unit table name.
func (Equipment) TableName() string {
	return "equipment"
}

// WarrantyStatus classifies how close a unit is to the end of its warranty
type WarrantyStatus string

const (
	WarrantyActive       WarrantyStatus = "active"
	WarrantyExpiringSoon WarrantyStatus = "expiring-soon"
	WarrantyExpired      WarrantyStatus = "expired"
)

// WarrantyInfo is the derived warranty state shown next to a unit.
type WarrantyInfo struct {
	Status        WarrantyStatus `json:"status"`
	DaysRemaining int            `json:"daysRemaining"`
	Message       string         `json:"message"`
}

// PumpSlot is the pump half of a patient's equipment profile.
type PumpSlot struct {
	HasPump  bool          `json:"hasPump"`
	Current  *Equipment    `json:"current"`
	Warranty *WarrantyInfo `json:"warranty,omitempty"`
}

// TransmitterSlot is the transmitter half of a patient's equipment profile.
type TransmitterSlot struct {
	HasTransmitter bool          `json:"hasTransmitter"`
	Current        *Equipment    `json:"current"`
	Warranty       *WarrantyInfo `json:"warranty,omitempty"`
}

// PatientEquipmentProfile is the full equipment view for one patient.
type PatientEquipmentProfile struct {
	PatientID   string                  `json:"patientId"`
	Pump        PumpSlot                `json:"pump"`
	Transmitter TransmitterSlot         `json:"transmitter"`
	History     []EquipmentHistoryEntry `json:"history"`
}
