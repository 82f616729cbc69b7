package models

import (
	"encoding/json"
	"time"
)

// LabOrderStatus represents where a pending test is in sample handling
type LabOrderStatus string

const (
	OrderPendingSample   LabOrderStatus = "Pending Sample"
	OrderSampleCollected LabOrderStatus = "Sample Collected"
)

// LabPriority represents how urgently a test was ordered
type LabPriority string

const (
	PriorityRoutine LabPriority = "Routine"
	PriorityUrgent  LabPriority = "Urgent"
)

// Interpretation is the clinical reading of a completed test
type Interpretation string

const (
	InterpretationNormal   Interpretation = "Normal"
	InterpretationAbnormal Interpretation = "Abnormal"
	InterpretationCritical Interpretation = "Critical"
)

// Severity orders interpretations so the worst one can be picked.
func (i Interpretation) Severity() int {
	switch i {
	case InterpretationCritical:
		return 2
	case InterpretationAbnormal:
		return 1
	default:
		return 0
	}
}

// LabOrder is a test a doctor ordered that has no result yet
type LabOrder struct {
	BaseModel
	PatientID         string         `gorm:"size:36;not null;index" json:"patientId"`
	TestType          string         `gorm:"size:100;not null" json:"testType"`
	SampleType        string         `gorm:"size:50" json:"sampleType"`
	OrderedBy         string         `gorm:"size:255" json:"orderedBy"`
	OrderedDate       time.Time      `json:"orderedDate"`
	Priority          LabPriority    `gorm:"size:20;default:'Routine'" json:"priority"`
	Status            LabOrderStatus `gorm:"size:30;default:'Pending Sample'" json:"status"`
	Notes             string         `gorm:"type:text" json:"notes,omitempty"`
	SampleCollectedBy string         `gorm:"size:255" json:"sampleCollectedBy,omitempty"`
	SampleCollectedAt *time.Time     `json:"sampleCollectedAt,omitempty"`
}

// LabResult is a completed test. Only the notification fields change after creation.
type LabResult struct {
	BaseModel
	OrderID         string            `gorm:"size:36;uniqueIndex" json:"orderId"`
	PatientID       string            `gorm:"size:36;not null;index" json:"patientId"`
	TestType        string            `gorm:"size:100;not null" json:"testType"`
	SampleType      string            `gorm:"size:50" json:"sampleType"`
	Results         map[string]string `gorm:"serializer:json;type:text" json:"results"`
	NormalRange     string            `gorm:"size:255" json:"normalRange"`
	Interpretation  Interpretation    `gorm:"size:20" json:"interpretation"`
	IsCritical      bool              `gorm:"index" json:"isCritical"`
	CompletedBy     string            `gorm:"size:255" json:"completedBy"`
	CompletedDate   time.Time         `gorm:"index" json:"completedDate"`
	TechnicianNotes string            `gorm:"type:text" json:"technicianNotes,omitempty"`
	Notified        bool              `gorm:"default:false" json:"notified"`
	NotifiedBy      string            `gorm:"size:255" json:"notifiedBy,omitempty"`
	NotifiedAt      *time.Time        `json:"notifiedAt,omitempty"`
}

// MarshalJSON adds the notifiedDate/notifiedTime pair dashboards display.
func (r LabResult) MarshalJSON() ([]byte, error) {
	type plain LabResult
	out := struct {
		plain
		NotifiedDate string `json:"notifiedDate,omitempty"`
		NotifiedTime string `json:"notifiedTime,omitempty"`
	}{plain: plain(r)}
	if r.NotifiedAt != nil {
		out.NotifiedDate = r.NotifiedAt.Format(DateLayout)
		out.NotifiedTime = r.NotifiedAt.Format("15:04")
	}
	return json.Marshal(out)
}
