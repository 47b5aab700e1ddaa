package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProjectStatus is the fulfilment state of a print order.
type ProjectStatus string

const (
	ProjectCreated        ProjectStatus = "created"
	ProjectAccepted       ProjectStatus = "accepted"
	ProjectPrinting       ProjectStatus = "printing"
	ProjectOutForDelivery ProjectStatus = "out_for_delivery"
	ProjectDelivered      ProjectStatus = "delivered"
)

var projectStatusRank = map[ProjectStatus]int{
	ProjectCreated:        0,
	ProjectAccepted:       1,
	ProjectPrinting:       2,
	ProjectOutForDelivery: 3,
	ProjectDelivered:      4,
}

// legacyProjectStatus maps status strings written by older clients onto the canonical enum.
var legacyProjectStatus = map[string]ProjectStatus{
	"pending":              ProjectCreated,
	"submitted":            ProjectCreated,
	"order accepted":       ProjectAccepted,
	"printing in progress": ProjectPrinting,
	"out for delivery":     ProjectOutForDelivery,
	"completed":            ProjectDelivered,
}

// ParseProjectStatus accepts canonical values as well as legacy display strings.
func ParseProjectStatus(value string) (ProjectStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if _, ok := projectStatusRank[ProjectStatus(normalized)]; ok {
		return ProjectStatus(normalized), true
	}
	if status, ok := legacyProjectStatus[normalized]; ok {
		return status, true
	}
	return "", false
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle moving forward.
func (s ProjectStatus) CanAdvanceTo(next ProjectStatus) bool {
	from, ok := projectStatusRank[s]
	if !ok {
		return false
	}
	to, ok := projectStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// ProjectPaymentStatus mirrors whether the owning payment has been confirmed.
type ProjectPaymentStatus string

const (
	ProjectPaymentPending ProjectPaymentStatus = "pending"
	ProjectPaymentPaid    ProjectPaymentStatus = "paid"
)

// PrintSpecification holds the customization a student picked before checkout.
type PrintSpecification struct {
	Pages           int    `json:"pages"`
	Copies          int    `json:"copies"`
	PrintType       string `json:"printType"`
	PaperType       string `json:"paperType,omitempty"`
	BindingType     string `json:"bindingType"`
	BindingColor    string `json:"bindingColor,omitempty"`
	DeliveryAddress string `json:"deliveryAddress,omitempty"`
	DeliveryCollege string `json:"deliveryCollege,omitempty"`
}

// OrderMetadata is what the client sends along with a checkout.
type OrderMetadata struct {
	Title      string `json:"title"`
	Department string `json:"department,omitempty"`
	Semester   int    `json:"semester,omitempty"`
	StagingRef string `json:"stagingRef,omitempty"`
	PrintSpecification
}

// Project is the print order a vendor fulfils. GatewayOrderID ties it to exactly one Payment.
type Project struct {
	BaseModel
	StudentID      uuid.UUID                              `gorm:"type:uuid;index" json:"student_id"`
	GatewayOrderID string                                 `gorm:"size:64;uniqueIndex" json:"gateway_order_id"`
	Title          string                                 `json:"title"`
	Description    string                                 `json:"description"`
	Department     string                                 `json:"department"`
	Semester       int                                    `json:"semester"`
	Specification  datatypes.JSONType[PrintSpecification] `json:"specification"`
	PaymentStatus  ProjectPaymentStatus                   `gorm:"size:20;index" json:"payment_status"`
	Status         ProjectStatus                          `gorm:"size:32;index" json:"status"`
	FilesCommitted bool                                   `json:"files_committed"`
	FilesFolder    string                                 `json:"files_folder,omitempty"`
	VendorNotes    string                                 `json:"vendor_notes,omitempty"`
	SubmissionDate time.Time                              `json:"submission_date"`
}
