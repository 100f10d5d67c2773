package routeware

import (
	"fmt"
	"time"
)

// Priority is a Routeware job priority type id.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

// Priorities lists the selectable priorities in display order.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// Reason is a Routeware reason code type id.
type Reason int

const (
	ReasonMiscellaneous  Reason = 16
	ReasonCleanUp        Reason = 3
	ReasonImproperSetOut Reason = 17
)

// Reasons lists the selectable reason codes in display order.
var Reasons = []Reason{ReasonMiscellaneous, ReasonCleanUp, ReasonImproperSetOut}

func (r Reason) String() string {
	switch r {
	case ReasonMiscellaneous:
		return "Miscellaneous"
	case ReasonCleanUp:
		return "Clean-up"
	case ReasonImproperSetOut:
		return "Improper Set Out"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Valid reports whether r is one of the known reason codes.
func (r Reason) Valid() bool {
	for _, known := range Reasons {
		if r == known {
			return true
		}
	}
	return false
}

// workOrderLayout gives second precision: two jobs created within the same
// second share a work-order number.
const workOrderLayout = "20060102150405"

// WorkOrderNumber derives the work-order number for a job created at now.
func WorkOrderNumber(now time.Time) string {
	return "M5-" + now.Format(workOrderLayout)
}

// Job is the body of a job-create request.
type Job struct {
	WorkOrderNumber   string   `json:"workOrderNumber"`
	JobDate           string   `json:"jobDate"`
	ServiceContractID int      `json:"serviceContractId"`
	VehicleTypeID     int      `json:"vehicleTypeId"`
	PickupTypeID      int      `json:"pickupTypeId"`
	RouteNote         string   `json:"routeNote"`
	RouteTemplateID   int      `json:"routeTemplateId"`
	ReasonCodeTypeID  Reason   `json:"reasonCodeTypeId"`
	JobPriorityTypeID Priority `json:"jobPriorityTypeId"`
}

// VehicleMapping fixes the vehicle and pickup types a job is filed under.
type VehicleMapping struct {
	VehicleTypeID int
	PickupTypeID  int
}

// NewJob builds a job created at now.
func NewJob(now time.Time, mapping VehicleMapping, priority Priority, reason Reason, note string) Job {
	return Job{
		WorkOrderNumber:   WorkOrderNumber(now),
		JobDate:           now.UTC().Format(time.RFC3339),
		ServiceContractID: 0,
		VehicleTypeID:     mapping.VehicleTypeID,
		PickupTypeID:      mapping.PickupTypeID,
		RouteNote:         note,
		RouteTemplateID:   0,
		ReasonCodeTypeID:  reason,
		JobPriorityTypeID: priority,
	}
}
