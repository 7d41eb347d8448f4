package models

import (
	"fmt"
	"time"
)

/*
AXES → small enumerated category types, each with a fixed-size weight table.
*/

// Segment is the customer tier. It drives churn probability, order volume and basket size.
type Segment int

const (
	Premium Segment = iota
	Standard
	Basic
	NumSegments = 3
)

var segmentNames = [NumSegments]string{"Premium", "Standard", "Basic"}

func (s Segment) String() string {
	if s < 0 || int(s) >= NumSegments {
		return fmt.Sprintf("Segment(%d)", int(s))
	}
	return segmentNames[s]
}

// Region is descriptive only; nothing downstream reads it.
type Region int

const (
	East Region = iota
	West
	North
	South
	NumRegions = 4
)

var regionNames = [NumRegions]string{"East", "West", "North", "South"}

func (r Region) String() string {
	if r < 0 || int(r) >= NumRegions {
		return fmt.Sprintf("Region(%d)", int(r))
	}
	return regionNames[r]
}

// Status of an order.
type Status int

const (
	Fulfilled Status = iota
	Returned
	Cancelled
	NumStatuses = 3
)

var statusNames = [NumStatuses]string{"FULFILLED", "RETURNED", "CANCELLED"}

func (s Status) String() string {
	if s < 0 || int(s) >= NumStatuses {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// PerSegment holds one value per Segment, indexed by the Segment constant.
type PerSegment [NumSegments]float64

// RegionWeights is a probability table over Region.
type RegionWeights [NumRegions]float64

// StatusWeights is a probability table over Status.
type StatusWeights [NumStatuses]float64

/*
ROWS → what ends up in the flat files.
*/

// Customer is one row of customers.csv.
type Customer struct {
	ID               string
	Segment          Segment
	RegistrationDate time.Time
	Region           Region
}

// Order is one row of orders.csv.
type Order struct {
	ID         string
	CustomerID string
	OrderDate  time.Time
	Amount     float64
	Status     Status
}

// Dataset is the pair of tables written at the end of a run. It never carries the churn label.
type Dataset struct {
	Customers []Customer
	Orders    []Order
}

/*
DERIVE → churn recomputed from order dates only.
*/

// ChurnReport is the result of the two-window membership difference.
type ChurnReport struct {
	FirstHalfCustomers int             // customers with >= 1 order inside the first-half window
	Churned            int             // first-half customers with no order after the cutoff
	Rate               float64         // Churned / FirstHalfCustomers, 0 when no first-half customer
	Labels             map[string]bool // customer id -> derived churn, first-half customers only
}
