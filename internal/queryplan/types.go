package queryplan

import (
	"time"

	"dscore/pkg/config"
	"dscore/pkg/ids"
)

// Status is the QueryPlan lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSigned     Status = "SIGNED"
	StatusDispatched Status = "DISPATCHED"
	StatusExecuted   Status = "EXECUTED"
	StatusExpired    Status = "EXPIRED"
	StatusRejected   Status = "REJECTED"
)

// PlanStep is one operator invocation within a plan.
type PlanStep struct {
	Index        int
	Operator     string
	Params       map[string]string
	InputFields  []string
	OutputFields []string
}

// Plan is the QueryPlan entity. Once Status is SIGNED, every field
// listed here is immutable.
type Plan struct {
	ID                 ids.ID
	RequestID          string
	ConsentContractID  ids.ID
	ScopeHash          string
	AllowedTransforms  []string
	OutputRestrictions []string
	PermittedFields    []string
	Compensation       string
	TTL                time.Time
	ResourceLimits     config.ResourceLimits
	Steps              []PlanStep
	Signature          []byte
	SigningKeyID       string
	SignedAt           time.Time
	Status             Status
}

// Draft is the validated-constructor input for a new, unsigned Plan.
type Draft struct {
	RequestID          string
	ConsentContractID  ids.ID
	ScopeHash           string
	AllowedTransforms  []string
	OutputRestrictions []string
	PermittedFields    []string
	Compensation       string
	TTL                time.Time
	ResourceLimits     config.ResourceLimits
	Steps              []PlanStep
}

// ValidationResult is the Validator's aggregated output. Err combines
// every failing check via github.com/hashicorp/go-multierror, so a
// caller logging the rejection sees every reason, not just the first.
type ValidationResult struct {
	Valid       bool
	ReasonCodes []string
	Err         error
}
