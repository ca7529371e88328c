package audit

import (
	"time"
)

// Actor is a tagged sum in place of inheritance between
// DS/Requester/System entity classes.
type Actor string

const (
	ActorDS        Actor = "DS"
	ActorRequester Actor = "REQUESTER"
	ActorSystem    Actor = "SYSTEM"
)

// EventType is the closed audit event taxonomy: nine
// categories the core itself emits (consent, obligation, query-plan,
// transform, capsule, nonce, PRB, deletion, field-access) plus three
// collaborator-originated categories (model-lineage, account, device)
// the core only stamps a record for on notification.
type EventType string

const (
	// Consent category.
	EventConsentGranted EventType = "consent.granted"
	EventConsentRevoked EventType = "consent.revoked"
	EventConsentExpired EventType = "consent.expired"
	EventConsentChecked EventType = "consent.checked"
	EventConsentDenied  EventType = "consent.denied"

	// Obligation category.
	EventObligationViolationDetected     EventType = "obligation.violation.detected"
	EventObligationViolationAcknowledged EventType = "obligation.violation.acknowledged"
	EventObligationViolationInvestigated EventType = "obligation.violation.investigating"
	EventObligationViolationResolved     EventType = "obligation.violation.resolved"
	EventObligationViolationEscalated    EventType = "obligation.violation.escalated"
	EventObligationViolationDismissed    EventType = "obligation.violation.dismissed"
	EventObligationSatisfied             EventType = "obligation.satisfied"
	EventObligationExpired               EventType = "obligation.expired"

	// Query-plan category.
	EventQueryPlanSigned     EventType = "query_plan.signed"
	EventQueryPlanRejected   EventType = "query_plan.rejected"
	EventQueryPlanDispatched EventType = "query_plan.dispatched"
	EventQueryPlanExpired    EventType = "query_plan.expired"

	// Transform (Plan VM) category.
	EventTransformExecuted EventType = "transform.executed"
	EventQueryExecuted     EventType = "query.executed"
	EventQueryAborted      EventType = "query.aborted"
	EventNetworkBlocked    EventType = "transform.network_blocked"

	// Capsule category.
	EventCapsuleCreated      EventType = "capsule.created"
	EventCapsuleDelivered    EventType = "capsule.delivered"
	EventCapsuleAccessed     EventType = "capsule.accessed"
	EventCapsuleAccessDenied EventType = "capsule.access_denied"
	EventCapsuleExpired      EventType = "capsule.expired"
	EventCapsuleDeleted      EventType = "capsule.deleted"

	// Nonce category.
	EventNonceRegistered EventType = "nonce.registered"
	EventNonceConsumed   EventType = "nonce.consumed"
	EventNonceExpired    EventType = "nonce.expired"
	EventNonceReplay     EventType = "nonce.replay_detected"

	// PRB category.
	EventPRBAllocated EventType = "prb.allocated"
	EventPRBLocked    EventType = "prb.locked"
	EventPRBConsumed  EventType = "prb.consumed"
	EventPRBExhausted EventType = "prb.exhausted"
	EventPRBRejected  EventType = "prb.rejected"

	// Deletion category.
	EventDeletionInitiated    EventType = "deletion.initiated"
	EventDeletionKeyDestroyed EventType = "deletion.key_destroyed"
	EventDeletionStorageDone  EventType = "deletion.storage_deleted"
	EventDeletionCompleted    EventType = "deletion.completed"
	EventDeletionVerified     EventType = "deletion.verified"
	EventDeletionFailed       EventType = "deletion.failed"

	// Field-access category.
	EventFieldAccessDenied EventType = "field_access.denied"

	// Model-lineage category: collaborator-originated, recorded verbatim.
	EventModelLineageRecorded EventType = "model_lineage.recorded"

	// Account category: recorded for an out-of-scope collaborator.
	EventAccountLinked EventType = "account.linked"

	// Device category: recorded for an out-of-scope collaborator.
	EventDeviceEnrolled EventType = "device.enrolled"
)

// Details is the typed payload of an entry. Fields are
// optional and component-specific; Metadata carries any remaining
// free-form key/value context.
type Details struct {
	Actor       Actor
	ResourceID  string
	Reason      string
	ReasonCodes []string
	Metadata    map[string]string
}

// Entry is one immutable, hash-chained audit log record.
type Entry struct {
	SequenceNumber int64
	NodeID         string
	Timestamp      time.Time
	Event          EventType
	Details        Details
	PreviousHash   string
	EntryHash      string
}

// Filter specifies criteria for querying audit entries.
type Filter struct {
	Event      EventType
	ResourceID string
	After      time.Time
	Before     time.Time
	Limit      int
	Offset     int
}

// VerificationResult is the outcome of walking the hash chain.
type VerificationResult struct {
	Valid            bool
	EntriesVerified  int
	BrokenAtSequence int64 // -1 if Valid
	Errors           []string
}

// ExportPackage is the export() output.
type ExportPackage struct {
	NodeID     string
	ExportedAt time.Time
	EntryCount int
	Entries    []Entry
}
