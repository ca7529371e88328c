package audit

import "fmt"

// PlainRenderer implements Renderer with a fixed table of per-category
// templates, aimed at a human reader rather than a signable form.
//
// The EventType taxonomy says nothing about how an operator-facing
// viewer renders an entry; this closes that gap
// with a small, closed template table rather than a generic field
// dump.
type PlainRenderer struct{}

// NewPlainRenderer returns the default plain-language renderer.
func NewPlainRenderer() PlainRenderer { return PlainRenderer{} }

var descriptions = map[EventType]string{
	EventConsentGranted: "consent contract %s granted",
	EventConsentRevoked: "consent contract %s revoked",
	EventConsentExpired: "consent contract %s expired",
	EventConsentChecked: "consent contract %s checked",
	EventConsentDenied:  "consent check for %s denied",

	EventObligationViolationDetected:     "obligation violation detected on %s",
	EventObligationViolationAcknowledged: "obligation violation on %s acknowledged",
	EventObligationViolationInvestigated: "obligation violation on %s under investigation",
	EventObligationViolationResolved:     "obligation violation on %s resolved",
	EventObligationViolationEscalated:    "obligation violation on %s escalated",
	EventObligationViolationDismissed:    "obligation violation on %s dismissed",
	EventObligationSatisfied:             "obligation %s satisfied",
	EventObligationExpired:               "obligation %s expired",

	EventQueryPlanSigned:     "query plan %s signed",
	EventQueryPlanRejected:   "query plan %s rejected",
	EventQueryPlanDispatched: "query plan %s dispatched for execution",
	EventQueryPlanExpired:    "query plan %s expired before execution",

	EventTransformExecuted: "transform step executed for plan %s",
	EventQueryExecuted:     "query plan %s executed to completion",
	EventQueryAborted:      "query plan %s aborted",
	EventNetworkBlocked:    "network egress blocked during plan %s",

	EventCapsuleCreated:      "time capsule %s created",
	EventCapsuleDelivered:    "time capsule %s delivered",
	EventCapsuleAccessed:     "time capsule %s accessed",
	EventCapsuleAccessDenied: "time capsule %s access denied",
	EventCapsuleExpired:      "time capsule %s expired",
	EventCapsuleDeleted:      "time capsule %s deleted",

	EventNonceRegistered: "nonce %s registered",
	EventNonceConsumed:   "nonce %s consumed",
	EventNonceExpired:    "nonce %s expired",
	EventNonceReplay:     "nonce %s replay attempt detected",

	EventPRBAllocated: "privacy risk budget %s allocated",
	EventPRBLocked:    "privacy risk budget %s locked",
	EventPRBConsumed:  "privacy risk budget %s consumed",
	EventPRBExhausted: "privacy risk budget %s exhausted",
	EventPRBRejected:  "privacy risk budget %s rejected a request",

	EventDeletionInitiated:    "deletion certificate %s initiated",
	EventDeletionKeyDestroyed: "deletion certificate %s: key destroyed",
	EventDeletionStorageDone:  "deletion certificate %s: storage deleted",
	EventDeletionCompleted:    "deletion certificate %s completed",
	EventDeletionVerified:     "deletion certificate %s verified",
	EventDeletionFailed:       "deletion certificate %s failed",

	EventFieldAccessDenied: "field access denied for %s",

	EventModelLineageRecorded: "model lineage recorded for %s",
	EventAccountLinked:        "account %s linked",
	EventDeviceEnrolled:       "device %s enrolled",
}

// Describe renders entry as a single plain-language sentence, falling
// back to a generic rendering for any event type not in the table
// (there should be none, since EventType is a closed set, but a new
// category must never panic a reader).
func (PlainRenderer) Describe(entry Entry) string {
	tmpl, ok := descriptions[entry.Event]
	if !ok {
		return fmt.Sprintf("unrecognized event %q on resource %s", entry.Event, entry.Details.ResourceID)
	}
	msg := fmt.Sprintf(tmpl, entry.Details.ResourceID)
	if entry.Details.Reason != "" {
		msg += ": " + entry.Details.Reason
	}
	return msg
}

var _ Renderer = PlainRenderer{}
