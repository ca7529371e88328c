package dserr

// reasonTable is the immutable code table behind user-visible
// rejections: every
// reason code the core can emit maps to one plain-language description,
// stamped with the PolicyVersion in force when the table was authored.
//
// A closed switch, no free-form string building.
type reasonTable struct {
	version      string
	descriptions map[string]string
}

// ReasonTable is the single process-wide immutable reason-code table.
var ReasonTable = reasonTable{
	version: PolicyVersion,
	descriptions: map[string]string{
		"CONSENT_REVOKED":                    "The data sovereign revoked consent for this request.",
		"CONSENT_EXPIRED":                    "The consent contract's active window has ended.",
		"CONSENT_NOT_ACTIVE":                 "The consent contract is not currently active.",
		"SCOPE_MISMATCH":                     "The query plan's scope does not match the consent contract's scope.",
		"UNAUTHORIZED_FIELD_ACCESS_ATTEMPT":  "The query plan reads a field outside the permitted set.",
		"SENSITIVE_FIELD_NOT_CONSENTED":      "The query plan touches a sensitive field without explicit consent.",
		"TRANSFORM_NOT_ALLOWED":              "The query plan uses an operator the consent contract does not allow.",
		"OUTPUT_RESTRICTION_WEAKENED":        "The query plan's output restrictions are weaker than the contract requires.",
		"OBLIGATION_MISSING":                 "A required obligation kind is not present on the consent contract.",
		"OBLIGATION_VIOLATED":                "A binding obligation has been violated and blocks further disclosure.",
		"PRB_EXHAUSTED":                      "The privacy risk budget for this campaign has been exhausted.",
		"COHORT_TOO_SMALL":                   "The output would describe fewer individuals than the minimum cohort size.",
		"PLAN_SIGNATURE_INVALID":             "The query plan's signature does not verify against its declared key.",
		"PLAN_TTL_EXPIRED":                   "The query plan's time-to-live has elapsed.",
		"PLAN_TTL_EXCEEDS_POLICY":            "The query plan's time-to-live exceeds the maximum allowed duration.",
		"PLAN_OPERATOR_NOT_ALLOWLISTED":      "The query plan references an operator outside the closed allowlist.",
		"PLAN_PACK_CAPSULE_NOT_LAST":         "pack_capsule must be the final step of the plan.",
		"PLAN_RESOURCE_LIMITS_EXCEED_POLICY": "The query plan's declared resource limits exceed policy caps.",
		"NETWORK_EGRESS_BLOCKED":             "An outbound call was attempted while the sandbox's network gate was engaged.",
		"INPUT_FIELD_UNAVAILABLE":            "A plan step requires a field the current mapping no longer carries.",
		"UNDECLARED_OUTPUT_FIELD":            "A plan step wrote a field outside its declared output set.",
		"NONCE_REUSED":                       "This nonce has already been consumed; the capsule cannot be accessed again.",
		"NONCE_EXPIRED":                      "This nonce's time-to-live has elapsed.",
		"CAPSULE_EXPIRED":                    "This capsule's time-to-live has elapsed.",
		"CAPSULE_NOT_DELIVERABLE":            "This capsule is not in a state that allows access.",
		"KEY_DESTROYED":                      "The decryption key for this resource has been permanently destroyed.",
		"AUDIT_CHAIN_BROKEN":                 "The audit hash chain failed integrity verification.",
		"CERTIFICATE_HASH_MISMATCH":          "The deletion certificate's recomputed hash does not match its stored hash.",
	},
}

// Describe returns the plain-language description for code, or a
// conservative fallback if code is not in the table — never silently
// describes an unknown code as something it isn't.
func (t reasonTable) Describe(code string) string {
	if d, ok := t.descriptions[code]; ok {
		return d
	}
	return "Unrecognized policy reason code: " + code
}

// Version returns the policy version stamped on this table.
func (t reasonTable) Version() string {
	return t.version
}
