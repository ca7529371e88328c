package queryplan

import (
	"dscore/pkg/canonical"
)

// SignablePayload renders p's canonical signable form:
// id|request|contract|scope_hash|allowed_transforms|output_restrictions|
// permitted_fields|compensation(plain)|ttl(ISO), in this fixed order.
// ResourceLimits, Steps, SigningKeyID, SignedAt and Status are not part
// of the payload.
func SignablePayload(p Plan) []byte {
	s := canonical.Join(
		p.ID.String(),
		p.RequestID,
		p.ConsentContractID.String(),
		p.ScopeHash,
		canonical.SortedStringSet(p.AllowedTransforms),
		canonical.SortedStringSet(p.OutputRestrictions),
		canonical.SortedFieldSet(p.PermittedFields),
		p.Compensation,
		canonical.Timestamp(p.TTL),
	)
	return []byte(s)
}
