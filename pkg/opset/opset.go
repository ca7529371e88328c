// Package opset defines the closed operator allowlist shared by
// consent (allowed_transforms ⊆ AllowedOps), queryplan (validator), and
// planvm (interpreter dispatch).
package opset

// Operator names, in their fixed declaration order.
const (
	Select      = "select"
	Filter      = "filter"
	Project     = "project"
	Bucketize   = "bucketize"
	Aggregate   = "aggregate"
	ClusterRef  = "cluster_ref"
	Redact      = "redact"
	Sample      = "sample"
	Export      = "export"
	PackCapsule = "pack_capsule"
)

// AllowedOps is the closed set of operators a Plan VM may execute.
var AllowedOps = []string{
	Select, Filter, Project, Bucketize, Aggregate,
	ClusterRef, Redact, Sample, Export, PackCapsule,
}

// Allowed reports whether op is in the closed operator set.
func Allowed(op string) bool {
	for _, a := range AllowedOps {
		if a == op {
			return true
		}
	}
	return false
}

// Subset reports whether every element of ops is in AllowedOps.
func Subset(ops []string) bool {
	for _, op := range ops {
		if !Allowed(op) {
			return false
		}
	}
	return true
}
