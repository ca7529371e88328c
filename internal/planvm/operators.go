package planvm

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"dscore/internal/queryplan"
	"dscore/pkg/canonical"
)

// applyOperator dispatches one PlanStep to its operator body and
// returns the resulting mapping. Every function here is a pure,
// non-suspending transform over a Mapping — no I/O, no blocking, so
// Execute's per-step resource sampling measures only CPU-bound work.
//
// in is already scoped to step.InputFields by the VM (scopeToInputs),
// so an operator body iterating or cloning the whole mapping can only
// ever touch declared inputs; the VM likewise checks the returned
// mapping against step.OutputFields before it flows to the next step.
func applyOperator(step queryplan.PlanStep, in Mapping, rng *rand.Rand) (Mapping, error) {
	switch step.Operator {
	case "select":
		return opSelect(step, in)
	case "filter":
		return opFilter(step, in)
	case "project":
		return opProject(step, in)
	case "bucketize":
		return opBucketize(step, in)
	case "aggregate":
		return opAggregate(step, in)
	case "cluster_ref":
		return opClusterRef(step, in)
	case "redact":
		return opRedact(step, in)
	case "sample":
		return opSample(step, in, rng)
	case "export":
		return opExport(step, in)
	case "pack_capsule":
		// pack_capsule is terminal and sealed by the VM via CapsuleSealer
		// (vm.go); the mapping itself passes through unchanged so the
		// sealer receives exactly what the preceding steps produced.
		return in.Clone(), nil
	default:
		return nil, fmt.Errorf("planvm: unknown operator %q", step.Operator)
	}
}

// opSelect narrows the mapping to step.OutputFields:
// select({steps,hr}) keeps only those two keys.
func opSelect(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	out := make(Mapping, len(step.OutputFields))
	for _, f := range step.OutputFields {
		if v, ok := in[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

// opFilter keeps step.OutputFields only where the named field's value
// satisfies Params["predicate_op"] against Params["predicate_value"].
// A field missing the predicate is dropped rather than erroring — the
// VM sees one data subject's local mapping, not a row set, so "filter"
// degenerates to a field-presence gate.
func opFilter(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	field := step.Params["predicate_field"]
	op := step.Params["predicate_op"]
	want := step.Params["predicate_value"]

	out := make(Mapping, len(step.OutputFields))
	for _, f := range step.OutputFields {
		v, ok := in[f]
		if !ok {
			continue
		}
		if field == "" || f != field {
			out[f] = v
			continue
		}
		if matchesPredicate(v, op, want) {
			out[f] = v
		}
	}
	return out, nil
}

func matchesPredicate(v interface{}, op, want string) bool {
	got := fmt.Sprintf("%v", v)
	switch op {
	case "", "eq":
		return got == want
	case "neq":
		return got != want
	case "gt", "lt", "gte", "lte":
		gotN, err1 := strconv.ParseFloat(got, 64)
		wantN, err2 := strconv.ParseFloat(want, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch op {
		case "gt":
			return gotN > wantN
		case "lt":
			return gotN < wantN
		case "gte":
			return gotN >= wantN
		case "lte":
			return gotN <= wantN
		}
	}
	return false
}

// opProject renames/selects fields: Params maps an output field name to
// the input field name it is drawn from. Any output field absent from
// Params is read from the identically-named input field.
func opProject(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	out := make(Mapping, len(step.OutputFields))
	for _, f := range step.OutputFields {
		src := f
		if mapped, ok := step.Params[f]; ok && mapped != "" {
			src = mapped
		}
		if v, ok := in[src]; ok {
			out[f] = v
		}
	}
	return out, nil
}

// opBucketize replaces Params["field"]'s numeric value with the label
// of the bucket it falls into. Boundaries and labels are comma-joined
// in Params; len(labels) must be len(boundaries)+1.
func opBucketize(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	field := step.Params["field"]
	boundariesRaw := step.Params["boundaries"]
	labelsRaw := step.Params["labels"]

	out := in.Clone()
	v, ok := in[field]
	if !ok || boundariesRaw == "" || labelsRaw == "" {
		return out, nil
	}
	n, err := strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
	if err != nil {
		return out, fmt.Errorf("planvm: bucketize: field %q is not numeric: %w", field, err)
	}
	boundaryStrs := strings.Split(boundariesRaw, ",")
	labels := strings.Split(labelsRaw, ",")
	if len(labels) != len(boundaryStrs)+1 {
		return nil, fmt.Errorf("planvm: bucketize: labels must be one more than boundaries")
	}
	boundaries := make([]float64, len(boundaryStrs))
	for i, b := range boundaryStrs {
		bf, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
		if err != nil {
			return nil, fmt.Errorf("planvm: bucketize: invalid boundary %q: %w", b, err)
		}
		boundaries[i] = bf
	}
	idx := sort.SearchFloat64s(boundaries, n)
	out[field] = labels[idx]
	return out, nil
}

// opAggregate collapses the whole mapping down to a single
// _aggregate_<op> key:
// aggregate(count) -> {_aggregate_count: 2}.
func opAggregate(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	op := step.Params["op"]
	if op == "" {
		op = "count"
	}
	field := step.Params["field"]

	var result interface{}
	switch op {
	case "count":
		result = float64(len(in))
	case "sum", "avg":
		var sum float64
		var n int
		for _, v := range in {
			f, err := toFloat(v)
			if err != nil {
				continue
			}
			sum += f
			n++
		}
		if field != "" {
			if v, ok := in[field]; ok {
				if f, err := toFloat(v); err == nil {
					sum = f
					n = 1
				}
			}
		}
		if op == "avg" && n > 0 {
			result = sum / float64(n)
		} else {
			result = sum
		}
	default:
		return nil, fmt.Errorf("planvm: aggregate: unsupported op %q", op)
	}

	return Mapping{"_aggregate_" + op: result}, nil
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	default:
		return strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
	}
}

// clusterKinds is the closed set of cluster-reference kinds usable
// in the "<kind>:<id>" form.
var clusterKinds = map[string]bool{"topic": true, "mood": true, "scene": true, "activity": true}

// maxClusterIDLen bounds a "<kind>:<id>" reference to 100 chars.
const maxClusterIDLen = 100

// opClusterRef replaces the mapping with an opaque, collision-resistant
// "<kind>:<id>" reference to the data subject's cohort membership —
// never the raw field values. kind defaults to "topic" when the step
// doesn't declare one of the four closed kinds. The k-anonymity floor
// itself (Params["cohort_size"] vs policy.MinCohortSize) is enforced by
// the VM's checkCohortGate before this operator runs; this function
// only computes the reference once that gate has passed.
func opClusterRef(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	kind := step.Params["kind"]
	if !clusterKinds[kind] {
		kind = "topic"
	}

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, in[k]))
	}
	// A hex hash contains no PII patterns by construction; truncating it
	// keeps the combined "<kind>:<id>" reference within the 100-char bound
	// regardless of how long kind is.
	id := canonical.HashString(canonical.Join(parts...))
	ref := kind + ":" + id
	if len(ref) > maxClusterIDLen {
		ref = ref[:maxClusterIDLen]
	}
	return Mapping{"_cluster_ref": ref}, nil
}

// opRedact overwrites the named fields' values with a fixed sentinel,
// preserving the field's presence (so downstream steps can still see
// that the field existed) without revealing its content.
func opRedact(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	redactField := map[string]bool{}
	for _, f := range strings.Split(step.Params["fields"], ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			redactField[f] = true
		}
	}
	out := in.Clone()
	for f := range redactField {
		if _, ok := out[f]; ok {
			out[f] = "[REDACTED]"
		}
	}
	return out, nil
}

// opSample is the single planvm operator whose outcome is
// probabilistic rather than a pure function of its mapping.
// Re-execution of the same signed plan must stay deterministic,
// so the VM seeds a single *rand.Rand per execution from the
// plan ID (vm.go) and opSample is the only consumer of it — the same
// plan always either keeps or drops this data subject's contribution.
func opSample(step queryplan.PlanStep, in Mapping, rng *rand.Rand) (Mapping, error) {
	rate, err := strconv.ParseFloat(step.Params["rate"], 64)
	if err != nil {
		return nil, fmt.Errorf("planvm: sample: invalid rate %q: %w", step.Params["rate"], err)
	}
	if rng.Float64() < rate {
		return in.Clone(), nil
	}
	return Mapping{}, nil
}

// opExport is a pass-through marking the mapping ready for hand-off to
// pack_capsule or direct return; it is terminal-ish but transforms
// no data itself.
func opExport(step queryplan.PlanStep, in Mapping) (Mapping, error) {
	return in.Clone(), nil
}
