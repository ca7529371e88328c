package core

import (
	auditimpl "dscore/internal/audit/impl_inmem"
	consentimpl "dscore/internal/consent/impl_inmem"
	capsuleimpl "dscore/internal/capsule/impl_inmem"
	deletionimpl "dscore/internal/deletion/impl_inmem"
	nonceimpl "dscore/internal/nonce/impl_inmem"
	"dscore/internal/planvm"
	prbimpl "dscore/internal/prb/impl_inmem"
	"dscore/internal/queryplan"
	queryplanimpl "dscore/internal/queryplan/impl"
	"dscore/internal/audit"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	keymanagerimpl "dscore/pkg/dscrypto/impl_inmem"
	kvimpl "dscore/pkg/kvstore/impl_inmem"
	"dscore/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// NewInMemory assembles a complete Core from fresh in-memory
// collaborators: every subsystem's impl_inmem, one shared clock and
// node ID, and the counters in reg. Callers that want the counters
// exposed process-wide pass metrics.Registry; tests and short-lived
// demos pass a fresh prometheus.NewRegistry() so repeated calls never
// collide on a duplicate metric name. Production entrypoints that
// require a durable KV store or an HSM-backed KeyManager construct a
// Core via New instead, supplying their own collaborators.
func NewInMemory(nodeID string, clk clock.Clock, policy *config.Policy, reg prometheus.Registerer) *Core {
	if policy == nil {
		policy = config.Default()
	}

	auditStore := auditimpl.New(nodeID, clk)
	renderer := audit.NewPlainRenderer()

	consentEngine := consentimpl.New(clk, auditStore)

	keyManager := keymanagerimpl.New(clk)
	signer := queryplanimpl.NewKeyManagerSigner(keyManager)
	validator := queryplanimpl.NewValidator(signer)
	validatorPolicy := validatorPolicyFrom(policy)
	plans := queryplanimpl.NewManager(clk, auditStore, signer, validator, validatorPolicy)

	ledger := prbimpl.New()

	keyRegistry := deletionimpl.NewKeyRegistry(clk)
	certStore := deletionimpl.NewCertificateStore(clk)

	sealer := capsuleimpl.New()
	nonces := nonceimpl.New(clk)
	deletionAdapter := capsuleimpl.NewDeletionAdapter(certStore, keyRegistry)
	capsules := capsuleimpl.NewManager(clk, sealer, nonces, deletionAdapter, auditStore)

	gate := planvm.NewNetworkGate()
	vm := planvm.NewVM(gate, auditStore, ledger, NewCapsuleSealer(capsules), consentEngine, clk, policy)

	collectors := metrics.NewCollectors(reg)

	kv := kvimpl.New()

	return New(
		consentEngine,
		consentEngine, // Engine and ObligationTracker share one impl_inmem.Engine
		plans,
		vm,
		capsules,
		ledger,
		certStore,
		keyRegistry,
		auditStore,
		renderer,
		keyManager,
		collectors,
		clk,
		policy,
		kv,
	)
}

func validatorPolicyFrom(policy *config.Policy) queryplan.ValidatorPolicy {
	return queryplan.ValidatorPolicy{
		MaxTTL:           policy.PlanMaxTTL,
		MaxCPUMillis:     policy.ResourceLimits.CPUMillis,
		MaxMemoryBytes:   policy.ResourceLimits.MemoryBytes,
		MaxWallMillis:    policy.ResourceLimits.WallMillis,
		MaxBatteryPctMax: policy.ResourceLimits.BatteryPctMax,
	}
}
