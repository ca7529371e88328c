package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"dscore/pkg/config"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
	"dscore/pkg/kvstore"
	"dscore/pkg/money"
)

// Request is the minimal projection of an incoming data-access request:
// what a requester wants (fields, purpose) before any Consent Contract
// or Query Plan exists yet. It is intentionally lighter than a Contract
// or Draft — a Request is a proposal, not a commitment.
//
// IdempotencyKey, when set by the transport, makes resubmission of the
// same request safe under at-least-once delivery: the second submit
// returns the first submit's request_id instead of minting a new one.
type Request struct {
	ID                 string
	RequesterID        string
	DSID               string
	PurposeHash        string
	RequestedFields    []string
	RequestedOperators []string
	IdempotencyKey     string
	SubmittedAt        time.Time
}

// BudgetPreview is quote_prb's response: an estimate of the PRB cost the
// requested operator pipeline would charge, computed the same way
// chargeStep does in internal/planvm, without running the plan.
type BudgetPreview struct {
	EstimatedCost string
	PerOperator   map[string]string
}

// Request keys in the KV collaborator. The core treats the stored value
// as an opaque blob; JSON is this implementation's private encoding.
const (
	requestKeyPrefix     = "request/"
	requestIdemKeyPrefix = "request_idem/"
)

// RequestStore keeps submitted Requests in the persistence collaborator,
// keyed by the opaque request_id submit_request returns. Idempotency-key
// uniqueness is enforced through the same store, so a resubmitted
// request resolves to its original id across restarts wherever the
// collaborator is durable. The mutex serializes the check-then-insert
// pair — the KV contract promises linearizable single-key writes, not
// compare-and-set.
type RequestStore struct {
	mu sync.Mutex
	kv kvstore.Store
}

// NewRequestStore creates a RequestStore backed by kv.
func NewRequestStore(kv kvstore.Store) *RequestStore {
	return &RequestStore{kv: kv}
}

// SubmitRequest accepts a requester's proposal and returns its
// request_id. A submission carrying an IdempotencyKey already seen
// returns the request_id minted for the first submission and stores
// nothing new.
func (c *Core) SubmitRequest(ctx context.Context, req Request) (string, error) {
	if req.RequesterID == "" || req.DSID == "" {
		return "", dserr.New(dserr.KindInvalidArgument, "requester_id and ds_id are required")
	}

	c.Requests.mu.Lock()
	defer c.Requests.mu.Unlock()

	if req.IdempotencyKey != "" {
		prior, ok, err := c.Requests.kv.Get(ctx, requestIdemKeyPrefix+req.IdempotencyKey)
		if err != nil {
			return "", errors.Wrap(err, "looking up idempotency key")
		}
		if ok {
			return string(prior), nil
		}
	}

	req.ID = ids.New().String()
	req.SubmittedAt = c.now()

	blob, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "encoding request")
	}
	if err := c.Requests.kv.Put(ctx, requestKeyPrefix+req.ID, blob); err != nil {
		return "", errors.Wrap(err, "storing request")
	}
	if req.IdempotencyKey != "" {
		if err := c.Requests.kv.Put(ctx, requestIdemKeyPrefix+req.IdempotencyKey, []byte(req.ID)); err != nil {
			return "", errors.Wrap(err, "storing idempotency key")
		}
	}

	return req.ID, nil
}

// GetRequest returns a previously submitted Request by its request_id.
func (c *Core) GetRequest(ctx context.Context, requestID string) (Request, bool) {
	blob, ok, err := c.Requests.kv.Get(ctx, requestKeyPrefix+requestID)
	if err != nil || !ok {
		return Request{}, false
	}
	var req Request
	if err := json.Unmarshal(blob, &req); err != nil {
		return Request{}, false
	}
	return req, true
}

// QuotePRB estimates the PRB cost of a submitted request's operator
// pipeline: sum each requested operator's BaseCost from the policy
// table, the same lookup planvm.VM.chargeStep performs per step, so a
// quote never drifts from what execution would actually charge.
func (c *Core) QuotePRB(ctx context.Context, requestID string) (BudgetPreview, error) {
	req, ok := c.GetRequest(ctx, requestID)
	if !ok {
		return BudgetPreview{}, dserr.New(dserr.KindInvalidArgument, "request not found")
	}

	total := money.Zero
	perOp := make(map[string]string, len(req.RequestedOperators))
	for _, op := range req.RequestedOperators {
		cost := operatorBaseCost(c.Policy, op)
		perOp[op] = cost.String()
		total = total.Add(cost)
	}

	return BudgetPreview{
		EstimatedCost: total.String(),
		PerOperator:   perOp,
	}, nil
}

func operatorBaseCost(policy *config.Policy, operator string) money.Amount {
	if policy == nil {
		return money.Zero
	}
	oc, ok := policy.OperatorCosts[operator]
	if !ok || oc.BaseCost == "" {
		return money.Zero
	}
	parsed, err := money.Parse(oc.BaseCost)
	if err != nil {
		return money.Zero
	}
	return parsed
}
