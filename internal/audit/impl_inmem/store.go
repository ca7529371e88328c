// Package impl_inmem provides an in-memory implementation of the audit
// interfaces.
//
// CRITICAL: this implementation is NOT for production use. Production
// requires persistent, tamper-evident storage (append-only file, WORM
// object storage, or similar) — the in-memory form exists for tests and
// local demos only; the persistence vendor is the collaborator's choice.
package impl_inmem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dscore/internal/audit"
	"dscore/pkg/canonical"
	"dscore/pkg/clock"
)

// Store implements audit.Logger, audit.Reader, audit.HashChain, and
// audit.Exporter against an in-process slice, guarded by a single
// mutex — the core appends one entry at a time, so there is no
// concurrent-append ordering problem to solve.
type Store struct {
	mu      sync.RWMutex
	nodeID  string
	clock   clock.Clock
	entries []audit.Entry
}

// New creates an empty in-memory audit store for the given node.
func New(nodeID string, c clock.Clock) *Store {
	return &Store{nodeID: nodeID, clock: c, entries: make([]audit.Entry, 0)}
}

// Append computes the next sequence number, stamps the current time,
// links previous_hash to the prior entry_hash (or canonical.ZeroHash
// for sequence 0), and computes entry_hash over the canonical join:
// entry_hash = H(sequence || timestamp || event || canonical(details) || previous_hash).
func (s *Store) Append(ctx context.Context, event audit.EventType, details audit.Details) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := canonical.ZeroHash
	if n := len(s.entries); n > 0 {
		prevHash = s.entries[n-1].EntryHash
	}

	entry := audit.Entry{
		SequenceNumber: int64(len(s.entries)),
		NodeID:         s.nodeID,
		Timestamp:      s.clock.Now(),
		Event:          event,
		Details:        details,
		PreviousHash:   prevHash,
	}
	entry.EntryHash = s.computeHash(entry)

	s.entries = append(s.entries, entry)
	return entry, nil
}

// computeHash hashes the canonical join of sequence, timestamp, event,
// the details record's own canonical form, and previous_hash.
func (s *Store) computeHash(entry audit.Entry) string {
	payload := canonical.Join(
		fmt.Sprintf("%d", entry.SequenceNumber),
		canonical.Timestamp(entry.Timestamp),
		string(entry.Event),
		canonicalDetails(entry.Details),
		entry.PreviousHash,
	)
	return canonical.HashString(payload)
}

func canonicalDetails(d audit.Details) string {
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	metaParts := make([]string, 0, len(keys))
	for _, k := range keys {
		metaParts = append(metaParts, k+"="+d.Metadata[k])
	}
	return canonical.Join(
		string(d.Actor),
		d.ResourceID,
		d.Reason,
		canonical.SortedStringSet(d.ReasonCodes),
		strings.Join(metaParts, ","),
	)
}

// Get retrieves a single audit entry by sequence number.
func (s *Store) Get(ctx context.Context, sequenceNumber int64) (audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sequenceNumber < 0 || sequenceNumber >= int64(len(s.entries)) {
		return audit.Entry{}, fmt.Errorf("audit: no entry at sequence %d", sequenceNumber)
	}
	return s.entries[sequenceNumber], nil
}

// List retrieves audit entries matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []audit.Entry
	for _, e := range s.entries {
		if matchesFilter(e, filter) {
			results = append(results, e)
		}
	}
	if filter.Offset > 0 && filter.Offset < len(results) {
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results, nil
}

func matchesFilter(e audit.Entry, filter audit.Filter) bool {
	if filter.Event != "" && e.Event != filter.Event {
		return false
	}
	if filter.ResourceID != "" && e.Details.ResourceID != filter.ResourceID {
		return false
	}
	if !filter.After.IsZero() && e.Timestamp.Before(filter.After) {
		return false
	}
	if !filter.Before.IsZero() && e.Timestamp.After(filter.Before) {
		return false
	}
	return true
}

// VerifyIntegrity walks the chain from sequence 0, checking each
// entry's previous_hash against the prior entry's entry_hash
// (canonical.ZeroHash for sequence 0) and its recomputed entry_hash
// against the stored value, stopping at the first break.
func (s *Store) VerifyIntegrity(ctx context.Context) (audit.VerificationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := audit.VerificationResult{Valid: true, BrokenAtSequence: -1}
	prevHash := canonical.ZeroHash
	for _, e := range s.entries {
		if e.PreviousHash != prevHash {
			result.Valid = false
			result.BrokenAtSequence = e.SequenceNumber
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence %d: previous_hash mismatch (stored %q, expected %q)",
				e.SequenceNumber, e.PreviousHash, prevHash))
			return result, nil
		}
		recomputed := s.computeHash(e)
		if recomputed != e.EntryHash {
			result.Valid = false
			result.BrokenAtSequence = e.SequenceNumber
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence %d: entry_hash mismatch (stored %q, recomputed %q)",
				e.SequenceNumber, e.EntryHash, recomputed))
			return result, nil
		}
		result.EntriesVerified++
		prevHash = e.EntryHash
	}
	return result, nil
}

// ChainHead returns the sequence number and entry_hash of the most
// recently appended entry.
func (s *Store) ChainHead(ctx context.Context) (int64, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return 0, canonical.ZeroHash, nil
	}
	last := s.entries[len(s.entries)-1]
	return last.SequenceNumber, last.EntryHash, nil
}

// Export returns every entry in the chain, in append order.
func (s *Store) Export(ctx context.Context) (audit.ExportPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]audit.Entry, len(s.entries))
	copy(cp, s.entries)
	return audit.ExportPackage{
		NodeID:     s.nodeID,
		ExportedAt: s.clock.Now(),
		EntryCount: len(cp),
		Entries:    cp,
	}, nil
}

var (
	_ audit.Logger    = (*Store)(nil)
	_ audit.Reader    = (*Store)(nil)
	_ audit.HashChain = (*Store)(nil)
	_ audit.Exporter  = (*Store)(nil)
)
