// Package wallet implements the Credential Wallet: a persisted pool of API
// tokens with per-token credit accounting, serialized internally by a
// single mutex guarding all reservation and credit bookkeeping.
package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pithecus-labs/creditrunner/csvstore"
	"github.com/pithecus-labs/creditrunner/types"
)

// RetireKind classifies why a credential is being retired.
type RetireKind string

const (
	RetireInvalidAuth    RetireKind = "invalidAuth"
	RetireBilling        RetireKind = "billing"
	RetireQuotaExhausted RetireKind = "quotaExhausted"
)

// Snapshot is an immutable point-in-time view of wallet state.
type Snapshot struct {
	Active         int `json:"active"`
	Banned         int `json:"banned"`
	TotalRemaining int `json:"totalRemaining"`
}

// persistedCredential is the on-disk shape of one credential. Only
// TokenHint is ever written — the full token is re-read from the seed
// file on startup.
type persistedCredential struct {
	ID         string `json:"id"`
	TokenHint  string `json:"tokenHint"`
	Remaining  int    `json:"remaining"`
	Limit      int    `json:"limit"`
	Banned     bool   `json:"banned"`
	LastError  string `json:"lastError,omitempty"`
	LastUsedAt string `json:"lastUsedAt,omitempty"`
}

type persistedFile struct {
	PerCredentialLimit int                   `json:"perCredentialLimit"`
	Credentials        []persistedCredential `json:"credentials"`
}

// Wallet holds an ordered set of credentials plus the file they persist
// to. All mutating operations are serialized internally by mu.
type Wallet struct {
	mu   sync.Mutex
	path string

	perCredentialLimit int
	credentials        []*types.Credential
	inflight           map[string]*types.InFlight // inflight id -> reservation
	lastUsedAt         map[string]time.Time
}

type seedFile struct {
	asArray  []string
	asObject map[string]string
}

// Load reads the persisted wallet file at persistedPath if present;
// otherwise it seeds from seedPath, a JSON document that is either an
// array of tokens or an object mapping id to token. Seeded credentials
// start with remaining=perCredentialLimit; loaded credentials retain their
// remaining and banned state from the persisted file.
func Load(persistedPath, seedPath string, perCredentialLimit int) (*Wallet, error) {
	w := &Wallet{
		path:               persistedPath,
		perCredentialLimit: perCredentialLimit,
		inflight:           make(map[string]*types.InFlight),
		lastUsedAt:         make(map[string]time.Time),
	}

	persisted, persistedErr := readPersisted(persistedPath)
	seed, seedErr := readSeed(seedPath)

	switch {
	case persistedErr == nil && seedErr == nil:
		w.mergeSeedWithPersisted(seed, persisted)
	case persistedErr == nil:
		w.loadFromPersistedOnly(persisted)
	case seedErr == nil:
		w.seedFresh(seed)
	default:
		return nil, fmt.Errorf("wallet: neither persisted file %q nor seed file %q could be read: %w", persistedPath, seedPath, seedErr)
	}

	if persistedPath != "" {
		if err := w.persistLocked(); err != nil {
			return nil, err
		}
	}

	return w, nil
}

func (w *Wallet) seedFresh(seed *seedFile) {
	ids, tokens := seed.idsAndTokens()
	for i, id := range ids {
		w.credentials = append(w.credentials, &types.Credential{
			ID:        id,
			Token:     tokens[i],
			Remaining: w.perCredentialLimit,
			Limit:     w.perCredentialLimit,
		})
	}
}

func (w *Wallet) loadFromPersistedOnly(p *persistedFile) {
	w.perCredentialLimit = p.PerCredentialLimit
	for _, pc := range p.Credentials {
		w.credentials = append(w.credentials, &types.Credential{
			ID:        pc.ID,
			Remaining: pc.Remaining,
			Limit:     pc.Limit,
			Banned:    pc.Banned,
			LastError: pc.LastError,
		})
	}
}

func (w *Wallet) mergeSeedWithPersisted(seed *seedFile, p *persistedFile) {
	if p.PerCredentialLimit > 0 {
		w.perCredentialLimit = p.PerCredentialLimit
	}
	byID := make(map[string]persistedCredential, len(p.Credentials))
	for _, pc := range p.Credentials {
		byID[pc.ID] = pc
	}

	ids, tokens := seed.idsAndTokens()
	for i, id := range ids {
		if pc, ok := byID[id]; ok {
			w.credentials = append(w.credentials, &types.Credential{
				ID:        id,
				Token:     tokens[i],
				Remaining: pc.Remaining,
				Limit:     pc.Limit,
				Banned:    pc.Banned,
				LastError: pc.LastError,
			})
			continue
		}
		w.credentials = append(w.credentials, &types.Credential{
			ID:        id,
			Token:     tokens[i],
			Remaining: w.limitOrDefault(),
			Limit:     w.limitOrDefault(),
		})
	}
}

func (w *Wallet) limitOrDefault() int {
	if w.perCredentialLimit > 0 {
		return w.perCredentialLimit
	}
	return 2500
}

// Reserve returns a credential with remaining >= need, preferring the
// smallest such remaining to pack efficiently; failing that, the
// non-banned credential with the largest remaining. Returns nil if no
// non-banned credential has remaining > 0. The reservation decrements
// remaining by need and returns a new InFlight; the wallet keeps no record
// of it, so the caller holds the pointer and passes it back to resolve it.
func (w *Wallet) Reserve(runID string, need int) *types.InFlight {
	w.mu.Lock()
	defer w.mu.Unlock()

	var best *types.Credential
	for _, c := range w.credentials {
		if c.Banned || c.Remaining <= 0 {
			continue
		}
		if c.Remaining >= need {
			if best == nil || c.Remaining < best.Remaining {
				best = c
			}
		}
	}
	if best == nil {
		for _, c := range w.credentials {
			if c.Banned || c.Remaining <= 0 {
				continue
			}
			if best == nil || c.Remaining > best.Remaining {
				best = c
			}
		}
	}
	if best == nil {
		return nil
	}

	best.Remaining -= need
	inflight := &types.InFlight{
		RunID:           runID,
		CredentialID:    best.ID,
		ReservedCredits: need,
		StartedAt:       time.Now(),
	}
	_ = w.persistLocked()
	return inflight
}

// Commit finalizes a reservation with no further credit change (the
// estimated cost was already decremented at Reserve time), adjusting only
// for the signed difference between actual and estimated cost.
func (w *Wallet) Commit(inflight *types.InFlight, costActual int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	c := w.find(inflight.CredentialID)
	if c == nil {
		return fmt.Errorf("wallet: commit: unknown credential %q", inflight.CredentialID)
	}
	delta := inflight.ReservedCredits - costActual
	c.Remaining += delta
	if c.Remaining < 0 {
		c.Remaining = 0
	}
	w.lastUsedAt[c.ID] = time.Now()
	return w.persistLocked()
}

// Refund returns the full reserved amount to the credential.
func (w *Wallet) Refund(inflight *types.InFlight) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	c := w.find(inflight.CredentialID)
	if c == nil {
		return fmt.Errorf("wallet: refund: unknown credential %q", inflight.CredentialID)
	}
	c.Remaining += inflight.ReservedCredits
	return w.persistLocked()
}

// Retire bans the credential permanently for this run, zeroes its
// remaining balance, and refunds any outstanding reservation of inflight
// so the net credit change versus pre-call is zero.
func (w *Wallet) Retire(inflight *types.InFlight, kind RetireKind, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	c := w.find(inflight.CredentialID)
	if c == nil {
		return fmt.Errorf("wallet: retire: unknown credential %q", inflight.CredentialID)
	}
	c.Remaining += inflight.ReservedCredits
	c.Banned = true
	c.Remaining = 0
	c.LastError = fmt.Sprintf("%s: %s", kind, message)
	return w.persistLocked()
}

// CredentialByID returns a value copy of the credential with id, safe to
// read without holding the wallet lock, or false if id is unknown. The
// Job Runner uses this to obtain the token for a reservation returned by
// Reserve, which hands back only the InFlight record.
func (w *Wallet) CredentialByID(id string) (types.Credential, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.find(id)
	if c == nil {
		return types.Credential{}, false
	}
	return *c, true
}

func (w *Wallet) find(id string) *types.Credential {
	for _, c := range w.credentials {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Snapshot returns the current aggregate wallet state.
func (w *Wallet) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// CredentialSummary is the per-credential detail the Archival Sink writes
// alongside the aggregate Snapshot; it never carries the full token.
type CredentialSummary struct {
	ID        string `json:"id"`
	TokenHint string `json:"tokenHint"`
	Remaining int    `json:"remaining"`
	Banned    bool   `json:"banned"`
}

// CredentialSummaries returns a per-credential detail snapshot, in wallet
// order, for archival or external reporting.
func (w *Wallet) CredentialSummaries() []CredentialSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]CredentialSummary, len(w.credentials))
	for i, c := range w.credentials {
		out[i] = CredentialSummary{ID: c.ID, TokenHint: c.TokenHint(), Remaining: c.Remaining, Banned: c.Banned}
	}
	return out
}

func (w *Wallet) snapshotLocked() Snapshot {
	var s Snapshot
	for _, c := range w.credentials {
		if c.Banned {
			s.Banned++
		} else {
			s.Active++
		}
		s.TotalRemaining += c.Remaining
	}
	return s
}

// Watch polls Snapshot every interval until ctx is canceled, for the CLI's
// live wallet view. It never mutates wallet state.
func (w *Wallet) Watch(ctx context.Context, interval time.Duration) <-chan Snapshot {
	ch := make(chan Snapshot)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- w.Snapshot():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (w *Wallet) persistLocked() error {
	if w.path == "" {
		return nil
	}
	pf := persistedFile{PerCredentialLimit: w.perCredentialLimit}
	for _, c := range w.credentials {
		lastUsed := ""
		if t, ok := w.lastUsedAt[c.ID]; ok {
			lastUsed = t.UTC().Format(time.RFC3339)
		}
		pf.Credentials = append(pf.Credentials, persistedCredential{
			ID:         c.ID,
			TokenHint:  c.TokenHint(),
			Remaining:  c.Remaining,
			Limit:      c.Limit,
			Banned:     c.Banned,
			LastError:  c.LastError,
			LastUsedAt: lastUsed,
		})
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("wallet: marshal persisted file: %w", err)
	}
	return csvstore.AtomicWriteFile(w.path, data)
}

func readPersisted(path string) (*persistedFile, error) {
	if path == "" {
		return nil, fmt.Errorf("no persisted path configured")
	}
	data, err := readFileIfExists(path)
	if err != nil {
		return nil, err
	}
	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("wallet: invalid persisted file %q: %w", path, err)
	}
	return &pf, nil
}

func readSeed(path string) (*seedFile, error) {
	if path == "" {
		return nil, fmt.Errorf("no seed path configured")
	}
	data, err := readFileIfExists(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		return &seedFile{asArray: arr}, nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err == nil {
		return &seedFile{asObject: obj}, nil
	}

	return nil, fmt.Errorf("wallet: seed file %q is neither an array nor an object of tokens", path)
}

func (s *seedFile) idsAndTokens() ([]string, []string) {
	if s.asArray != nil {
		ids := make([]string, len(s.asArray))
		for i, tok := range s.asArray {
			ids[i] = fmt.Sprintf("cred-%d", i+1)
		}
		return ids, s.asArray
	}
	ids := make([]string, 0, len(s.asObject))
	for id := range s.asObject {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = s.asObject[id]
	}
	return ids, tokens
}
