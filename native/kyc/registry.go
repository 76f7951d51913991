package kyc

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradeescrow/core/events"
	"tradeescrow/core/types"
)

const (
	EventTypeApproved = "kyc.approved"
	EventTypeRevoked  = "kyc.revoked"
)

var ErrInvalidIdentity = errors.New("kyc: identity required")

type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var approvalPrefix = []byte("kyc/approval/")

func approvalKey(identity [20]byte) []byte {
	return append(append([]byte(nil), approvalPrefix...), identity[:]...)
}

type storedApproval struct {
	Approved  bool
	Reference string
	UpdatedAt uint64
}

// Approval describes the current KYC status of an identity.
type Approval struct {
	Identity  [20]byte
	Approved  bool
	Reference string
	UpdatedAt int64
}

type kycEvent struct {
	evt *types.Event
}

func (e kycEvent) EventType() string { return e.evt.Type }

func (e kycEvent) Event() *types.Event { return e.evt }

// Registry is the allow-list of identities that passed KYC. Unknown identities
// are not approved.
type Registry struct {
	store   storage
	emitter events.Emitter
	nowFn   func() int64
	mu      sync.Mutex
}

// NewRegistry constructs a registry bound to the provided storage backend.
func NewRegistry(store storage) *Registry {
	return &Registry{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the sink for approval events.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// SetNowFunc overrides the clock used to timestamp approvals.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	r.nowFn = now
}

// Approve adds identity to the allow-list. Reference is an opaque pointer to
// the off-chain verification case.
func (r *Registry) Approve(identity [20]byte, reference string) error {
	return r.set(identity, true, reference)
}

// Revoke removes identity from the allow-list.
func (r *Registry) Revoke(identity [20]byte, reference string) error {
	return r.set(identity, false, reference)
}

func (r *Registry) set(identity [20]byte, approved bool, reference string) error {
	if r == nil || r.store == nil {
		return errors.New("kyc: registry not initialised")
	}
	if identity == ([20]byte{}) {
		return ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFn()
	stored := storedApproval{Approved: approved, Reference: strings.TrimSpace(reference), UpdatedAt: uint64(now)}
	if err := r.store.KVPut(approvalKey(identity), &stored); err != nil {
		return err
	}
	eventType := EventTypeApproved
	if !approved {
		eventType = EventTypeRevoked
	}
	r.emitter.Emit(kycEvent{evt: &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"identity":  hex.EncodeToString(identity[:]),
			"reference": stored.Reference,
			"updatedAt": strconv.FormatInt(now, 10),
		},
	}})
	return nil
}

// Approval returns the stored status of identity.
func (r *Registry) Approval(identity [20]byte) (*Approval, bool, error) {
	if r == nil || r.store == nil {
		return nil, false, errors.New("kyc: registry not initialised")
	}
	var stored storedApproval
	ok, err := r.store.KVGet(approvalKey(identity), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Approval{
		Identity:  identity,
		Approved:  stored.Approved,
		Reference: stored.Reference,
		UpdatedAt: int64(stored.UpdatedAt),
	}, true, nil
}

// IsApproved reports whether identity is currently on the allow-list. Storage
// failures are treated as not approved.
func (r *Registry) IsApproved(identity [20]byte) bool {
	approval, ok, err := r.Approval(identity)
	return err == nil && ok && approval.Approved
}
