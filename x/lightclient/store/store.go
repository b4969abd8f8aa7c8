package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Commitment is the pair of roots summarizing all data and state changes
// across a committed height range.
type Commitment struct {
	DataRoot  common.Hash
	StateRoot common.Hash
}

// Config routes proof requests and verified-output fetches to the correct
// remote proof programs. Mutated only through the coordinator's
// administrative surface.
type Config struct {
	GatewayID             string
	HeaderRangeFunctionID common.Hash
	RotateFunctionID      common.Hash
}

// State holds the light client's persisted view: header hashes by height,
// authority set hashes by id, range commitments, the head pointer, and the
// routing configuration. All writes go through the coordinator; reads are
// consistent snapshots of the last completed commit.
type State struct {
	mu sync.RWMutex

	headers       map[uint32]common.Hash
	authoritySets map[uint64]common.Hash
	commitments   map[common.Hash]Commitment
	head          uint32
	cfg           Config
	bootstrapped  bool
}

// NewState returns an empty state with the given routing configuration.
func NewState(cfg Config) *State {
	return &State{
		headers:       make(map[uint32]common.Hash),
		authoritySets: make(map[uint64]common.Hash),
		commitments:   make(map[common.Hash]Commitment),
		cfg:           cfg,
	}
}

// RangeKey derives the canonical commitment key for a (trusted, target)
// height pair: keccak256 over both heights as 32-byte big-endian words.
func RangeKey(trustedHeight, targetHeight uint32) common.Hash {
	var buf [2 * common.HashLength]byte
	binary.BigEndian.PutUint32(buf[common.HashLength-4:common.HashLength], trustedHeight)
	binary.BigEndian.PutUint32(buf[2*common.HashLength-4:], targetHeight)
	return crypto.Keccak256Hash(buf[:])
}

// Bootstrap seeds the genesis header and authority set. It may run exactly
// once per instance.
func (s *State) Bootstrap(height uint32, headerHash common.Hash, authoritySetID uint64, authorityHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bootstrapped {
		return fmt.Errorf("state already bootstrapped at head %d", s.head)
	}
	if headerHash == (common.Hash{}) {
		return fmt.Errorf("genesis header hash is required")
	}
	if authorityHash == (common.Hash{}) {
		return fmt.Errorf("genesis authority hash is required")
	}

	s.headers[height] = headerHash
	s.authoritySets[authoritySetID] = authorityHash
	s.head = height
	s.bootstrapped = true
	return nil
}

// Bootstrapped reports whether genesis has been seeded.
func (s *State) Bootstrapped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrapped
}

// HeaderHash returns the header hash recorded at height.
func (s *State) HeaderHash(height uint32) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[height]
	return h, ok
}

// AuthoritySetHash returns the authority hash recorded for the set id.
func (s *State) AuthoritySetHash(id uint64) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.authoritySets[id]
	return h, ok
}

// LatestAuthoritySet returns the highest recorded set id and its hash.
func (s *State) LatestAuthoritySet() (uint64, common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		maxID uint64
		found bool
	)
	for id := range s.authoritySets {
		if !found || id > maxID {
			maxID = id
			found = true
		}
	}
	if !found {
		return 0, common.Hash{}, false
	}
	return maxID, s.authoritySets[maxID], true
}

// Commitment returns the roots committed for the (trusted, target) pair.
func (s *State) Commitment(trustedHeight, targetHeight uint32) (Commitment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commitments[RangeKey(trustedHeight, targetHeight)]
	return c, ok
}

// Head returns the highest committed canonical height.
func (s *State) Head() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// PutHeader records a header hash. A non-zero entry is never overwritten.
func (s *State) PutHeader(height uint32, hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hash == (common.Hash{}) {
		return fmt.Errorf("header hash for height %d is empty", height)
	}
	if existing, ok := s.headers[height]; ok && existing != (common.Hash{}) {
		return fmt.Errorf("header at height %d already recorded", height)
	}
	s.headers[height] = hash
	return nil
}

// PutAuthoritySet records an authority hash. The registry is append-only by
// increasing id: id n+1 is writable only once id n is known.
func (s *State) PutAuthoritySet(id uint64, hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hash == (common.Hash{}) {
		return fmt.Errorf("authority hash for set %d is empty", id)
	}
	if _, ok := s.authoritySets[id]; ok {
		return fmt.Errorf("authority set %d already recorded", id)
	}
	if id > 0 {
		if _, ok := s.authoritySets[id-1]; !ok {
			return fmt.Errorf("authority set %d cannot be recorded before set %d", id, id-1)
		}
	}
	s.authoritySets[id] = hash
	return nil
}

// ApplyCommit records a committed header range as one atomic step: the
// target header, the range commitment, and the head advance become visible
// together or not at all. Readers never observe a recorded header whose
// height the head pointer has not reached.
func (s *State) ApplyCommit(trustedHeight, targetHeight uint32, headerHash common.Hash, c Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if headerHash == (common.Hash{}) {
		return fmt.Errorf("header hash for height %d is empty", targetHeight)
	}
	if existing, ok := s.headers[targetHeight]; ok && existing != (common.Hash{}) {
		return fmt.Errorf("header at height %d already recorded", targetHeight)
	}
	key := RangeKey(trustedHeight, targetHeight)
	if _, ok := s.commitments[key]; ok {
		return fmt.Errorf("commitment for range (%d, %d) already recorded", trustedHeight, targetHeight)
	}
	if targetHeight < s.head {
		return fmt.Errorf("head cannot move from %d back to %d", s.head, targetHeight)
	}

	s.headers[targetHeight] = headerHash
	s.commitments[key] = c
	s.head = targetHeight
	return nil
}

// PutCommitment records the roots for a (trusted, target) pair. One record
// per distinct pair is ever written.
func (s *State) PutCommitment(trustedHeight, targetHeight uint32, c Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := RangeKey(trustedHeight, targetHeight)
	if _, ok := s.commitments[key]; ok {
		return fmt.Errorf("commitment for range (%d, %d) already recorded", trustedHeight, targetHeight)
	}
	s.commitments[key] = c
	return nil
}

// SetHead advances the head pointer. The head never moves backwards.
func (s *State) SetHead(height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if height < s.head {
		return fmt.Errorf("head cannot move from %d back to %d", s.head, height)
	}
	s.head = height
	return nil
}

// Configuration returns a snapshot of the routing configuration.
func (s *State) Configuration() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetGatewayID updates the gateway endpoint identity.
func (s *State) SetGatewayID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.GatewayID = id
}

// SetHeaderRangeFunctionID updates the header-range proof program id.
func (s *State) SetHeaderRangeFunctionID(id common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.HeaderRangeFunctionID = id
}

// SetRotateFunctionID updates the rotate proof program id.
func (s *State) SetRotateFunctionID(id common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.RotateFunctionID = id
}
