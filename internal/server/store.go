package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"castpair/internal/crypto"
	"castpair/internal/domain"
)

const (
	// CodeAlphabet holds the characters codes are drawn from.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// CodeLength is the number of characters in a code.
	CodeLength = 6
	// DefaultCodeTTL is how long a code stays claimable.
	DefaultCodeTTL = 10 * time.Minute

	maxCodeAttempts = 16
)

var (
	ErrUnknownCode        = errors.New("unknown pairing code")
	ErrCodeExpired        = errors.New("pairing code expired")
	ErrAlreadyClaimed     = errors.New("pairing code already claimed")
	ErrInvalidKey         = errors.New("invalid public key")
	ErrEmptyPayload       = errors.New("empty payload")
	ErrCodeSpaceExhausted = errors.New("could not allocate a free pairing code")
)

type device struct {
	publicKey string
	expires   time.Time
	castData  string
}

// Store keeps registered devices and their claimed payloads in memory.
type Store struct {
	mu      sync.Mutex
	devices map[domain.PairingCode]*device
	ttl     time.Duration
	clock   clock.Clock
	rand    io.Reader
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithTTL sets how long codes stay valid.
func WithTTL(d time.Duration) StoreOption { return func(s *Store) { s.ttl = d } }

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) StoreOption { return func(s *Store) { s.clock = c } }

// WithRand replaces crypto/rand as the code source.
func WithRand(r io.Reader) StoreOption { return func(s *Store) { s.rand = r } }

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		devices: make(map[domain.PairingCode]*device),
		ttl:     DefaultCodeTTL,
		clock:   clock.New(),
		rand:    rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultCodeTTL
	}
	return s
}

// Register issues a fresh code for publicKey.
func (s *Store) Register(publicKey string) (domain.PairingCode, error) {
	if _, err := crypto.DecodePublicKey(publicKey); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		if d, ok := s.devices[code]; ok && now.Before(d.expires) {
			continue
		}
		s.devices[code] = &device{publicKey: publicKey, expires: now.Add(s.ttl)}
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// PublicKey returns the public key registered for code.
func (s *Store) PublicKey(code domain.PairingCode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.liveLocked(code)
	if err != nil {
		return "", err
	}
	return d.publicKey, nil
}

// Claim attaches encPayload to code.
func (s *Store) Claim(code domain.PairingCode, encPayload string) error {
	if encPayload == "" {
		return ErrEmptyPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.liveLocked(code)
	if err != nil {
		return err
	}
	if d.castData != "" {
		return ErrAlreadyClaimed
	}
	d.castData = encPayload
	return nil
}

// Take returns the payload claimed for code, or "" when nothing has been
// claimed yet. A returned payload is removed along with its code.
func (s *Store) Take(code domain.PairingCode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.liveLocked(code)
	if err != nil {
		return "", err
	}
	if d.castData == "" {
		return "", nil
	}
	delete(s.devices, code)
	return d.castData, nil
}

// Sweep removes expired codes and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	n := 0
	for code, d := range s.devices {
		if !now.Before(d.expires) {
			delete(s.devices, code)
			n++
		}
	}
	return n
}

// Len returns the number of stored codes, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

func (s *Store) liveLocked(code domain.PairingCode) (*device, error) {
	d, ok := s.devices[code]
	if !ok {
		return nil, ErrUnknownCode
	}
	if !s.clock.Now().Before(d.expires) {
		delete(s.devices, code)
		return nil, ErrCodeExpired
	}
	return d, nil
}

func (s *Store) newCode() (domain.PairingCode, error) {
	var buf [CodeLength]byte
	if _, err := io.ReadFull(s.rand, buf[:]); err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return domain.PairingCode(buf[:]), nil
}
