// Package bond persists bonded hosts in an emulated flash region: a fixed
// size memory-mapped file with one sealed record per host slot.
package bond

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// File layout:
//
//	header (32 bytes): magic | version | slots | active | counter(8) | ... | crc
//	slot   (128 bytes): state | - | sealed len(2) | nonce(12) | sealed record
const (
	magic        uint32 = 0x4442_4B42 // "BKBD"
	version      uint32 = 1
	headerSize          = 32
	slotSize            = 128
	slotDataOff         = 4 + nonceSize
	maxSealedLen        = slotSize - slotDataOff

	// MaxPeerLen bounds the stored peer address.
	MaxPeerLen = 64
	// MaxSlots bounds the number of host slots.
	MaxSlots = 8

	// Erased flash reads as 0xFF.
	slotErased byte = 0xFF
	slotValid  byte = 0x5A

	fileMode = 0o600
)

// Errors returned by the store.
var (
	ErrNotFound = errors.New("bond: record not found")
	ErrBadSlot  = errors.New("bond: slot out of range")
	ErrCorrupt  = errors.New("bond: store is corrupt")
	ErrClosed   = errors.New("bond: store is closed")
)

// Record is one bonded host.
type Record struct {
	Slot int
	Peer string
	// Durable is set when the peer has a stable identity address, which
	// allows directed reconnection.
	Durable bool
	// Counter orders records by last use; the store assigns it.
	Counter uint64
}

// AnySlot matches records in every slot.
const AnySlot = -1

// Criteria selects records for Load. An empty Peer matches any peer.
type Criteria struct {
	Slot int
	Peer string
}

// BySlot selects the record of one slot.
func BySlot(slot int) Criteria { return Criteria{Slot: slot} }

// ByPeer selects the record of a peer in any slot.
func ByPeer(peer string) Criteria { return Criteria{Slot: AnySlot, Peer: peer} }

func (c Criteria) match(r Record) bool {
	if c.Slot != AnySlot && c.Slot != r.Slot {
		return false
	}
	return c.Peer == "" || c.Peer == r.Peer
}

// Store is a slot-per-host bond store. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	fd     *os.File
	data   mmap.MMap
	slots  int
	aead   cipher.AEAD
	closed bool
}

// Open maps the store at path, creating and formatting it when missing.
// secret keys the record encryption; opening with another secret makes
// every record unreadable.
func Open(path string, slots int, secret []byte) (*Store, error) {
	if slots <= 0 || slots > MaxSlots {
		return nil, fmt.Errorf("%w: %d slots", ErrBadSlot, slots)
	}
	if len(secret) == 0 {
		return nil, errors.New("bond: empty secret")
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bond: creating directory: %w", err)
	}
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, fileMode)
	if err != nil {
		return nil, fmt.Errorf("bond: opening %s: %w", path, err)
	}
	size := int64(headerSize + slots*slotSize)
	if isNew {
		if err := fd.Truncate(size); err != nil {
			fd.Close()
			return nil, fmt.Errorf("bond: sizing %s: %w", path, err)
		}
	}
	data, err := mmap.Map(fd, mmap.RDWR, 0)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("bond: mapping %s: %w", path, err)
	}

	s := &Store{path: path, fd: fd, data: data, slots: slots, aead: aead}
	if isNew {
		s.format()
		slog.Info("[BOND] created store", "path", path, "slots", slots)
		return s, nil
	}
	if err := s.checkHeader(); err != nil {
		s.unmap()
		return nil, err
	}
	return s, nil
}

func (s *Store) format() {
	for i := range s.data {
		s.data[i] = slotErased
	}
	h := s.data[:headerSize]
	for i := range h {
		h[i] = 0
	}
	binary.LittleEndian.PutUint32(h[0:4], magic)
	binary.LittleEndian.PutUint32(h[4:8], version)
	binary.LittleEndian.PutUint32(h[8:12], uint32(s.slots))
	s.writeHeaderCRC()
}

func (s *Store) writeHeaderCRC() {
	h := s.data[:headerSize]
	binary.LittleEndian.PutUint32(h[28:32], crc32.ChecksumIEEE(h[:28]))
}

func (s *Store) checkHeader() error {
	if len(s.data) < headerSize {
		return fmt.Errorf("%w: short file", ErrCorrupt)
	}
	h := s.data[:headerSize]
	if crc32.ChecksumIEEE(h[:28]) != binary.LittleEndian.Uint32(h[28:32]) {
		return fmt.Errorf("%w: header checksum mismatch", ErrCorrupt)
	}
	if binary.LittleEndian.Uint32(h[0:4]) != magic {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(h[4:8]); v != version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	if n := int(binary.LittleEndian.Uint32(h[8:12])); n != s.slots {
		return fmt.Errorf("%w: store has %d slots, want %d", ErrCorrupt, n, s.slots)
	}
	if len(s.data) < headerSize+s.slots*slotSize {
		return fmt.Errorf("%w: short file", ErrCorrupt)
	}
	return nil
}

// Slots returns the number of host slots.
func (s *Store) Slots() int { return s.slots }

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) slot(i int) []byte {
	off := headerSize + i*slotSize
	return s.data[off : off+slotSize]
}

func slotAD(i int) []byte { return []byte{byte(i)} }

func encodeRecord(r Record) []byte {
	buf := make([]byte, 0, 10+len(r.Peer))
	var flags byte
	if r.Durable {
		flags |= 1
	}
	buf = append(buf, flags)
	buf = binary.LittleEndian.AppendUint64(buf, r.Counter)
	buf = append(buf, byte(len(r.Peer)))
	return append(buf, r.Peer...)
}

func decodeRecord(slot int, b []byte) (Record, error) {
	if len(b) < 10 || len(b) != 10+int(b[9]) {
		return Record{}, fmt.Errorf("%w: slot %d record length", ErrCorrupt, slot)
	}
	return Record{
		Slot:    slot,
		Durable: b[0]&1 != 0,
		Counter: binary.LittleEndian.Uint64(b[1:9]),
		Peer:    string(b[10:]),
	}, nil
}

// readLocked returns the record in slot i, or ErrNotFound when erased.
func (s *Store) readLocked(i int) (Record, error) {
	sl := s.slot(i)
	if sl[0] != slotValid {
		return Record{}, ErrNotFound
	}
	n := int(binary.LittleEndian.Uint16(sl[2:4]))
	if n > maxSealedLen {
		return Record{}, fmt.Errorf("%w: slot %d sealed length %d", ErrCorrupt, i, n)
	}
	plain, err := open(s.aead, sl[4:slotDataOff], sl[slotDataOff:slotDataOff+n], slotAD(i))
	if err != nil {
		return Record{}, fmt.Errorf("%w: slot %d: %w", ErrCorrupt, i, err)
	}
	return decodeRecord(i, plain)
}

// Load returns the most recently used record matching c.
func (s *Store) Load(c Criteria) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	if c.Slot != AnySlot && (c.Slot < 0 || c.Slot >= s.slots) {
		return Record{}, fmt.Errorf("%w: %d", ErrBadSlot, c.Slot)
	}

	var best Record
	found := false
	for i := 0; i < s.slots; i++ {
		if c.Slot != AnySlot && c.Slot != i {
			continue
		}
		r, err := s.readLocked(i)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		if c.match(r) && (!found || r.Counter > best.Counter) {
			best, found = r, true
		}
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return best, nil
}

// List returns every readable record in slot order. Unreadable slots are
// logged and skipped.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []Record
	for i := 0; i < s.slots; i++ {
		r, err := s.readLocked(i)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Warn("[BOND] skipping unreadable slot", "slot", i, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Store writes r into r.Slot, replacing what was there, and stamps it with
// the next use counter.
func (s *Store) Store(r Record) error {
	if len(r.Peer) == 0 || len(r.Peer) > MaxPeerLen {
		return fmt.Errorf("bond: peer address must be 1..%d bytes, got %d", MaxPeerLen, len(r.Peer))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if r.Slot < 0 || r.Slot >= s.slots {
		return fmt.Errorf("%w: %d", ErrBadSlot, r.Slot)
	}

	h := s.data[:headerSize]
	counter := binary.LittleEndian.Uint64(h[16:24]) + 1
	r.Counter = counter

	nonce, sealed, err := seal(s.aead, encodeRecord(r), slotAD(r.Slot))
	if err != nil {
		return err
	}
	sl := s.slot(r.Slot)
	for i := range sl {
		sl[i] = slotErased
	}
	binary.LittleEndian.PutUint16(sl[2:4], uint16(len(sealed)))
	copy(sl[4:slotDataOff], nonce)
	copy(sl[slotDataOff:], sealed)
	// Mark valid last so a torn write leaves the slot erased.
	sl[0] = slotValid

	binary.LittleEndian.PutUint64(h[16:24], counter)
	s.writeHeaderCRC()
	if err := s.data.Flush(); err != nil {
		return fmt.Errorf("bond: flushing store: %w", err)
	}
	slog.Debug("[BOND] stored host", "slot", r.Slot, "durable", r.Durable)
	return nil
}

// Clear erases one slot, or every slot for AnySlot.
func (s *Store) Clear(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if slot != AnySlot && (slot < 0 || slot >= s.slots) {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	for i := 0; i < s.slots; i++ {
		if slot == AnySlot || slot == i {
			sl := s.slot(i)
			for j := range sl {
				sl[j] = slotErased
			}
		}
	}
	if err := s.data.Flush(); err != nil {
		return fmt.Errorf("bond: flushing store: %w", err)
	}
	slog.Info("[BOND] cleared", "slot", slot)
	return nil
}

// ActiveSlot returns the persisted host slot selection.
func (s *Store) ActiveSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	a := int(binary.LittleEndian.Uint32(s.data[12:16]))
	if a >= s.slots {
		return 0
	}
	return a
}

// SetActiveSlot persists the host slot selection.
func (s *Store) SetActiveSlot(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if slot < 0 || slot >= s.slots {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	binary.LittleEndian.PutUint32(s.data[12:16], uint32(slot))
	s.writeHeaderCRC()
	if err := s.data.Flush(); err != nil {
		return fmt.Errorf("bond: flushing store: %w", err)
	}
	return nil
}

// Close flushes and unmaps the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.data.Flush(); err != nil {
		s.unmap()
		return fmt.Errorf("bond: flushing store: %w", err)
	}
	return s.unmap()
}

func (s *Store) unmap() error {
	err := s.data.Unmap()
	if cerr := s.fd.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("bond: closing store: %w", err)
	}
	return nil
}
