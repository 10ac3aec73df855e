// Package snapshot implements SFPM's binary memory-image persistence: save
// and restore a caller-declared set of memory regions to a single
// magic-versioned file, independent of whatever rules or interpreter state
// those regions happen to represent.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// Magic identifies a valid snapshot file (the bytes "SFPM" read as a
	// big-endian u32). It is written little-endian, so a file's first four
	// bytes are "MPFS".
	Magic = uint32(0x5346504D)
	// Version is the only snapshot format version this package writes or
	// accepts.
	Version = uint32(1)
	// MaxRegions bounds how many regions a single Descriptor can hold.
	// Growth beyond this is a documented limit, not a format constraint
	// (the file format itself has no region-count ceiling).
	MaxRegions = 64
	// descriptionSize is the fixed, NUL-padded description field width.
	descriptionSize = 256
)

// Region describes one contiguous block of memory to save or restore.
// Base must be a live, appropriately-sized byte slice; restoring writes
// directly into it.
type Region struct {
	Base      []byte
	Name      string
	IsDynamic bool
}

// Metadata is the snapshot file's header, readable without loading any
// region payload (ReadMetadata).
type Metadata struct {
	Version     uint32
	Timestamp   uint64
	TotalSize   uint64
	NumRegions  uint32
	Description string
}

// Descriptor is a snapshot builder: an ordered list of regions plus a
// description, either being assembled for Save or pre-configured with
// matching-sized regions for Restore.
type Descriptor struct {
	regions     []Region
	description string
}

// NewDescriptor returns an empty snapshot builder with an
// auto-generated description carrying a fresh identity, so a caller that
// never calls SetDescription still gets a snapshot nameable in logs.
func NewDescriptor() *Descriptor {
	return &Descriptor{description: "sfpm-snapshot-" + uuid.NewString()}
}

// NewDescriptorForInterpreter is a convenience constructor that
// pre-registers a stack region and a heap region, mirroring the original
// source's sfpm_snapshot_create_for_interpreter helper. Either region is
// skipped when its slice is empty.
func NewDescriptorForInterpreter(stack, heap []byte) *Descriptor {
	d := NewDescriptor()
	if len(stack) > 0 {
		_ = d.AddRegion(Region{Base: stack, Name: "stack", IsDynamic: false})
	}
	if len(heap) > 0 {
		_ = d.AddRegion(Region{Base: heap, Name: "heap", IsDynamic: true})
	}
	return d
}

// AddRegion appends region to the descriptor in order. It rejects a nil or
// empty base, or exceeding MaxRegions, without mutating the descriptor.
func (d *Descriptor) AddRegion(region Region) bool {
	if len(region.Base) == 0 {
		return false
	}
	if len(d.regions) >= MaxRegions {
		return false
	}
	if region.Name == "" {
		region.Name = "unnamed"
	}
	d.regions = append(d.regions, region)
	return true
}

// Regions returns the descriptor's region list in insertion order.
func (d *Descriptor) Regions() []Region {
	return d.regions
}

// SetDescription truncates desc to 255 bytes (the on-disk field is 256
// bytes including a terminating NUL).
func (d *Descriptor) SetDescription(desc string) {
	if len(desc) > descriptionSize-1 {
		desc = desc[:descriptionSize-1]
	}
	d.description = desc
}

// Save writes every registered region, in insertion order, to path: magic,
// metadata header, then each region's size/flags/name/payload. A short
// write or an inability to open the file returns an error and leaves no
// assumption about partial file content; callers should treat any error as
// "no usable snapshot was produced".
func (d *Descriptor) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, Magic); err != nil {
		return fmt.Errorf("snapshot: write magic: %w", err)
	}

	var totalSize uint64
	for _, r := range d.regions {
		totalSize += uint64(len(r.Base))
	}

	if err := writeMetadata(w, Metadata{
		Version:     Version,
		Timestamp:   uint64(time.Now().Unix()),
		TotalSize:   totalSize,
		NumRegions:  uint32(len(d.regions)),
		Description: d.description,
	}); err != nil {
		return fmt.Errorf("snapshot: write metadata: %w", err)
	}

	for _, r := range d.regions {
		if err := writeRegion(w, r); err != nil {
			return fmt.Errorf("snapshot: write region %q: %w", r.Name, err)
		}
	}

	return w.Flush()
}

func writeMetadata(w io.Writer, m Metadata) error {
	fields := []any{m.Version, m.Timestamp, m.TotalSize, m.NumRegions}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	var descBuf [descriptionSize]byte
	copy(descBuf[:], m.Description)
	_, err := w.Write(descBuf[:])
	return err
}

func writeRegion(w io.Writer, r Region) error {
	size := uint64(len(r.Base))
	isDynamic := uint8(0)
	if r.IsDynamic {
		isDynamic = 1
	}
	nameLen := uint32(len(r.Name))

	if err := binary.Write(w, binary.LittleEndian, size); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, isDynamic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, nameLen); err != nil {
		return err
	}
	if nameLen > 0 {
		if _, err := w.Write([]byte(r.Name)); err != nil {
			return err
		}
	}
	_, err := w.Write(r.Base)
	return err
}

// ReadMetadata reads only the magic and metadata header from path, never
// touching region payloads. It returns an error if the file cannot be
// opened, lacks the magic, or is truncated before the header ends.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := checkMagic(r); err != nil {
		return Metadata{}, err
	}
	return readMetadata(r)
}

func checkMagic(r io.Reader) error {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return fmt.Errorf("snapshot: read magic: %w", err)
	}
	if magic != Magic {
		return errors.New("snapshot: bad magic")
	}
	return nil
}

func readMetadata(r io.Reader) (Metadata, error) {
	var m Metadata
	var version, numRegions uint32
	var timestamp, totalSize uint64

	for _, dst := range []any{&version, &timestamp, &totalSize, &numRegions} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return Metadata{}, fmt.Errorf("snapshot: read metadata: %w", err)
		}
	}

	var descBuf [descriptionSize]byte
	if _, err := io.ReadFull(r, descBuf[:]); err != nil {
		return Metadata{}, fmt.Errorf("snapshot: read description: %w", err)
	}

	m.Version = version
	m.Timestamp = timestamp
	m.TotalSize = totalSize
	m.NumRegions = numRegions
	m.Description = cString(descBuf[:])
	return m, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Restore loads every region from path into d's pre-configured regions, in
// order, without touching any later region's bytes on failure. It fails on
// a version mismatch, a region-count mismatch, or any single region's
// stored size disagreeing with the size of the Region already registered
// at that slot. A short read also aborts; bytes already written into
// earlier regions are left as-is, since recovering from a half-restored
// image is the caller's responsibility.
func (d *Descriptor) Restore(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := checkMagic(r); err != nil {
		return err
	}
	meta, err := readMetadata(r)
	if err != nil {
		return err
	}

	if meta.Version != Version {
		return fmt.Errorf("snapshot: version mismatch: want %d, got %d", Version, meta.Version)
	}
	if int(meta.NumRegions) != len(d.regions) {
		return fmt.Errorf("snapshot: region count mismatch: descriptor has %d, file has %d", len(d.regions), meta.NumRegions)
	}

	for i := 0; i < int(meta.NumRegions); i++ {
		if err := restoreRegion(r, &d.regions[i]); err != nil {
			return fmt.Errorf("snapshot: region %d: %w", i, err)
		}
	}

	return nil
}

func restoreRegion(r *bufio.Reader, dst *Region) error {
	var size uint64
	var isDynamic uint8
	var nameLen uint32

	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &isDynamic); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return err
	}
	if nameLen > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(nameLen)); err != nil {
			return err
		}
	}

	if size != uint64(len(dst.Base)) {
		return fmt.Errorf("size mismatch: want %d, got %d", len(dst.Base), size)
	}

	if _, err := io.ReadFull(r, dst.Base); err != nil {
		return err
	}
	return nil
}

// SaveDelta is declared but, as in the original source, not implemented:
// it always returns an error and never creates an output file. Restoring
// a self-describing chunk-level diff of same-sized regions would need a
// second format revision this package does not define.
func (d *Descriptor) SaveDelta(previousPath, outputPath string) error {
	return errors.New("snapshot: delta snapshots are not implemented")
}
