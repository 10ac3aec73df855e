package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

// TestSnapshotRoundTripAndCorruptionRejection is the end-to-end scenario:
// a 256-byte region initialized to i -> i mod 256 is saved, the live buffer
// is zeroed, and Restore must bring every byte back exactly. A
// corrupted-magic file must be rejected without touching the zeroed buffer.
func TestSnapshotRoundTripAndCorruptionRejection(t *testing.T) {
	region := make([]byte, 256)
	for i := range region {
		region[i] = byte(i % 256)
	}
	path := filepath.Join(t.TempDir(), "region.snap")

	save := NewDescriptor()
	if !save.AddRegion(Region{Base: region, Name: "memory"}) {
		t.Fatal("AddRegion rejected a valid 256-byte region")
	}
	if err := save.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for i := range region {
		region[i] = 0
	}

	restore := NewDescriptor()
	if !restore.AddRegion(Region{Base: region, Name: "memory"}) {
		t.Fatal("AddRegion rejected the zeroed restore target")
	}
	if err := restore.Restore(path); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	for i := range region {
		if region[i] != byte(i%256) {
			t.Fatalf("region[%d] = %d, want %d after restore", i, region[i], byte(i%256))
		}
	}

	for i := range region {
		region[i] = 0
	}
	corrupt := filepath.Join(t.TempDir(), "corrupt.snap")
	if err := os.WriteFile(corrupt, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0}, 0644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	badMagic := NewDescriptor()
	if !badMagic.AddRegion(Region{Base: region, Name: "memory"}) {
		t.Fatal("AddRegion rejected the zeroed restore target")
	}
	if err := badMagic.Restore(corrupt); err == nil {
		t.Fatal("Restore() should reject a file with a bad magic number")
	}
	for i := range region {
		if region[i] != 0 {
			t.Fatalf("region[%d] = %d, want 0: a rejected restore must not touch the buffer", i, region[i])
		}
	}
}
