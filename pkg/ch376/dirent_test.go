package ch376

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDirEntry(t *testing.T) {
	raw := make([]byte, 32)
	copy(raw, "PART1   GCO")
	raw[11] = AttrArchive
	raw[28] = 0x10
	raw[29] = 0x02

	e, ok := parseDirEntry(raw)
	assert.True(t, ok)
	assert.Equal(t, "PART1.GCO", e.Name)
	assert.Equal(t, uint32(0x0210), e.Size)
	assert.False(t, e.IsDir())
}

func TestParseDirEntrySkips(t *testing.T) {
	deleted := make([]byte, 32)
	copy(deleted, "\xE5ART1   GCO")
	_, ok := parseDirEntry(deleted)
	assert.False(t, ok, "deleted entry")

	lfn := make([]byte, 32)
	copy(lfn, "APART1  GCO")
	lfn[11] = AttrLongName
	_, ok = parseDirEntry(lfn)
	assert.False(t, ok, "long name fragment")

	label := make([]byte, 32)
	copy(label, "USBDISK    ")
	label[11] = AttrVolumeID
	_, ok = parseDirEntry(label)
	assert.False(t, ok, "volume label")

	_, ok = parseDirEntry(make([]byte, 16))
	assert.False(t, ok, "short buffer")
}

func TestParseDirEntryNoExtension(t *testing.T) {
	raw := make([]byte, 32)
	copy(raw, "JOBS       ")
	raw[11] = AttrDirectory
	e, ok := parseDirEntry(raw)
	assert.True(t, ok)
	assert.Equal(t, "JOBS", e.Name)
	assert.True(t, e.IsDir())
}

func TestSplitPath(t *testing.T) {
	assert.Empty(t, splitPath("/"))
	assert.Equal(t, []string{"JOBS", "A.GC"}, splitPath("/JOBS//A.GC"))
}
