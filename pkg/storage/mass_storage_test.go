package storage

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Banz520/CNCETI/pkg/ch376"
	"github.com/Banz520/CNCETI/pkg/ch376/ch376test"
	cerrors "github.com/Banz520/CNCETI/pkg/errors"
)

func chipDialer(chip *ch376test.Chip, dials *int) Dialer {
	return func() (io.ReadWriteCloser, error) {
		*dials++
		return chip, nil
	}
}

func newMass(chip *ch376test.Chip, dials *int) *MassStorage {
	return NewMassStorage(chipDialer(chip, dials),
		ch376.WithTimeout(20*time.Millisecond),
		ch376.WithPingBackoff(0))
}

func TestMassStorageReadyMountsOnce(t *testing.T) {
	chip := ch376test.New(map[string]string{"PART1.GCO": "G1 X1\n"})
	var dials int
	m := newMass(chip, &dials)

	require.True(t, m.Ready())
	require.True(t, m.Ready())
	assert.Equal(t, 1, dials)
	assert.Equal(t, 1, chip.Count(ch376.CmdDiskMount))
}

func TestMassStorageDialFailure(t *testing.T) {
	m := NewMassStorage(func() (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	})
	assert.False(t, m.Ready())
	err := m.List("/", func(string) bool { return true })
	assert.True(t, cerrors.Is(err, cerrors.ErrStorageUnavailable))
}

func TestMassStorageAbsentChipDisconnects(t *testing.T) {
	chip := ch376test.New(nil)
	chip.Absent = true
	var dials int
	m := newMass(chip, &dials)
	assert.False(t, m.Ready())
	assert.True(t, chip.Closed())

	assert.False(t, m.Ready())
	assert.Equal(t, 2, dials)
}

func TestMassStorageDriveRemoved(t *testing.T) {
	chip := ch376test.New(nil)
	var dials int
	m := newMass(chip, &dials)
	require.True(t, m.Ready())

	chip.Unplugged = true
	assert.False(t, m.Ready())
	assert.False(t, m.Ready())

	chip.Unplugged = false
	assert.True(t, m.Ready())
}

func TestMassStorageListAndRead(t *testing.T) {
	chip := ch376test.New(map[string]string{
		"PART1.GCO":     "G1 X10 F500\n",
		"JOBS/PART2.GC": "G0\n",
	})
	var dials int
	m := newMass(chip, &dials)
	require.True(t, m.Ready())
	assert.False(t, m.LineOriented())

	assert.Equal(t, []string{"PART1.GCO"}, listAll(t, m, "/"))

	require.NoError(t, m.Open("/PART1.GCO"))
	assert.Equal(t, int64(12), m.Size())

	buf := make([]byte, 8)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, int64(8), m.Position())

	require.NoError(t, m.Rewind())
	assert.Equal(t, int64(0), m.Position())
	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "G1 X10 F", string(buf[:n]))

	require.NoError(t, m.Close())
	assert.Equal(t, int64(0), m.Size())
	require.NoError(t, m.Close())
}

func TestMassStorageReadyDoesNotProbeWhileOpen(t *testing.T) {
	chip := ch376test.New(map[string]string{"A.GC": "G0\n"})
	var dials int
	m := newMass(chip, &dials)
	require.True(t, m.Ready())
	require.NoError(t, m.Open("A.GC"))

	pings := chip.Count(ch376.CmdCheckExist)
	assert.True(t, m.Ready())
	assert.Equal(t, pings, chip.Count(ch376.CmdCheckExist))
}

func TestMassStorageOpenMissing(t *testing.T) {
	chip := ch376test.New(nil)
	var dials int
	m := newMass(chip, &dials)
	require.True(t, m.Ready())
	assert.True(t, cerrors.Is(m.Open("NONE.GC"), cerrors.ErrStorageNotFound))
}
