package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Banz520/CNCETI/pkg/config"
)

// withDisk points the machine at a temporary disk root holding files.
func withDisk(t *testing.T, files map[string]string) {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0644))
	}
	machine = config.DefaultMachine()
	machine.Storage.DiskRoot = root
	t.Cleanup(func() { machine = nil })
}

func testCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func TestListPrograms(t *testing.T) {
	withDisk(t, map[string]string{
		"part.gcode": "G0 X1\n",
		"notes.txt":  "hello\n",
		"FACE.GC":    "G0 Y1\n",
	})
	lsDevice = "disk"
	t.Cleanup(func() { lsDevice = "" })

	var out bytes.Buffer
	require.NoError(t, listPrograms(testCommand(&out), nil))
	assert.Contains(t, out.String(), "part.gcode")
	assert.Contains(t, out.String(), "FACE.GC")
	assert.NotContains(t, out.String(), "notes.txt")
}

func TestListProgramsUnknownDevice(t *testing.T) {
	withDisk(t, nil)
	lsDevice = "floppy"
	t.Cleanup(func() { lsDevice = "" })

	var out bytes.Buffer
	assert.Error(t, listPrograms(testCommand(&out), nil))
}

func TestListProgramsNoDevice(t *testing.T) {
	machine = config.DefaultMachine()
	t.Cleanup(func() { machine = nil })
	lsDevice = ""

	var out bytes.Buffer
	assert.Error(t, listPrograms(testCommand(&out), nil))
}

func TestRunHeadless(t *testing.T) {
	withDisk(t, map[string]string{
		"part.gcode": "; test part\nG90\nG1 X1 F6000\nG0 Y0.5\nG99 X3\n",
	})
	runProgram, runDevice, runHeadless = "part.gcode", "disk", true
	t.Cleanup(func() { runProgram, runDevice, runHeadless = "", "", false })

	var out bytes.Buffer
	require.NoError(t, runControl(testCommand(&out), nil))
	s := out.String()
	assert.Contains(t, s, "state    complete")
	assert.Contains(t, s, "mode     ABS")
	assert.Contains(t, s, "(80 steps)")
	assert.Contains(t, s, "(40 steps)")
}

func TestRunHeadlessNeedsProgram(t *testing.T) {
	withDisk(t, nil)
	runHeadless = true
	t.Cleanup(func() { runHeadless = false })

	var out bytes.Buffer
	assert.Error(t, runControl(testCommand(&out), nil))
}

func TestRunHeadlessMissingProgram(t *testing.T) {
	withDisk(t, map[string]string{"part.gcode": "G0 X1\n"})
	runProgram, runDevice, runHeadless = "other.gcode", "disk", true
	t.Cleanup(func() { runProgram, runDevice, runHeadless = "", "", false })

	var out bytes.Buffer
	assert.Error(t, runControl(testCommand(&out), nil))
}

func TestCheckReportsDisk(t *testing.T) {
	withDisk(t, nil)
	var out bytes.Buffer
	checkDisk(&out, machine)
	checkMassStorage(&out, machine)
	assert.Contains(t, out.String(), "disk          ready")
	assert.Contains(t, out.String(), "mass storage  not configured")
}
