package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cerrors "github.com/Banz520/CNCETI/pkg/errors"
	"github.com/Banz520/CNCETI/pkg/program"
)

var lsDevice string

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List program files",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPrograms,
	}
	cmd.Flags().StringVarP(&lsDevice, "device", "d", "", "Storage device to list (disk or usb; default: first available)")
	return cmd
}

func listPrograms(cmd *cobra.Command, args []string) error {
	device, ok := program.ParseDevice(lsDevice)
	if !ok {
		return fmt.Errorf("unknown device %q (want disk or usb)", lsDevice)
	}
	dir := machine.Storage.ScanPath
	if len(args) == 1 {
		dir = args[0]
	}

	c := newCore(machine)
	defer c.close()
	src := c.source

	if device == program.DeviceNone {
		if !src.Initialize() {
			return cerrors.StorageUnavailableError("any", "no storage device responded")
		}
		device = src.ActiveDevice()
	} else if !src.SelectDevice(device) {
		return cerrors.StorageUnavailableError(device.String(), "device not responding")
	}

	out := cmd.OutOrStdout()
	if !src.Scan(dir) {
		fmt.Fprintf(out, "%s:%s: no program files\n", device, dir)
		return nil
	}
	fmt.Fprintf(out, "%s:%s\n", device, dir)
	for i, name := range src.Names() {
		fmt.Fprintf(out, "%3d  %s\n", i, name)
	}
	return nil
}
