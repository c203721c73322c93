package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Banz520/CNCETI/pkg/ch376"
	"github.com/Banz520/CNCETI/pkg/config"
	"github.com/Banz520/CNCETI/pkg/serial"
	"github.com/Banz520/CNCETI/pkg/storage"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the storage devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			checkDisk(out, machine)
			checkMassStorage(out, machine)
			return nil
		},
	}
}

func checkDisk(w io.Writer, m *config.MachineConfig) {
	if m.Storage.DiskRoot == "" {
		fmt.Fprintln(w, "disk          not configured")
		return
	}
	if storage.NewDisk(m.Storage.DiskRoot).Ready() {
		fmt.Fprintf(w, "disk          ready (%s)\n", m.Storage.DiskRoot)
	} else {
		fmt.Fprintf(w, "disk          not accessible (%s)\n", m.Storage.DiskRoot)
	}
}

func checkMassStorage(w io.Writer, m *config.MachineConfig) {
	if ports, err := serial.ListPorts(); err == nil && len(ports) > 0 {
		fmt.Fprintf(w, "serial ports  %v\n", ports)
	}
	if m.Storage.MassStorageDevice == "" {
		fmt.Fprintln(w, "mass storage  not configured")
		return
	}
	dev, err := serial.ResolveDevice(m.Storage.MassStorageDevice)
	if err != nil {
		fmt.Fprintf(w, "mass storage  %v\n", err)
		return
	}
	if !serial.IsDeviceAvailable(dev) {
		fmt.Fprintf(w, "mass storage  %s is not an available serial device\n", dev)
		return
	}
	cfg := serialConfig(m)
	cfg.Device = dev
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(w, "mass storage  cannot open %s: %v\n", dev, err)
		return
	}
	defer port.Close()

	chip := ch376.New(port, ch376.WithTimeout(m.Storage.ChipTimeout))
	if !chip.Ping() {
		fmt.Fprintf(w, "mass storage  chip not responding on %s @ %d\n", dev, cfg.BaudRate)
		return
	}
	if err := chip.Mount(); err != nil {
		fmt.Fprintf(w, "mass storage  chip ok, no drive mounted: %v\n", err)
		return
	}
	files := 0
	chip.List("/", func(e ch376.Entry) bool {
		if !e.IsDir() {
			files++
		}
		return true
	})
	fmt.Fprintf(w, "mass storage  ready (%s, %d files in /)\n", dev, files)
}
