package main

import (
	"github.com/Banz520/CNCETI/pkg/ch376"
	"github.com/Banz520/CNCETI/pkg/config"
	"github.com/Banz520/CNCETI/pkg/log"
	"github.com/Banz520/CNCETI/pkg/motion"
	"github.com/Banz520/CNCETI/pkg/program"
	"github.com/Banz520/CNCETI/pkg/serial"
	"github.com/Banz520/CNCETI/pkg/storage"
)

// core is the assembled control core without its operator surface.
type core struct {
	source *program.Source
	motion *motion.Controller
	mass   *storage.MassStorage
}

func serialConfig(m *config.MachineConfig) serial.Config {
	cfg := serial.DefaultConfig()
	cfg.Device = m.Storage.MassStorageDevice
	cfg.BaudRate = m.Storage.MassStorageBaud
	cfg.ReadTimeout = m.Storage.ChipTimeout
	return cfg
}

// newCore builds the storage transports, program source and motion
// controller described by m. A transport with no configured location is
// left out.
func newCore(m *config.MachineConfig) *core {
	c := &core{}

	var disk, mass storage.Transport
	if m.Storage.DiskRoot != "" {
		disk = storage.NewDisk(m.Storage.DiskRoot)
	}
	if m.Storage.MassStorageDevice != "" {
		c.mass = storage.NewMassStorage(
			storage.SerialDialer(serialConfig(m)),
			ch376.WithTimeout(m.Storage.ChipTimeout),
		)
		mass = c.mass
	}
	c.source = program.New(program.Config{
		ChunkSize:  m.Storage.ChunkSize,
		LineBuffer: m.Storage.LineBuffer,
		MaxFiles:   m.Storage.MaxFiles,
	}, disk, mass)

	// The host has no GPIO; pin levels are logged at DEBUG.
	c.motion = motion.NewController(motion.FromMachine(m), motion.NewLogPins(log.GetLogger("pins")))
	return c
}

func (c *core) close() {
	c.source.Close()
	if c.mass != nil {
		c.mass.Disconnect()
	}
}
