package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Banz520/CNCETI/pkg/app"
	cerrors "github.com/Banz520/CNCETI/pkg/errors"
	"github.com/Banz520/CNCETI/pkg/log"
	"github.com/Banz520/CNCETI/pkg/metrics"
	"github.com/Banz520/CNCETI/pkg/motion"
	"github.com/Banz520/CNCETI/pkg/panel"
	"github.com/Banz520/CNCETI/pkg/program"
	"github.com/Banz520/CNCETI/pkg/reactor"
)

var (
	runProgram  string
	runDevice   string
	runHeadless bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop",
		Long: `Run the control loop. By default the front panel is shown on the
terminal. With --headless the named program is executed to completion
and a summary is printed.`,
		Args: cobra.NoArgs,
		RunE: runControl,
	}
	cmd.Flags().StringVarP(&runProgram, "program", "p", "", "Program file to execute (required with --headless)")
	cmd.Flags().StringVarP(&runDevice, "device", "d", "", "Storage device holding the program (disk or usb)")
	cmd.Flags().BoolVar(&runHeadless, "headless", false, "Execute --program without the front panel")
	return cmd
}

func runControl(cmd *cobra.Command, args []string) error {
	if runHeadless && runProgram == "" {
		return fmt.Errorf("--headless requires --program")
	}
	device, ok := program.ParseDevice(runDevice)
	if !ok {
		return fmt.Errorf("unknown device %q (want disk or usb)", runDevice)
	}
	logger := log.GetLogger("main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newCore(machine)
	defer c.close()

	var coreMetrics *metrics.CoreMetrics
	if metricsAddr != "" {
		coreMetrics = metrics.NewCoreMetrics()
		srv := metrics.NewServer(coreMetrics, metricsAddr)
		errCh := srv.StartAsync()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		logger.Info("metrics on %s", metricsAddr)
	}

	opts := app.Options{
		Machine:  machine,
		ScanPath: machine.Storage.ScanPath,
		Metrics:  coreMetrics,
	}
	var front *panel.Panel
	if !runHeadless {
		front = panel.New()
		opts.Keypad = front
		opts.Display = front
		if logFile == "" {
			// The terminal belongs to the panel.
			log.Default().SetWriter(io.Discard)
		}
	}

	ctrl := app.New(c.source, c.motion, opts)
	if !ctrl.Start() && runHeadless {
		return cerrors.StorageUnavailableError("any", "no storage device responded")
	}

	if runProgram != "" {
		if device == program.DeviceNone {
			device = c.source.ActiveDevice()
		}
		if !ctrl.OpenProgram(device, runProgram) {
			if runHeadless {
				return cerrors.StorageNotFoundError(device.String(), runProgram)
			}
			logger.Warn("could not open %s on %s", runProgram, device)
		}
	}

	r := reactor.New()
	var loopErr error
	loopInterval := machine.Controller.LoopInterval
	r.RegisterTimer("control", func(now time.Duration) (next time.Duration) {
		defer func() {
			if err := cerrors.RecoverPanic(recover()); err != nil {
				logger.WithError(err).Error("control loop failed")
				ctrl.EmergencyStop()
				loopErr = err
				r.End()
				next = reactor.NEVER
			}
		}()
		ctrl.Update(now)
		if runHeadless && ctrl.Finished() {
			r.End()
		}
		return now + loopInterval
	}, reactor.NOW)

	checkInterval := machine.Controller.DeviceCheckInterval
	if checkInterval > 0 {
		r.RegisterTimer("devices", func(now time.Duration) time.Duration {
			ctrl.CheckDevices()
			return now + checkInterval
		}, checkInterval)
	}

	if front != nil {
		go func() {
			if err := front.Run(ctx); err != nil {
				logger.WithError(err).Error("panel stopped")
			}
			r.End()
		}()
	}

	start := time.Now()
	err := r.Run(ctx)
	if c.motion.IsBusy() {
		ctrl.EmergencyStop()
	}
	if front != nil {
		stop()
		<-front.Done()
	}
	if loopErr != nil {
		return loopErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if runHeadless {
		printSummary(cmd.OutOrStdout(), ctrl, c.motion, time.Since(start))
		if ctrl.RunState() != app.RunComplete {
			return fmt.Errorf("program %s did not complete (%s)", runProgram, ctrl.RunState())
		}
	}
	return nil
}

func printSummary(w io.Writer, ctrl *app.Controller, m *motion.Controller, elapsed time.Duration) {
	pos := m.Position()
	fmt.Fprintf(w, "program  %s\n", runProgram)
	fmt.Fprintf(w, "state    %s\n", ctrl.RunState())
	fmt.Fprintf(w, "mode     %s\n", ctrl.Mode())
	fmt.Fprintf(w, "elapsed  %v\n", elapsed.Round(time.Millisecond))
	for i := 0; i < motion.NumAxes; i++ {
		a := m.Axis(i)
		fmt.Fprintf(w, "axis %s   %10.3f  (%d steps)\n", a.Name, pos[i], m.TotalSteps(i))
	}
}
