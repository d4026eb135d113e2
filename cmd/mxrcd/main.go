package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/ethercat"
	"github.com/5rbit/mxrc/pkg/events"
	"github.com/5rbit/mxrc/pkg/executive"
	"github.com/5rbit/mxrc/pkg/log"
	"github.com/5rbit/mxrc/pkg/metrics"
	"github.com/5rbit/mxrc/pkg/shm"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mxrcd",
	Short: "MXRC real-time motion control daemon",
	Long: `mxrcd is the real-time half of the MXRC motion-control framework.

It owns the shared-memory region, drives the EtherCAT fieldbus on a fixed
cyclic schedule under SCHED_FIFO, and exposes robot state to Non-RT
collaborators through the lock-free data store.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mxrcd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the RT process",
	Long: `Run the cyclic RT loop.

The shared-memory region is created before the loop starts and unlinked on
shutdown. systemd is notified READY once the region is initialised, which
is the signal Non-RT processes wait for before opening it.`,
	RunE: runRT,
}

func init() {
	runCmd.Flags().String("config", "", "EtherCAT slave configuration file (YAML)")
	runCmd.Flags().String("shm-name", "/mxrc_shm", "POSIX shared memory name")
	runCmd.Flags().Uint32("minor-cycle-us", 1000, "Minor cycle period in microseconds")
	runCmd.Flags().Uint32("major-multiple", 10, "Major cycle as a multiple of the minor cycle")
	runCmd.Flags().Int("priority", 80, "SCHED_FIFO priority (1-99)")
	runCmd.Flags().Int("cpu", -1, "CPU core to pin the RT thread to (-1 = no pinning)")
	runCmd.Flags().Bool("no-rt-setup", false, "Skip SCHED_FIFO/affinity/mlockall (unprivileged runs)")
	runCmd.Flags().String("metrics-addr", "", "Prometheus listen address (empty = disabled)")
	runCmd.Flags().Int("domain-size", 0, "Override PDO domain size in bytes")
	runCmd.Flags().Float64("encoder-scale", 0.001, "Encoder counts to physical units")
}

func runRT(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	shmName, _ := cmd.Flags().GetString("shm-name")
	minorUS, _ := cmd.Flags().GetUint32("minor-cycle-us")
	majorMult, _ := cmd.Flags().GetUint32("major-multiple")
	priority, _ := cmd.Flags().GetInt("priority")
	cpu, _ := cmd.Flags().GetInt("cpu")
	noRTSetup, _ := cmd.Flags().GetBool("no-rt-setup")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	domainSize, _ := cmd.Flags().GetInt("domain-size")
	encoderScale, _ := cmd.Flags().GetFloat64("encoder-scale")

	logger := log.WithComponent("mxrcd")

	cfg := &ethercat.Config{}
	if configPath != "" {
		var err error
		cfg, err = ethercat.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Master.CycleTimeNS != 0 {
			minorUS = cfg.Master.CycleTimeNS / 1000
		}
		if cfg.Master.Priority != 0 {
			priority = cfg.Master.Priority
		}
		if cfg.Master.CPUAffinity != 0 {
			cpu = cfg.Master.CPUAffinity
		}
	}

	// Shared memory first: everything else hangs off it.
	region, err := shm.Create(shmName, datastore.SharedSize)
	if err != nil {
		return fmt.Errorf("create shared memory: %w", err)
	}
	defer func() {
		region.Close()
		shm.Unlink(shmName)
	}()

	shared, err := datastore.AttachShared(region.Payload())
	if err != nil {
		return fmt.Errorf("attach data store: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	exec := executive.New(executive.Config{
		MinorCycleUS:       minorUS,
		MajorCycleMultiple: majorMult,
		Priority:           priority,
		CPU:                cpu,
		SkipRTSetup:        noRTSetup,
	}, shared, broker)

	master := ethercat.NewSimulatedMaster(resolveDomainSize(cfg, domainSize))
	cycle := ethercat.NewCycle(master, cfg, exec.Machine(), broker)

	if err := wireDevices(cycle, cfg, encoderScale); err != nil {
		return fmt.Errorf("wire devices: %w", err)
	}

	if err := master.Initialize(); err != nil {
		return fmt.Errorf("initialize master: %w", err)
	}
	if err := master.Activate(); err != nil {
		return fmt.Errorf("activate master: %w", err)
	}

	err = exec.RegisterAction("ethercat_cycle", minorUS, true, func(ctx *executive.Context) error {
		if ctx.SafeMode {
			cycle.ExecuteSafe(ctx.Store)
		} else {
			cycle.Execute(ctx.Store)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The region is live: tell systemd so Non-RT units can start opening.
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("systemd notification failed")
	} else if sent {
		logger.Info().Msg("systemd notified: RT shared memory ready")
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- exec.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().
		Str("shm", shmName).
		Uint32("minor_cycle_us", minorUS).
		Msg("RT process running")

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		exec.RequestStop()
		err = <-runDone
	case err = <-runDone:
	}

	if derr := master.Deactivate(); derr != nil && err == nil {
		err = derr
	}
	logger.Info().Msg("RT process stopped")
	return err
}

// resolveDomainSize sizes the simulated PDO domain to cover every
// configured mapping.
func resolveDomainSize(cfg *ethercat.Config, override int) int {
	if override > 0 {
		return override
	}
	size := 256
	for _, slave := range cfg.Slaves {
		for _, m := range slave.Mappings {
			if end := int(m.Offset) + m.DataType.ByteLen(); end > size {
				size = end
			}
		}
	}
	return size
}

// wireDevices registers configured slaves with the cycle driver using the
// reserved key bands: sensor slot i reads into the sensor band, motor slot
// j commands from its block in the command band.
func wireDevices(cycle *ethercat.Cycle, cfg *ethercat.Config, encoderScale float64) error {
	sensorSlot, motorSlot := 0, 0
	for _, slave := range cfg.Slaves {
		switch slave.DeviceType {
		case ethercat.DeviceSensor:
			posKey, velKey := datastore.SensorKeys(sensorSlot)
			if err := cycle.RegisterPositionSensor(slave.Position, posKey, velKey, encoderScale); err != nil {
				return err
			}
			sensorSlot++
		case ethercat.DeviceMotor:
			mode, enable, position, velocity, torque := datastore.MotorKeys(motorSlot)
			_, isServo := servoMapping(slave)
			if isServo {
				if err := cycle.RegisterServoMotor(slave.Position, position, velocity, torque, mode, enable,
					ethercat.ServoLinearRange, ethercat.BLDCMaxTorqueNm); err != nil {
					return err
				}
			} else {
				if err := cycle.RegisterBLDCMotor(slave.Position, velocity, torque, mode, enable); err != nil {
					return err
				}
			}
			motorSlot++
		}
	}
	return nil
}

// servoMapping reports whether the slave maps the servo command PDO.
func servoMapping(slave ethercat.Slave) (ethercat.PDOMapping, bool) {
	for _, m := range slave.Mappings {
		if m.Direction == ethercat.DirOutput && m.Index == ethercat.IdxServoCommand {
			return m, true
		}
	}
	return ethercat.PDOMapping{}, false
}
