package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/events"
	"github.com/5rbit/mxrc/pkg/fsm"
	"github.com/5rbit/mxrc/pkg/log"
	"github.com/5rbit/mxrc/pkg/rtos"
	"github.com/5rbit/mxrc/pkg/shm"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mxrcctl",
	Short: "Inspect and drive a running MXRC RT process",
	Long: `mxrcctl is the Non-RT companion to mxrcd.

It opens the existing shared-memory region to read robot state, publish
commands into the command key band, and keep the Non-RT heartbeat fresh.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("shm-name", "/mxrc_shm", "POSIX shared memory name")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	cobra.OnInitialize(func() {
		logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
		log.Init(log.Config{Level: log.Level(logLevel)})
	})

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(heartbeatCmd)
}

// openShared maps the running RT process's region.
func openShared(cmd *cobra.Command) (*shm.Region, *datastore.Shared, error) {
	name, _ := rootCmd.PersistentFlags().GetString("shm-name")
	region, err := shm.Open(name, datastore.SharedSize)
	if err != nil {
		return nil, nil, fmt.Errorf("open shared memory (is mxrcd running?): %w", err)
	}
	shared, err := datastore.AttachShared(region.Payload())
	if err != nil {
		region.Close()
		return nil, nil, err
	}
	return region, shared, nil
}

func parseKey(arg string) (datastore.Key, error) {
	v, err := strconv.ParseUint(arg, 0, 16)
	if err != nil || !datastore.Key(v).Valid() {
		return 0, fmt.Errorf("invalid key %q (0..%d)", arg, datastore.MaxKeys-1)
	}
	return datastore.Key(v), nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show RT state and liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		region, shared, err := openShared(cmd)
		if err != nil {
			return err
		}
		defer region.Close()

		now := rtos.MonotonicNowNS()
		state := fsm.State(shared.RTStateCode())

		fmt.Printf("RT state:          %s\n", state)
		fmt.Printf("RT heartbeat age:  %s\n", heartbeatAge(now, shared.RTHeartbeatNS()))
		fmt.Printf("Non-RT heartbeat:  %s\n", heartbeatAge(now, shared.NonRTHeartbeatNS()))
		return nil
	},
}

func heartbeatAge(nowNS, hbNS uint64) string {
	if hbNS == 0 {
		return "never written"
	}
	if hbNS > nowNS {
		return "in the future"
	}
	return time.Duration(nowNS - hbNS).String()
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a data store key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		region, shared, err := openShared(cmd)
		if err != nil {
			return err
		}
		defer region.Close()

		store := shared.Store()
		switch t := store.TypeOf(key); t {
		case datastore.TypeInt32:
			v, err := store.GetInt32(key)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d\n", t, v)
		case datastore.TypeFloat32:
			v, err := store.GetFloat32(key)
			if err != nil {
				return err
			}
			fmt.Printf("%s %g\n", t, v)
		case datastore.TypeFloat64:
			v, err := store.GetFloat64(key)
			if err != nil {
				return err
			}
			fmt.Printf("%s %g\n", t, v)
		case datastore.TypeUint64:
			v, err := store.GetUint64(key)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d\n", t, v)
		case datastore.TypeString:
			v, err := store.GetString(key)
			if err != nil {
				return err
			}
			fmt.Printf("%s %q\n", t, v)
		default:
			fmt.Println("NONE")
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <type> <value>",
	Short: "Write a data store key (command band)",
	Long: `Write a value into the data store.

type is one of: i32, f32, f64, u64, str. Only keys in the Non-RT command
band should be written; the sensor and status bands belong to the RT loop.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		region, shared, err := openShared(cmd)
		if err != nil {
			return err
		}
		defer region.Close()

		store := shared.Store()
		switch args[1] {
		case "i32":
			v, err := strconv.ParseInt(args[2], 0, 32)
			if err != nil {
				return err
			}
			return store.SetInt32(key, int32(v))
		case "f32":
			v, err := strconv.ParseFloat(args[2], 32)
			if err != nil {
				return err
			}
			return store.SetFloat32(key, float32(v))
		case "f64":
			v, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return err
			}
			return store.SetFloat64(key, v)
		case "u64":
			v, err := strconv.ParseUint(args[2], 0, 64)
			if err != nil {
				return err
			}
			return store.SetUint64(key, v)
		case "str":
			return store.SetString(key, args[2])
		default:
			return fmt.Errorf("unknown type %q (i32, f32, f64, u64, str)", args[1])
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <key>...",
	Short: "Stream data store changes for keys",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := make([]datastore.Key, 0, len(args))
		for _, arg := range args {
			key, err := parseKey(arg)
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}

		region, shared, err := openShared(cmd)
		if err != nil {
			return err
		}
		defer region.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		sub := broker.Subscribe()
		watcher := events.NewWatcher(shared.Store(), broker, keys, 10*time.Millisecond)
		watcher.Start()
		defer watcher.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case ev := <-sub:
				fmt.Printf("%s key=%d seq=%d\n", ev.Type, ev.Key, ev.Seq)
			case <-sigCh:
				return nil
			}
		}
	},
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Keep the Non-RT heartbeat fresh",
	Long: `Write the Non-RT heartbeat into shared memory on an interval.

While this command runs the RT process sees the Non-RT side as alive;
stopping it long enough trips the SAFE_MODE monitor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")

		region, shared, err := openShared(cmd)
		if err != nil {
			return err
		}
		defer region.Close()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		shared.SetNonRTHeartbeatNS(rtos.MonotonicNowNS())
		for {
			select {
			case <-ticker.C:
				shared.SetNonRTHeartbeatNS(rtos.MonotonicNowNS())
			case <-sigCh:
				return nil
			}
		}
	},
}

func init() {
	heartbeatCmd.Flags().Duration("interval", 100*time.Millisecond, "Heartbeat write interval")
}
