// Package main implements the sigrelay command: a daemon that routes
// process signals to configured actions, plus helpers to signal it, inspect
// its logs, and manage its config file.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"

	"github.com/spf13/cobra"
	rootpkg "tools.zach/dev/sigrelay"
	"tools.zach/dev/sigrelay/internal/atomicfile"
	"tools.zach/dev/sigrelay/internal/config"
	"tools.zach/dev/sigrelay/internal/logger"
	"tools.zach/dev/sigrelay/internal/paths"
	"tools.zach/dev/sigrelay/internal/relay"
	"tools.zach/dev/sigrelay/internal/signals"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags (-X main.version=...). When unset,
// resolveVersion falls back to the VCS info embedded by the Go toolchain.
var version = "dev"

// resolveVersion returns the build version string, or "dev+<hash>" built
// from embedded VCS settings when no version was injected.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// defaultDataDir returns ~/.sigrelay, or ./.sigrelay when the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   paths.BinaryName,
		Short: "Route process signals to configured actions",
		Long: `sigrelay runs a small daemon that installs a handler for each signal named
in its rule file. Handlers only enqueue the delivery; the daemon then logs it,
posts it to a webhook, reloads its rules, or shuts down, outside the handler.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("data-dir", defaultDataDir(), "Data directory for config, PID file, and logs")
	root.PersistentFlags().String("config", "", "Config file (default <data-dir>/config.toml)")

	root.AddCommand(
		newRunCmd(),
		newRaiseCmd(),
		newListCmd(),
		newLogsCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// dataPaths builds the data directory layout from the persistent flags.
func dataPaths(cmd *cobra.Command) DataPaths {
	root, _ := cmd.Flags().GetString("data-dir")
	cfgPath, _ := cmd.Flags().GetString("config")
	return DataPaths{Root: root, ConfigPath: cfgPath}
}

// ///////////////////////////////////////////////
// run
// ///////////////////////////////////////////////

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the relay daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dp := dataPaths(cmd)
			if err := os.MkdirAll(dp.Root, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			if alive, pid := checkStalePID(dp); alive {
				return fmt.Errorf("daemon already running (pid %d)", pid)
			}

			if dp.ConfigPath == "" {
				if _, err := os.Stat(dp.Config()); os.IsNotExist(err) {
					if writeErr := atomicfile.Write(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); writeErr != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to write default config: %v\n", writeErr)
					}
				}
			}

			cfg, err := config.Load(dp.Config())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, logCloser, err := logger.New(logger.Options{
				Path:      dp.Log(),
				Level:     logger.ParseLevel(cfg.Log.Level),
				MaxSizeMB: cfg.Log.MaxSizeMB,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logCloser.Close()
			slog.SetDefault(log)

			slog.Info("sigrelay starting", "version", resolveVersion(), "data_dir", dp.Root, "pid", os.Getpid())

			token := pidToken()
			pidFile, err := writePID(dp, token)
			if err != nil {
				logger.Fail(log, "failed to write PID file", "error", err)
				return err
			}
			defer removePID(dp, token, pidFile)

			r := relay.New(relay.Options{
				Config:     cfg,
				ConfigPath: dp.Config(),
				Logger:     log,
			})
			if err := r.Run(cmd.Context()); err != nil {
				logger.Fail(log, "relay failed", "error", err)
				return err
			}
			return nil
		},
	}
}

// ///////////////////////////////////////////////
// raise
// ///////////////////////////////////////////////

func newRaiseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raise SIGNAL",
		Short: "Send a signal to the running daemon",
		Long: `Send SIGNAL to the daemon recorded in the PID file, or to --pid.

SIGNAL is a name ("SIGHUP", "hup") or a number.

Examples:
  sigrelay raise hup          # reload rules
  sigrelay raise USR1
  sigrelay raise 15 --pid 4242`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := signals.Parse(args[0])
			if err != nil {
				return err
			}
			pid, _ := cmd.Flags().GetInt("pid")
			if pid == 0 {
				if pid, err = readPID(dataPaths(cmd)); err != nil {
					return err
				}
			}
			if err := signals.Send(pid, sig); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to pid %d\n", signals.Name(sig), pid)
			return nil
		},
	}
	cmd.Flags().Int("pid", 0, "Target process (default: the running daemon)")
	return cmd
}

// ///////////////////////////////////////////////
// list
// ///////////////////////////////////////////////

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List signals known on this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			set := signals.Known()
			if all {
				set = signals.All()
			}
			return printSignals(cmd.OutOrStdout(), set)
		},
	}
	cmd.Flags().Bool("all", false, "Include every signal the platform defines")
	return cmd
}

func printSignals(w io.Writer, set []signals.Signal) error {
	for _, sig := range set {
		note := ""
		if !signals.Catchable(sig) {
			note = " (cannot be handled)"
		}
		if _, err := fmt.Fprintf(w, "%-10s %3d%s\n", signals.Name(sig), int(sig), note); err != nil {
			return err
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// logs
// ///////////////////////////////////////////////

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("lines")
			out, err := logger.ReadTail(dataPaths(cmd).Log(), n)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no log file yet; has the daemon run?")
				}
				return err
			}
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "Number of lines to show")
	return cmd
}

// ///////////////////////////////////////////////
// config
// ///////////////////////////////////////////////

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the sigrelay config file",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigCheckCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dataPaths(cmd).Config()
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := atomicfile.Write(path, rootpkg.DefaultConfigTOML, 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and show the resolved bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dataPaths(cmd).Config()
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			bindings, err := relay.Resolve(cfg.Rules)
			if err != nil {
				return fmt.Errorf("resolve rules: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: ok, %d bindings\n", path, len(bindings))
			for _, b := range bindings {
				flags := ""
				if b.Flags != 0 {
					flags = " " + b.Flags.String()
				}
				fmt.Fprintf(w, "  %-10s %3s  %s%s\n", signals.Name(b.Signal), strconv.Itoa(int(b.Signal)), b.Action, flags)
			}
			return nil
		},
	}
}

// ///////////////////////////////////////////////
// version
// ///////////////////////////////////////////////

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", paths.BinaryName, resolveVersion())
		},
	}
}
