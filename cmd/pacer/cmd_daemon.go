package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pacer/internal/config"
)

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the pacer daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c := newClient()

			if c.Healthy(cmd.Context()) {
				fmt.Fprintln(out, "✓ Daemon is already running")
				return nil
			}

			pacerDir, err := config.EnsurePacerDir()
			if err != nil {
				return fmt.Errorf("setup pacer directory: %w", err)
			}

			pacerdPath, err := findDaemonBinary()
			if err != nil {
				return fmt.Errorf("find daemon binary: %w", err)
			}

			daemon := exec.Command(pacerdPath)
			daemon.Dir = pacerDir
			configureDaemonProcess(daemon)

			if err := daemon.Start(); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			fmt.Fprint(out, "Starting daemon...")
			for i := 0; i < 30; i++ {
				time.Sleep(100 * time.Millisecond)
				if c.Healthy(cmd.Context()) {
					fmt.Fprintln(out, " ✓")
					fmt.Fprintf(out, "Daemon running at %s\n", c.BaseURL())
					return nil
				}
				fmt.Fprint(out, ".")
			}

			fmt.Fprintln(out, " ✗")
			return fmt.Errorf("daemon failed to start (check logs with 'pacer logs')")
		},
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the pacer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c := newClient()

			if !c.Healthy(cmd.Context()) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			pacerDir, err := config.PacerDir()
			if err != nil {
				return err
			}
			pid, err := readPID(filepath.Join(pacerDir, pidFile))
			if err != nil {
				return err
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find process: %w", err)
			}

			fmt.Fprint(out, "Stopping daemon...")
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("send signal: %w", err)
			}

			for i := 0; i < 50; i++ {
				time.Sleep(100 * time.Millisecond)
				if !c.Healthy(cmd.Context()) {
					fmt.Fprintln(out, " ✓")
					return nil
				}
				fmt.Fprint(out, ".")
			}

			fmt.Fprintln(out, " ✗")
			return fmt.Errorf("daemon did not stop gracefully")
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if !c.Healthy(ctx) {
				fmt.Fprintln(out, "Status: stopped")
				return nil
			}

			status, err := c.Status(ctx)
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			if ok, err := printJSON(cmd, status); ok {
				return err
			}

			queue := "disabled"
			if status.Queue {
				queue = "enabled"
			}
			fmt.Fprintf(out, "Status:   %s\n", status.Status)
			fmt.Fprintf(out, "Version:  %s\n", status.Version)
			fmt.Fprintf(out, "Uptime:   %s\n", status.Uptime)
			fmt.Fprintf(out, "Topics:   %d\n", status.TopicsTracked)
			if status.SchemaVersion > 0 {
				fmt.Fprintf(out, "Storage:  %s (schema v%d)\n", status.Storage, status.SchemaVersion)
			} else {
				fmt.Fprintf(out, "Storage:  %s\n", status.Storage)
			}
			fmt.Fprintf(out, "Lock:     %s\n", status.Lock)
			fmt.Fprintf(out, "Queue:    %s\n", queue)
			fmt.Fprintf(out, "Address:  %s\n", c.BaseURL())
			return nil
		},
	}
}

func newLogsCommand() *cobra.Command {
	var tailBytes int64

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			pacerDir, err := config.PacerDir()
			if err != nil {
				return err
			}

			logPath := filepath.Join(pacerDir, "logs", "pacerd.log")
			if _, err := os.Stat(logPath); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No log file found. Start the daemon first.")
				return nil
			}

			return tailFile(cmd.OutOrStdout(), logPath, tailBytes)
		},
	}

	cmd.Flags().Int64Var(&tailBytes, "bytes", 4096, "How much of the end of the log to show")
	return cmd
}

// tailFile prints the last n bytes of path, starting at a line boundary
func tailFile(w io.Writer, path string, n int64) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	offset := info.Size() - n
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	// Skip partial first line if we seeked
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	return scanner.Err()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// findDaemonBinary locates the pacerd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("pacerd"); err == nil {
		return path, nil
	}

	// Check relative to this binary
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "pacerd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	locations := []string{
		"/usr/local/bin/pacerd",
		"./pacerd",
		"./cmd/pacerd/pacerd",
	}
	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("pacerd binary not found (build with 'go build ./cmd/pacerd')")
}

