// Command cwdbg is a source-level debugger for flat 68k binaries,
// speaking either a local interactive console or the remote serial
// protocol described in spec.md §6.1/§6.2/§6.3.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/wiemerc/cwdbg/internal/debugger"
	"github.com/wiemerc/cwdbg/internal/localcli"
	"github.com/wiemerc/cwdbg/internal/logging"
	"github.com/wiemerc/cwdbg/internal/remotecli"
)

var (
	debugFlag  bool
	serverFlag bool
	deviceFlag string
)

func main() {
	root := &cobra.Command{
		Use:   "cwdbg target",
		Short: "source-level debugger for 68k-family cooperative-multitasking targets",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().BoolVar(&debugFlag, "debug", false, "enable verbose logging")
	root.Flags().BoolVar(&serverFlag, "server", false, "run as remote debug server instead of the local console")
	root.Flags().StringVar(&deviceFlag, "device", "/dev/ttyS0", "serial device to listen on in --server mode")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if debugFlag {
		logging.SetLevel(logging.Debug)
	}
	targetPath := args[0]

	var source debugger.CommandSource
	if serverFlag {
		rc, err := remotecli.Open(deviceFlag)
		if err != nil {
			return fmt.Errorf("cwdbg: %w", err)
		}
		defer rc.Close()
		source = rc
	} else {
		lc, err := localcli.New()
		if err != nil {
			return fmt.Errorf("cwdbg: %w", err)
		}
		defer lc.Close()
		source = lc
	}

	dbg, err := debugger.CreateDebugger(targetPath, source)
	if err != nil {
		return fmt.Errorf("cwdbg: %w", err)
	}
	defer dbg.QuitDebugger()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			logging.Logf(logging.Warn, "SIGINT received, killing target")
			dbg.QuitDebugger()
			os.Exit(130)
		case <-done:
		}
	}()

	if err := dbg.ProcessCommands(); err != nil {
		return fmt.Errorf("cwdbg: %w", err)
	}
	return nil
}
