// Command ssoctl drives an SSO session from a terminal: it signs in through
// the system browser, keeps the session alive and answers expiry warnings.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/tabsso/pkg/slogx"
)

const BuildVersion = "v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ssoctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	if len(args) == 0 {
		usage(errOut)
		return fmt.Errorf("missing command")
	}
	cmd, ok := lookup(args[0])
	if !ok {
		usage(errOut)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := slogx.New(slogx.Config{
		Service: "ssoctl",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  errOut,
	})

	notifier := newPrintNotifier(out)
	rt, err := newRuntime(ctx, cfg, notifier, log)
	if err != nil {
		return err
	}

	runErr := cmd.run(ctx, rt, args[1:], cliIO{in: in, out: out, notifier: notifier})
	if err := rt.Close(); err != nil {
		log.Warn("teardown failed", "err", err)
	}
	return runErr
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ssoctl <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\n", c.usage)
	}
}
