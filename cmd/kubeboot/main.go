// Package main is the entry point for the kubeboot CLI.
//
// kubeboot bootstraps a Kubernetes cluster over SSH from a declarative
// node inventory: it installs packages, prepares the container runtime,
// initializes the primary control plane, joins the remaining nodes and
// installs the cluster addons. Runs are idempotent and resumable.
//
// Commands: apply, status, version.
//
// For detailed usage information, run:
//
//	kubeboot --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubeboot/kubeboot/cmd/kubeboot/commands"
	"github.com/kubeboot/kubeboot/cmd/kubeboot/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var exitErr *handlers.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
