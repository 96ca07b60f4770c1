// Package main is the entry point for the clusterforge CLI.
//
// clusterforge drives a cloud-agnostic Kubernetes cluster and workload
// deployment orchestration engine: it coordinates a Terraform runner, a
// Helm runner, and a Kubernetes API client to bring a cluster or an
// application environment to the state described by a request document.
//
// Commands: infra (create/pause/upgrade/resume/delete a cluster), workload
// (deploy or delete an environment through the workload pipeline), version.
//
// For detailed usage information, run:
//
//	clusterforge --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/clusterforge/cmd/clusterforge/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
