package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/registry"
	"github.com/imamik/clusterforge/internal/request"
	"github.com/imamik/clusterforge/internal/tooldrivers/helmdriver"
	"github.com/imamik/clusterforge/internal/tooldrivers/kubeclient"
	"github.com/imamik/clusterforge/internal/workload"
)

// Deploy returns the deploy command, running the workload pipeline
// (internal/workload) against one EnvironmentRequest.
func Deploy() *cobra.Command {
	var (
		requestPath    string
		namespace      string
		workspaceRoot  string
		kubeconfig     string
		registryBase   string
		registryUser   string
		registryPass   string
	)

	addCommonFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&requestPath, "request", "", "path to an environment request YAML document")
		c.Flags().StringVar(&namespace, "namespace", "", "Kubernetes namespace the releases deploy into")
		c.Flags().StringVar(&workspaceRoot, "workspace-root", "", "workspace root fetched charts and values are relative to")
		c.Flags().StringVar(&kubeconfig, "kubeconfig", "", "path to the target cluster's kubeconfig file")
		c.Flags().StringVar(&registryBase, "registry", "", "shared registry base, e.g. registry.example.com/clusterforge")
		c.Flags().StringVar(&registryUser, "registry-username", "", "shared registry username")
		c.Flags().StringVar(&registryPass, "registry-password", "", "shared registry password")
		_ = c.MarkFlagRequired("request")
		_ = c.MarkFlagRequired("namespace")
		_ = c.MarkFlagRequired("workspace-root")
		_ = c.MarkFlagRequired("kubeconfig")
		_ = c.MarkFlagRequired("registry")
	}

	run := func(cmd *cobra.Command, step func(ctx context.Context, p workload.Pipeline, env request.EnvironmentRequest) (any, error)) error {
		env, err := loadEnvironmentRequest(requestPath)
		if err != nil {
			return err
		}
		p, err := buildPipeline(namespace, workspaceRoot, kubeconfig, registryBase, registryUser, registryPass)
		if err != nil {
			return err
		}
		if _, err := step(cmd.Context(), p, env); err != nil {
			return err
		}
		return nil
	}

	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Resolve images, render releases, and apply an environment's workload levels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, p workload.Pipeline, env request.EnvironmentRequest) (any, error) {
				result, err := p.Deploy(ctx, env)
				if err != nil {
					return nil, fmt.Errorf("deploy: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deployed %d releases\n", len(result.Completed))
				return result, nil
			})
		},
	}
	addCommonFlags(deployCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Uninstall an environment's workload releases in reverse order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, p workload.Pipeline, env request.EnvironmentRequest) (any, error) {
				images, err := p.ResolveImages(ctx, env)
				if err != nil {
					return nil, fmt.Errorf("delete: resolving images for cleanup: %w", err)
				}
				result, err := p.Delete(ctx, env, images)
				if err != nil {
					return nil, fmt.Errorf("delete: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d releases\n", len(result.Completed))
				return result, nil
			})
		},
	}
	addCommonFlags(deleteCmd)

	cmd := &cobra.Command{
		Use:   "workload",
		Short: "Deploy or delete a workload environment",
	}
	cmd.AddCommand(deployCmd, deleteCmd)
	return cmd
}

func loadEnvironmentRequest(path string) (request.EnvironmentRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return request.EnvironmentRequest{}, fmt.Errorf("reading request file: %w", err)
	}
	return request.DecodeEnvironmentRequestYAML(data)
}

// buildPipeline wires the real registry and Helm SDK collaborators behind
// internal/workload.Pipeline. A build platform is never wired in here:
// the CLI entry point always runs against applications whose images have
// already been resolved by an external CI system, so Pipeline.Build stays
// nil and ResolveImage requires every referenced image to already exist
// in the shared registry.
func buildPipeline(namespace, workspaceRoot, kubeconfigPath, registryBase, registryUser, registryPass string) (workload.Pipeline, error) {
	kcBytes, err := os.ReadFile(kubeconfigPath)
	if err != nil {
		return workload.Pipeline{}, fmt.Errorf("reading kubeconfig: %w", err)
	}
	kube, err := kubeclient.NewFromKubeconfig(kcBytes)
	if err != nil {
		return workload.Pipeline{}, fmt.Errorf("building kubernetes client: %w", err)
	}

	sink := eventlog.NewLogrSink(logrusr.New(logrus.New()))
	helm := helmdriver.New(kcBytes, kube, sink)
	reg := registry.New(registry.Credentials{Username: registryUser, Password: registryPass})

	return workload.Pipeline{
		Namespace:           namespace,
		WorkspaceRoot:       workspaceRoot,
		SharedRegistryBase:  registryBase,
		Registry:            reg,
		Helm:                helmAdapter{helm},
		Sink:                sink,
	}, nil
}

// helmAdapter narrows *helmdriver.Driver to internal/executor.HelmDriver,
// matching internal/engine's helmExecutorAdapter since the two packages
// each depend on the Helm driver through their own consumer-side
// interface and neither should import the other's adapter type.
type helmAdapter struct {
	driver *helmdriver.Driver
}

func (a helmAdapter) UpgradeInstall(ctx context.Context, workspaceRoot string, r chart.Release) error {
	_, err := a.driver.UpgradeInstall(ctx, workspaceRoot, r)
	return err
}

func (a helmAdapter) Uninstall(ctx context.Context, namespace, name string) error {
	return a.driver.Uninstall(ctx, namespace, name)
}
