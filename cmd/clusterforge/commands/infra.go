package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imamik/clusterforge/internal/cloudvariant"
	"github.com/imamik/clusterforge/internal/engine"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/request"
	"github.com/imamik/clusterforge/internal/tooldrivers/helmdriver"
	"github.com/imamik/clusterforge/internal/tooldrivers/kubeclient"
	"github.com/imamik/clusterforge/internal/tooldrivers/terraform"
)

// Infra returns the infra command, driving a cluster through the state
// machine transitions in internal/engine: create, update, upgrade,
// pause, resume, delete.
func Infra() *cobra.Command {
	var (
		requestPath  string
		variantFlag  string
		workspaceDir string
		chartsRoot   string
		kubeconfig   string
	)

	cmd := &cobra.Command{
		Use:   "infra",
		Short: "Drive a cluster's infrastructure to a declared state",
	}

	addCommonFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&requestPath, "request", "", "path to a cluster request YAML document")
		c.Flags().StringVar(&variantFlag, "variant", "", "cloud variant (AwsEks, AwsEc2, Gke, ScwKapsule, AzureAks, OnPremise)")
		c.Flags().StringVar(&workspaceDir, "workspace-dir", "", "Terraform workspace directory")
		c.Flags().StringVar(&chartsRoot, "charts-root", "", "chart workspace root the planner's chart paths are relative to")
		c.Flags().StringVar(&kubeconfig, "kubeconfig", "", "path to the cluster's kubeconfig file")
		_ = c.MarkFlagRequired("request")
		_ = c.MarkFlagRequired("variant")
		_ = c.MarkFlagRequired("workspace-dir")
		_ = c.MarkFlagRequired("charts-root")
	}

	runTransition := func(stage eventlog.Stage, run func(e *engine.Engine, ctx context.Context, req engine.Request) (engine.State, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			e, req, err := buildEngine(variantFlag, workspaceDir, chartsRoot, kubeconfig, requestPath)
			if err != nil {
				return err
			}
			state, err := run(e, cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("infra: %s: %w", stage, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cluster state: %s\n", state)
			return nil
		}
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Bring a cluster from Absent to Active",
		RunE:  runTransition(eventlog.StageInfrastructureCreate, (*engine.Engine).Create),
	}
	addCommonFlags(create)

	update := &cobra.Command{
		Use:   "update",
		Short: "Re-apply Terraform and the current chart set to a running cluster",
		RunE:  runTransition(eventlog.StageInfrastructureCreate, (*engine.Engine).Update),
	}
	addCommonFlags(update)

	upgrade := &cobra.Command{
		Use:   "upgrade",
		Short: "Bump the control-plane version, roll node pools, and re-apply the plan",
		RunE: runTransition(eventlog.StageInfrastructureUpgrade, func(e *engine.Engine, ctx context.Context, req engine.Request) (engine.State, error) {
			return e.Upgrade(ctx, req, nil)
		}),
	}
	addCommonFlags(upgrade)

	pause := &cobra.Command{
		Use:   "pause",
		Short: "Scale node pools to zero and uninstall workload charts",
		RunE:  runTransition(eventlog.StageInfrastructurePause, (*engine.Engine).Pause),
	}
	addCommonFlags(pause)

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Restore node pool sizes and re-apply the current plan",
		RunE:  runTransition(eventlog.StageInfrastructurePause, (*engine.Engine).Resume),
	}
	addCommonFlags(resume)

	var bucketNames []string
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Uninstall every release, destroy Terraform state, and purge buckets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, req, err := buildEngine(variantFlag, workspaceDir, chartsRoot, kubeconfig, requestPath)
			if err != nil {
				return err
			}
			state, err := e.Delete(cmd.Context(), req, bucketNames)
			if err != nil {
				return fmt.Errorf("infra: delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cluster state: %s\n", state)
			return nil
		},
	}
	addCommonFlags(deleteCmd)
	deleteCmd.Flags().StringSliceVar(&bucketNames, "bucket", nil, "bucket name to purge (repeatable)")

	cmd.AddCommand(create, update, upgrade, pause, resume, deleteCmd)
	return cmd
}

// buildEngine wires the real tool drivers (Terraform subprocess, Helm
// SDK, Kubernetes client-go) behind internal/engine.Engine;
// collaborators are constructed in the command layer and handed to the
// domain package rather than letting the domain package reach for
// globals.
func buildEngine(variantFlag, workspaceDir, chartsRoot, kubeconfigPath, requestPath string) (*engine.Engine, engine.Request, error) {
	variant := cloudvariant.Variant(variantFlag)

	data, err := os.ReadFile(requestPath)
	if err != nil {
		return nil, engine.Request{}, fmt.Errorf("reading request file: %w", err)
	}
	clusterReq, err := request.DecodeClusterRequestYAML(data)
	if err != nil {
		return nil, engine.Request{}, err
	}

	sink := eventlog.NewLogrSink(logrusr.New(logrus.New()))

	var kube kubeclient.Client
	var helm *helmdriver.Driver
	if kubeconfigPath != "" {
		kcBytes, err := os.ReadFile(kubeconfigPath)
		if err != nil {
			return nil, engine.Request{}, fmt.Errorf("reading kubeconfig: %w", err)
		}
		kube, err = kubeclient.NewFromKubeconfig(kcBytes)
		if err != nil {
			return nil, engine.Request{}, fmt.Errorf("building kubernetes client: %w", err)
		}
		helm = helmdriver.New(kcBytes, kube, sink)
	}

	tf := terraform.New(sink)

	e := &engine.Engine{
		Terraform: tf,
		Kube:      kube,
		Sink:      sink,
	}
	if helm != nil {
		e.Helm = engine.NewHelmAdapter(helm)
	}

	req := engine.Request{
		Cluster:        clusterReq,
		Variant:        variant,
		WorkspaceDir:   workspaceDir,
		ChartsRoot:     chartsRoot,
		KubeconfigPath: kubeconfigPath,
		Env:            map[string]string{},
	}
	return e, req, nil
}
