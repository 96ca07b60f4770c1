package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/tooldrivers/terraform"
)

var (
	bucketImportMessageRe   = regexp.MustCompile(`bucket "([^"]*)" already owned by you \(resource ([^)]*)\)`)
	failedNodegroupMessageRe = regexp.MustCompile(`failed nodegroup "([^"]*)"`)
)

// nodegroupLabel is the label cloud-managed nodes carry naming their
// nodegroup; deleting every node with a given value tears the group
// down through the Kubernetes API.
const nodegroupLabel = "eks.amazonaws.com/nodegroup"

// bucketImportTarget pulls the resource address and cloud-side bucket
// name back out of the classified error's safe message; the import uses
// the bucket name as the cloud-side ID.
func bucketImportTarget(err error) (resourceAddress, bucketName string) {
	var e *eventlog.Error
	if !errors.As(err, &e) {
		return "", ""
	}
	m := bucketImportMessageRe.FindStringSubmatch(e.MessageSafe)
	if len(m) != 3 {
		return "", ""
	}
	return m[2], m[1]
}

// failedNodegroupTarget pulls the failed nodegroup's name out of the
// classified quota error's safe message, mirroring bucketImportTarget.
func failedNodegroupTarget(err error) string {
	var e *eventlog.Error
	if !errors.As(err, &e) {
		return ""
	}
	m := failedNodegroupMessageRe.FindStringSubmatch(e.MessageSafe)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

// remediate inspects a failed Terraform phase's classified error and, if
// its subkind has a registered single-shot fix, applies the fix and
// re-runs the same phase exactly once. A nil return with handled=false means no remediation applies
// and the caller should surface the original error.
func (e *Engine) remediate(ctx context.Context, workdir string, env map[string]string, tfErr error, retryPhase func(ctx context.Context) error) (handled bool, err error) {
	if !eventlog.HasTag(tfErr, eventlog.TagTerraformError) {
		return false, nil
	}

	switch {
	case eventlog.HasSubkind(tfErr, eventlog.TagTerraformError, terraform.SubkindS3BucketAlreadyOwnedByYou):
		return e.remediateBucketOwned(ctx, workdir, env, tfErr, retryPhase)

	case eventlog.HasSubkind(tfErr, eventlog.TagTerraformError, terraform.SubkindQuotaExceeded):
		return e.remediateNodegroupQuota(ctx, tfErr, retryPhase)

	case eventlog.HasSubkind(tfErr, eventlog.TagTerraformError, terraform.SubkindInstanceTypeSwitchRequired):
		return e.remediateInstanceTypeSwitch(ctx, workdir, env, retryPhase)

	default:
		return false, nil
	}
}

// remediateBucketOwned imports the already-existing bucket into state
// and retries the apply once.
func (e *Engine) remediateBucketOwned(ctx context.Context, workdir string, env map[string]string, tfErr error, retryPhase func(ctx context.Context) error) (bool, error) {
	addr, bucket := bucketImportTarget(tfErr)
	if e.Terraform == nil || addr == "" || bucket == "" {
		return false, nil
	}
	e.emit("remediate", fmt.Sprintf("importing %s (cloud id %s) after BucketAlreadyOwnedByYou", addr, bucket))
	if err := e.Terraform.Import(ctx, workdir, addr, bucket, env); err != nil {
		return true, err
	}
	return true, retryPhase(ctx)
}

// remediateNodegroupQuota deletes the failed nodegroup's nodes through
// the Kubernetes API and retries once, but only when at least one
// healthy node from another nodegroup is present. Without a surviving
// nodegroup the cluster has nothing left to run on, so the caller's
// original error is surfaced unchanged.
func (e *Engine) remediateNodegroupQuota(ctx context.Context, tfErr error, retryPhase func(ctx context.Context) error) (bool, error) {
	if e.Kube == nil {
		return false, nil
	}
	failed := failedNodegroupTarget(tfErr)
	if failed == "" {
		return false, nil
	}
	nodes, err := e.Kube.ListNodes(ctx)
	if err != nil {
		return false, nil
	}
	healthySibling := false
	for _, n := range nodes {
		if n.Labels[nodegroupLabel] != failed && nodeReady(n) {
			healthySibling = true
			break
		}
	}
	if !healthySibling {
		return false, nil
	}
	e.emit("remediate", fmt.Sprintf("deleting failed nodegroup %s before retrying apply", failed))
	if _, err := e.Kube.DeleteNodesBySelector(ctx, nodegroupLabel+"="+failed); err != nil {
		return true, err
	}
	return true, retryPhase(ctx)
}

// remediateInstanceTypeSwitch forces Terraform to destroy-and-recreate
// the live single-instance resource with its new instance type, then
// retries the phase once.
func (e *Engine) remediateInstanceTypeSwitch(ctx context.Context, workdir string, env map[string]string, retryPhase func(ctx context.Context) error) (bool, error) {
	if e.Terraform == nil {
		return false, nil
	}
	e.emit("remediate", "forcing replace of the live instance resource for the requested type switch")
	if err := e.Terraform.ReplaceResource(ctx, workdir, "aws_instance.node", env); err != nil {
		return true, err
	}
	return true, retryPhase(ctx)
}
