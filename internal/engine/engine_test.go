package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/cloudvariant"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/request"
	"github.com/imamik/clusterforge/internal/storage"
	"github.com/imamik/clusterforge/internal/tooldrivers/terraform"
)

type fakeTerraform struct {
	mu           sync.Mutex
	applyCalls   int
	applyErr     error
	importCalls  []string
	destroyCalls int
	replaceCalls []string
	outputs      map[string]any
	outputErr    error
}

func (f *fakeTerraform) InitValidatePlanApply(ctx context.Context, workdir string, dryRun bool, env map[string]string, validators ...terraform.Validator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.applyCalls == 1 && f.applyErr != nil {
		return f.applyErr
	}
	return nil
}

func (f *fakeTerraform) Import(ctx context.Context, workdir, resourceAddress, cloudID string, env map[string]string, validators ...terraform.Validator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importCalls = append(f.importCalls, resourceAddress+"="+cloudID)
	return nil
}

func (f *fakeTerraform) Destroy(ctx context.Context, workdir string, env map[string]string, validators ...terraform.Validator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
	return nil
}

func (f *fakeTerraform) ReplaceResource(ctx context.Context, workdir, resourceAddress string, env map[string]string, validators ...terraform.Validator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls = append(f.replaceCalls, resourceAddress)
	return nil
}

func (f *fakeTerraform) Output(ctx context.Context, workdir string, env map[string]string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outputErr != nil {
		return nil, f.outputErr
	}
	if f.outputs != nil {
		return f.outputs, nil
	}
	return awsOutputsFixture(), nil
}

// awsOutputsFixture satisfies aws.go's awsOutputKeys so
// cloudvariant.Lookup(AwsEks).ParseOutputs succeeds against
// baseRequest()'s AwsEks variant without every test needing its own
// fixture.
func awsOutputsFixture() map[string]any {
	return map[string]any{
		"aws_account_id":                     "111111111111",
		"aws_iam_loki_role_arn":               "arn:aws:iam::111111111111:role/loki",
		"aws_iam_external_dns_role_arn":       "arn:aws:iam::111111111111:role/external-dns",
		"aws_iam_cluster_autoscaler_role_arn": "arn:aws:iam::111111111111:role/cluster-autoscaler",
		"aws_s3_loki_bucket_name":             "clusterforge-loki-logs",
		"loki_storage_config_aws_s3":          map[string]any{},
		"cluster_security_group_id":           "sg-0123456789abcdef0",
	}
}

// noopHelm satisfies internal/executor.HelmDriver, succeeding on every
// call, for transitions that only exercise Terraform/remediation logic.
type noopHelm struct{}

func (noopHelm) UpgradeInstall(ctx context.Context, workspaceRoot string, r chart.Release) error {
	return nil
}
func (noopHelm) Uninstall(ctx context.Context, namespace, name string) error { return nil }

type fakeKube struct {
	nodes            []corev1.Node
	deletedSelectors []string
}

func (f *fakeKube) GetPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error) {
	return nil, nil
}
func (f *fakeKube) GetServices(ctx context.Context, namespace, selector string) ([]corev1.Service, error) {
	return nil, nil
}
func (f *fakeKube) DeleteService(ctx context.Context, namespace, name string) error { return nil }
func (f *fakeKube) GetMutatingWebhookConfiguration(ctx context.Context, name string) (*unstructured.Unstructured, error) {
	return nil, nil
}
func (f *fakeKube) PatchDaemonSet(ctx context.Context, namespace, name string, patch []byte, patchType types.PatchType) (*appsv1.DaemonSet, error) {
	return nil, nil
}
func (f *fakeKube) DeleteCrashLoopingPods(ctx context.Context, namespace, selector string) (int, error) {
	return 0, nil
}
func (f *fakeKube) ListNodes(ctx context.Context) ([]corev1.Node, error) { return f.nodes, nil }
func (f *fakeKube) DeleteNodesBySelector(ctx context.Context, selector string) (int, error) {
	f.deletedSelectors = append(f.deletedSelectors, selector)
	return 1, nil
}
func (f *fakeKube) ApplyManifests(ctx context.Context, manifests []byte, fieldManager string) error {
	return nil
}

type fakeBucketPurger struct {
	deleted []string
}

func (f *fakeBucketPurger) DeleteBucket(ctx context.Context, name string, strategy storage.DeleteStrategy) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func readyNode(name string) corev1.Node {
	return corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: corev1.ConditionTrue}},
		},
	}
}

func readyNodeInGroup(name, nodegroup string) corev1.Node {
	n := readyNode(name)
	n.Labels = map[string]string{"eks.amazonaws.com/nodegroup": nodegroup}
	return n
}

func baseRequest() Request {
	return Request{
		Cluster: request.ClusterRequest{
			ClusterID:        "cluster-1",
			OrganizationID:   "org-1",
			Features:         request.FeatureFlags{},
			LetsEncryptEmail: "ops@example.com",
			DNSProvider:      request.DNSProviderConfig{Kind: "route53"},
		},
		Variant:      cloudvariant.AwsEks,
		WorkspaceDir: "/tmp/workspace/terraform",
		ChartsRoot:   "aws",
	}
}

func TestDelete_PurgesBuckets(t *testing.T) {
	tf := &fakeTerraform{}
	purger := &fakeBucketPurger{}
	e := &Engine{
		Terraform: tf,
		Helm:      noopHelm{},
		Kube:      &fakeKube{nodes: []corev1.Node{readyNode("n1")}},
		Storage:   purger,
	}

	state, err := e.Delete(context.Background(), baseRequest(), []string{"bucket-a", "bucket-b"})
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)
	assert.Equal(t, 1, tf.destroyCalls)
	assert.ElementsMatch(t, []string{
		"bucket-a",
		"bucket-b",
		"qovery-kubeconfigs-cluster1",
		"qovery-logs-cluster-1",
	}, purger.deleted)
}

type fakeKubeconfigStore struct {
	buckets []string
	objects map[string][]byte
}

func (f *fakeKubeconfigStore) CreateBucket(ctx context.Context, spec storage.BucketSpec) (storage.Bucket, error) {
	f.buckets = append(f.buckets, spec.Name)
	return storage.Bucket{Name: spec.Name}, nil
}

func (f *fakeKubeconfigStore) PutObject(ctx context.Context, bucket, key string, data []byte, tags map[string]string) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func TestCreate_PersistsKubeconfigToObjectStorage(t *testing.T) {
	kubeconfigPath := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(kubeconfigPath, []byte("apiVersion: v1\nkind: Config\n"), 0o600))

	store := &fakeKubeconfigStore{}
	e := &Engine{
		Terraform:   &fakeTerraform{},
		Helm:        noopHelm{},
		Kube:        &fakeKube{nodes: []corev1.Node{readyNode("n1")}},
		Kubeconfigs: store,
	}
	req := baseRequest()
	req.KubeconfigPath = kubeconfigPath

	state, err := e.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
	assert.Contains(t, store.buckets, "qovery-kubeconfigs-cluster1")
	assert.Equal(t, []byte("apiVersion: v1\nkind: Config\n"), store.objects["qovery-kubeconfigs-cluster1/cluster-1.yaml"])
}

func TestDelete_RemovesKubeconfigFromDiskLast(t *testing.T) {
	kubeconfigPath := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(kubeconfigPath, []byte("apiVersion: v1\n"), 0o600))

	e := &Engine{
		Terraform: &fakeTerraform{},
		Helm:      noopHelm{},
	}
	req := baseRequest()
	req.KubeconfigPath = kubeconfigPath

	state, err := e.Delete(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)
	_, statErr := os.Stat(kubeconfigPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreate_TerraformFailureStopsBeforeCharts(t *testing.T) {
	tf := &fakeTerraform{applyErr: eventlog.New(eventlog.TagTerraformError, "boom", nil).WithSubkind(terraform.SubkindGeneric)}
	e := &Engine{
		Terraform: tf,
		Helm:      noopHelm{},
		Kube:      &fakeKube{nodes: []corev1.Node{readyNode("n1")}},
	}

	state, err := e.Create(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, 1, tf.applyCalls)
}

func TestCreate_HappyPathReachesActive(t *testing.T) {
	tf := &fakeTerraform{}
	e := &Engine{
		Terraform: tf,
		Helm:      noopHelm{},
		Kube:      &fakeKube{nodes: []corev1.Node{readyNode("n1")}},
	}

	state, err := e.Create(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
	assert.Equal(t, 2, tf.applyCalls) // create-minimal, then enable-full
}

func TestRemediateBucketOwned_ImportsThenRetries(t *testing.T) {
	tf := &fakeTerraform{}
	e := &Engine{Terraform: tf}

	tfErr := eventlog.Newf(eventlog.TagTerraformError, nil, "s3 bucket %q already owned by you (resource %s)", "qovery-logs-abc", "aws_s3_bucket.logs").
		WithSubkind(terraform.SubkindS3BucketAlreadyOwnedByYou)

	retried := false
	handled, err := e.remediate(context.Background(), "/tmp/ws", nil, tfErr, func(ctx context.Context) error {
		retried = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, retried)
	require.Len(t, tf.importCalls, 1)
	assert.Equal(t, "aws_s3_bucket.logs=qovery-logs-abc", tf.importCalls[0])
}

func TestRemediateNodegroupQuota_DeletesFailedNodegroupThenRetries(t *testing.T) {
	kube := &fakeKube{nodes: []corev1.Node{
		readyNodeInGroup("n1", "healthy-pool"),
		readyNodeInGroup("n2", "failed-pool"),
	}}
	e := &Engine{Kube: kube}

	tfErr := eventlog.Newf(eventlog.TagTerraformError, nil, "quota exceeded for vCPUs (limit 32, requested 64); failed nodegroup %q", "failed-pool").
		WithSubkind(terraform.SubkindQuotaExceeded)

	retried := false
	handled, err := e.remediate(context.Background(), "/tmp/ws", nil, tfErr, func(ctx context.Context) error {
		retried = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, retried)
	assert.Equal(t, []string{"eks.amazonaws.com/nodegroup=failed-pool"}, kube.deletedSelectors)
}

func TestRemediateNodegroupQuota_NoHealthySiblingNotHandled(t *testing.T) {
	kube := &fakeKube{nodes: []corev1.Node{readyNodeInGroup("n1", "failed-pool")}}
	e := &Engine{Kube: kube}

	tfErr := eventlog.Newf(eventlog.TagTerraformError, nil, "quota exceeded for vCPUs (limit 32, requested 64); failed nodegroup %q", "failed-pool").
		WithSubkind(terraform.SubkindQuotaExceeded)

	handled, err := e.remediate(context.Background(), "/tmp/ws", nil, tfErr, func(ctx context.Context) error {
		t.Fatal("retryPhase should not be called")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, kube.deletedSelectors)
}

func TestRemediate_UnrecognizedSubkindNotHandled(t *testing.T) {
	tf := &fakeTerraform{}
	e := &Engine{Terraform: tf}

	tfErr := eventlog.New(eventlog.TagTerraformError, "totally unknown failure", nil).WithSubkind(terraform.SubkindGeneric)
	handled, err := e.remediate(context.Background(), "/tmp/ws", nil, tfErr, func(ctx context.Context) error {
		t.Fatal("retryPhase should not be called")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestBucketImportTarget_ParsesResourceAndBucketName(t *testing.T) {
	tfErr := eventlog.Newf(eventlog.TagTerraformError, nil, "s3 bucket %q already owned by you (resource %s)", "my-bucket", "aws_s3_bucket.x")
	addr, bucket := bucketImportTarget(tfErr)
	assert.Equal(t, "aws_s3_bucket.x", addr)
	assert.Equal(t, "my-bucket", bucket)
}
