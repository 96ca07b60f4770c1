// Package kubeclient adapts k8s.io/client-go into the Kubernetes
// capability surface the engine uses post-apply: pods, services,
// daemonsets, webhooks, nodes, crashlooping-pod cleanup, plus the CRD
// server-side-apply helper the Helm driver uses before a release with a
// CRDUpdateSpec runs. Built from the dynamic.Interface +
// kubernetes.Interface + meta.RESTMapper trio, constructed from
// in-memory kubeconfig bytes rather than a file path.
package kubeclient

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// Client is the Kubernetes tool driver's capability surface.
type Client interface {
	GetPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error)
	GetServices(ctx context.Context, namespace, selector string) ([]corev1.Service, error)
	DeleteService(ctx context.Context, namespace, name string) error
	GetMutatingWebhookConfiguration(ctx context.Context, name string) (*unstructured.Unstructured, error)
	PatchDaemonSet(ctx context.Context, namespace, name string, patch []byte, patchType types.PatchType) (*appsv1.DaemonSet, error)
	DeleteCrashLoopingPods(ctx context.Context, namespace, selector string) (int, error)
	ListNodes(ctx context.Context) ([]corev1.Node, error)
	// DeleteNodesBySelector deletes every node matching selector,
	// returning the count deleted. Used to tear down a failed nodegroup
	// before a Terraform retry.
	DeleteNodesBySelector(ctx context.Context, selector string) (int, error)

	// ApplyManifests server-side-applies multi-document YAML, used by the
	// Helm driver to run a release's CRDUpdateSpec before the owning
	// Helm apply.
	ApplyManifests(ctx context.Context, manifests []byte, fieldManager string) error
}

type client struct {
	clientset     kubernetes.Interface
	dynamicClient dynamic.Interface
	mapper        meta.RESTMapper
}

// NewFromKubeconfig builds a Client from kubeconfig bytes read off
// disk; downstream components read the kubeconfig from disk, never from
// Terraform directly. In-memory construction avoids a second temp-file
// round trip once the bytes are in hand.
func NewFromKubeconfig(kubeconfig []byte) (Client, error) {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("kubeclient: building rest config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("kubeclient: building clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("kubeclient: building dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("kubeclient: building discovery client: %w", err)
	}
	groupResources, err := restmapper.GetAPIGroupResources(discoveryClient)
	if err != nil {
		return nil, fmt.Errorf("kubeclient: fetching api group resources: %w", err)
	}
	mapper := restmapper.NewDiscoveryRESTMapper(groupResources)

	return &client{clientset: clientset, dynamicClient: dynamicClient, mapper: mapper}, nil
}

// NewFromClients builds a Client from pre-configured clients, for tests
// that inject fake clientsets.
func NewFromClients(clientset kubernetes.Interface, dynamicClient dynamic.Interface, mapper meta.RESTMapper) Client {
	return &client{clientset: clientset, dynamicClient: dynamicClient, mapper: mapper}
}

func (c *client) GetPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("kubeclient: listing pods in %s: %w", namespace, err)
	}
	return list.Items, nil
}

func (c *client) GetServices(ctx context.Context, namespace, selector string) ([]corev1.Service, error) {
	list, err := c.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("kubeclient: listing services in %s: %w", namespace, err)
	}
	return list.Items, nil
}

func (c *client) DeleteService(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("kubeclient: deleting service %s/%s: %w", namespace, name, err)
	}
	return nil
}

func (c *client) GetMutatingWebhookConfiguration(ctx context.Context, name string) (*unstructured.Unstructured, error) {
	gvr := schema.GroupVersionResource{Group: "admissionregistration.k8s.io", Version: "v1", Resource: "mutatingwebhookconfigurations"}
	obj, err := c.dynamicClient.Resource(gvr).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubeclient: getting mutatingwebhookconfiguration %s: %w", name, err)
	}
	return obj, nil
}

func (c *client) PatchDaemonSet(ctx context.Context, namespace, name string, patch []byte, patchType types.PatchType) (*appsv1.DaemonSet, error) {
	ds, err := c.clientset.AppsV1().DaemonSets(namespace).Patch(ctx, name, patchType, patch, metav1.PatchOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubeclient: patching daemonset %s/%s: %w", namespace, name, err)
	}
	return ds, nil
}

// DeleteCrashLoopingPods deletes every pod in namespace matching selector
// whose restart count has put it into CrashLoopBackOff, returning the
// count of pods deleted. This is a remediation helper run before
// retrying an install checker, not an executor-level primitive.
func (c *client) DeleteCrashLoopingPods(ctx context.Context, namespace, selector string) (int, error) {
	pods, err := c.GetPods(ctx, namespace, selector)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, p := range pods {
		if !isCrashLooping(p) {
			continue
		}
		err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, p.Name, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			return deleted, fmt.Errorf("kubeclient: deleting crashlooping pod %s/%s: %w", namespace, p.Name, err)
		}
		deleted++
	}
	return deleted, nil
}

func isCrashLooping(p corev1.Pod) bool {
	for _, cs := range p.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason == "CrashLoopBackOff" {
			return true
		}
	}
	return false
}

func (c *client) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	list, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("kubeclient: listing nodes: %w", err)
	}
	return list.Items, nil
}

func (c *client) DeleteNodesBySelector(ctx context.Context, selector string) (int, error) {
	list, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return 0, fmt.Errorf("kubeclient: listing nodes matching %q: %w", selector, err)
	}
	deleted := 0
	for _, n := range list.Items {
		err := c.clientset.CoreV1().Nodes().Delete(ctx, n.Name, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			return deleted, fmt.Errorf("kubeclient: deleting node %s: %w", n.Name, err)
		}
		deleted++
	}
	return deleted, nil
}

