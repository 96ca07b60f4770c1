// Package helmdriver is the thin typed wrapper over the Helm 3 SDK. It
// wraps helm.sh/helm/v3/pkg/action directly rather than shelling out to
// the helm binary, using an in-memory REST client getter so no
// kubeconfig file round-trip is required inside one process — the
// caller reads the file's bytes once and hands them to New, the driver
// reuses them for every release action and never writes kubeconfig
// itself.
//
// The surface is upgrade/install/uninstall/template/history/list, with
// atomic-upgrade, reinstall-floor, and CRD-update behaviors layered on
// top.
package helmdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage/driver"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/tooldrivers/kubeclient"
)

// Driver executes Helm actions against one cluster, identified by the
// kubeconfig bytes it was constructed with.
type Driver struct {
	kubeconfig []byte
	kube       kubeclient.Client
	sink       eventlog.Sink
}

// New builds a Driver from kubeconfig bytes, read from disk once and
// never round-tripped through Terraform. kube is used for the
// CRD server-side-apply step before a release's CRDUpdate; sink receives
// one event per Helm action taken.
func New(kubeconfig []byte, kube kubeclient.Client, sink eventlog.Sink) *Driver {
	if sink == nil {
		sink = eventlog.NopSink{}
	}
	return &Driver{kubeconfig: kubeconfig, kube: kube, sink: sink}
}

func (d *Driver) configuration(namespace string) (*action.Configuration, error) {
	cfg := new(action.Configuration)
	getter := newInMemoryRESTClientGetter(d.kubeconfig, namespace)
	logFn := func(format string, v ...any) {
		d.sink.Emit(eventlog.Event{Transmitter: "helmdriver", Message: fmt.Sprintf(format, v...)})
	}
	if err := cfg.Init(getter, namespace, "secrets", logFn); err != nil {
		return nil, eventlog.New(eventlog.TagHelmError, "initializing helm action configuration", err).WithSubkind("ConfigurationInit")
	}
	return cfg, nil
}

// UpgradeInstall deploys r with --atomic semantics — on failure, the
// previous revision is restored. If the installed chart's
// declared version is below r.ReinstallIfInstalledVersionBelow, the
// release is uninstalled first; if r.CRDUpdate is set, its manifests are
// fetched and server-side-applied before the Helm action runs.
func (d *Driver) UpgradeInstall(ctx context.Context, workspaceRoot string, r chart.Release) (*release.Release, error) {
	if err := r.Validate(); err != nil {
		return nil, eventlog.New(eventlog.TagHelmChartError, "invalid release", err).WithSubkind("InvalidRelease")
	}

	cfg, err := d.configuration(r.Namespace)
	if err != nil {
		return nil, err
	}

	if r.ReinstallIfInstalledVersionBelow != "" {
		if err := d.reinstallIfBelowFloor(ctx, cfg, r); err != nil {
			return nil, err
		}
	}

	if r.CRDUpdate != nil {
		if err := d.applyCRDUpdate(ctx, *r.CRDUpdate); err != nil {
			return nil, err
		}
	}

	ch, err := loader.Load(fullChartPath(workspaceRoot, r.ChartPath))
	if err != nil {
		return nil, eventlog.Newf(eventlog.TagHelmChartError, err, "loading chart at %s", r.ChartPath).WithSubkind("ChartLoad")
	}

	vals, err := resolveValues(workspaceRoot, r)
	if err != nil {
		return nil, eventlog.New(eventlog.TagHelmChartError, "resolving values", err).WithSubkind("ValuesResolve")
	}

	timeout := time.Duration(r.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	installed, err := d.isInstalled(cfg, r.Name)
	if err != nil {
		return nil, err
	}

	var rel *release.Release
	if !installed {
		install := action.NewInstall(cfg)
		install.ReleaseName = r.Name
		install.Namespace = r.Namespace
		install.CreateNamespace = true
		install.Atomic = true
		install.Timeout = timeout
		rel, err = install.RunWithContext(ctx, ch, vals)
	} else {
		upgrade := action.NewUpgrade(cfg)
		upgrade.Namespace = r.Namespace
		upgrade.Install = true
		upgrade.Atomic = true
		upgrade.Timeout = timeout
		rel, err = upgrade.RunWithContext(ctx, r.Name, ch, vals)
	}
	if err != nil {
		return nil, eventlog.Newf(eventlog.TagHelmError, err, "upgrade-install %s: %s", r.Name, firstLine(err.Error())).WithSubkind("AtomicRollback")
	}

	if r.VPA != nil {
		d.sink.Emit(eventlog.Event{Transmitter: "helmdriver", Step: "vpa", Message: fmt.Sprintf("release %s carries a VPA spec for %s/%s; the driver does not apply it", r.Name, r.VPA.TargetKind, r.VPA.TargetName)})
	}

	return rel, nil
}

// Uninstall removes name from namespace, idempotently: "release: not
// found" is treated as success.
func (d *Driver) Uninstall(ctx context.Context, namespace, name string) error {
	cfg, err := d.configuration(namespace)
	if err != nil {
		return err
	}
	uninstall := action.NewUninstall(cfg)
	_, err = uninstall.Run(name)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return nil
		}
		return eventlog.Newf(eventlog.TagHelmError, err, "uninstall %s: %s", name, firstLine(err.Error())).WithSubkind("UninstallFailed")
	}
	return nil
}

// TemplateValidate renders r's manifests client-side without contacting
// the API server for mutation, for the static chart-directory/values
// parity checks to run against real rendered output.
func (d *Driver) TemplateValidate(workspaceRoot string, r chart.Release) ([]byte, error) {
	cfg, err := d.configuration(r.Namespace)
	if err != nil {
		return nil, err
	}
	ch, err := loader.Load(fullChartPath(workspaceRoot, r.ChartPath))
	if err != nil {
		return nil, eventlog.Newf(eventlog.TagHelmChartError, err, "loading chart at %s", r.ChartPath).WithSubkind("ChartLoad")
	}
	vals, err := resolveValues(workspaceRoot, r)
	if err != nil {
		return nil, err
	}

	install := action.NewInstall(cfg)
	install.ReleaseName = r.Name
	install.Namespace = r.Namespace
	install.DryRun = true
	install.ClientOnly = true
	install.Replace = true

	rel, err := install.Run(ch, vals)
	if err != nil {
		return nil, eventlog.Newf(eventlog.TagHelmChartError, err, "template %s", r.Name).WithSubkind("TemplateRenderFailed")
	}
	var buf bytes.Buffer
	buf.WriteString(rel.Manifest)
	return buf.Bytes(), nil
}

// History returns name's revision history in the order Helm's storage
// backend returns it; the revisions are not sorted here.
func (d *Driver) History(namespace, name string) ([]*release.Release, error) {
	cfg, err := d.configuration(namespace)
	if err != nil {
		return nil, err
	}
	hist := action.NewHistory(cfg)
	revisions, err := hist.Run(name)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return nil, nil
		}
		return nil, eventlog.Newf(eventlog.TagHelmError, err, "history %s", name).WithSubkind("HistoryFailed")
	}
	return revisions, nil
}

// List returns every release installed in namespace.
func (d *Driver) List(namespace string) ([]*release.Release, error) {
	cfg, err := d.configuration(namespace)
	if err != nil {
		return nil, err
	}
	list := action.NewList(cfg)
	releases, err := list.Run()
	if err != nil {
		return nil, eventlog.Newf(eventlog.TagHelmError, err, "list releases in %s", namespace).WithSubkind("ListFailed")
	}
	return releases, nil
}

func (d *Driver) isInstalled(cfg *action.Configuration, name string) (bool, error) {
	hist := action.NewHistory(cfg)
	hist.Max = 1
	_, err := hist.Run(name)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return false, nil
		}
		return false, eventlog.Newf(eventlog.TagHelmError, err, "checking install state of %s", name).WithSubkind("HistoryFailed")
	}
	return true, nil
}

// reinstallIfBelowFloor uninstalls r.Name first when the currently
// installed chart's declared version is older than
// r.ReinstallIfInstalledVersionBelow.
func (d *Driver) reinstallIfBelowFloor(ctx context.Context, cfg *action.Configuration, r chart.Release) error {
	hist := action.NewHistory(cfg)
	hist.Max = 1
	revisions, err := hist.Run(r.Name)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return nil
		}
		return eventlog.Newf(eventlog.TagHelmError, err, "checking install state of %s", r.Name).WithSubkind("HistoryFailed")
	}
	if len(revisions) == 0 {
		return nil
	}
	current := revisions[0]
	for _, rev := range revisions[1:] {
		if rev.Version > current.Version {
			current = rev
		}
	}
	if current.Chart == nil || current.Chart.Metadata == nil {
		return nil
	}

	floor, err := semver.NewVersion(r.ReinstallIfInstalledVersionBelow)
	if err != nil {
		return eventlog.Newf(eventlog.TagHelmChartError, err, "invalid reinstall floor %q for %s", r.ReinstallIfInstalledVersionBelow, r.Name).WithSubkind("InvalidReinstallFloor")
	}
	installed, err := semver.NewVersion(current.Chart.Metadata.Version)
	if err != nil {
		// An unparsable installed version is treated conservatively as
		// below the floor, forcing a clean reinstall.
		return d.Uninstall(ctx, r.Namespace, r.Name)
	}
	if installed.LessThan(floor) {
		return d.Uninstall(ctx, r.Namespace, r.Name)
	}
	return nil
}

func fullChartPath(workspaceRoot, chartPath string) string {
	if workspaceRoot == "" {
		return chartPath
	}
	return workspaceRoot + "/" + chartPath
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// inMemoryRESTClientGetter implements genericclioptions.RESTClientGetter
// from in-memory kubeconfig bytes instead of a filesystem path, so a
// single process can drive many releases without re-reading the
// kubeconfig file per Helm action. The four methods are the standard
// boilerplate the RESTClientGetter interface mandates, reused as-is.
type inMemoryRESTClientGetter struct {
	kubeconfig []byte
	namespace  string
	restConfig *rest.Config
}

func newInMemoryRESTClientGetter(kubeconfig []byte, namespace string) *inMemoryRESTClientGetter {
	return &inMemoryRESTClientGetter{kubeconfig: kubeconfig, namespace: namespace}
}

func (g *inMemoryRESTClientGetter) ToRESTConfig() (*rest.Config, error) {
	if g.restConfig != nil {
		return g.restConfig, nil
	}
	clientConfig, err := clientcmd.NewClientConfigFromBytes(g.kubeconfig)
	if err != nil {
		return nil, err
	}
	g.restConfig, err = clientConfig.ClientConfig()
	if err != nil {
		return nil, err
	}
	return g.restConfig, nil
}

func (g *inMemoryRESTClientGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	restConfig, err := g.ToRESTConfig()
	if err != nil {
		return nil, err
	}
	dc, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	return memory.NewMemCacheClient(dc), nil
}

func (g *inMemoryRESTClientGetter) ToRESTMapper() (meta.RESTMapper, error) {
	dc, err := g.ToDiscoveryClient()
	if err != nil {
		return nil, err
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(dc), nil
}

func (g *inMemoryRESTClientGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	clientConfig, _ := clientcmd.NewClientConfigFromBytes(g.kubeconfig)
	return clientConfig
}
