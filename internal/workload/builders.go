package workload

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/request"
)

// Universal per-kind chart paths (app / container / database-container /
// router; helm-wrapper releases point at the fetched chart instead),
// workspace-relative, under an
// environment-scoped charts root since these releases are tenant
// workloads, not cluster infrastructure.
const (
	chartApp               = "environment/charts/app"
	chartContainer          = "environment/charts/container"
	chartDatabaseContainer = "environment/charts/database-container"
	chartRouter            = "environment/charts/router"
)

var notDNSLabel = regexp.MustCompile(`[^a-z0-9-]+`)

// releaseName derives a valid Helm/Kubernetes release name from an
// opaque long ID rather than accepting a caller-supplied name directly
// (names must be DNS-label safe).
func releaseName(longID string) string {
	n := notDNSLabel.ReplaceAllString(strings.ToLower(longID), "-")
	n = strings.Trim(n, "-")
	if len(n) > 53 {
		n = n[:53]
	}
	if n == "" {
		n = "svc"
	}
	return n
}

// decodeEnvVars decodes base64-encoded env var values from the request
// before they are placed into chart values. A value that doesn't decode as base64
// is passed through unchanged, since callers aren't required to encode
// every value.
func decodeEnvVars(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
			out[k] = string(decoded)
		} else {
			out[k] = v
		}
	}
	return out
}

func portsOverride(ports []request.Port) []map[string]any {
	out := make([]map[string]any, 0, len(ports))
	for _, p := range ports {
		out = append(out, map[string]any{
			"name":      p.Name,
			"port":      p.ContainerPort,
			"protocol":  p.Protocol,
			"public":    p.Public,
		})
	}
	return out
}

func probesOverride(probes []request.Probe) []map[string]any {
	out := make([]map[string]any, 0, len(probes))
	for _, p := range probes {
		out = append(out, map[string]any{
			"kind":                p.Kind,
			"type":                p.Type,
			"path":                p.Path,
			"port":                p.Port,
			"command":             p.Command,
			"initialDelaySeconds": p.InitialDelaySeconds,
			"periodSeconds":       p.PeriodSeconds,
			"timeoutSeconds":      p.TimeoutSeconds,
			"failureThreshold":    p.FailureThreshold,
		})
	}
	return out
}

func storagesOverride(storages []request.Storage) []map[string]any {
	out := make([]map[string]any, 0, len(storages))
	for _, s := range storages {
		out = append(out, map[string]any{
			"mountPath":    s.MountPath,
			"sizeGiB":      s.SizeGiB,
			"storageClass": s.StorageClass,
		})
	}
	return out
}

func mountedFilesOverride(files []request.MountedFile) []map[string]any {
	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"mountPath":  f.MountPath,
			"contentB64": f.ContentB64,
		})
	}
	return out
}

func resourcesOverride(r request.ResourceSizing) map[string]any {
	return map[string]any{
		"cpuMilli":       r.CPUMilli,
		"memoryMiB":      r.MemoryMiB,
		"cpuLimitMilli":  r.CPULimitMilli,
		"memoryLimitMiB": r.MemoryLimitMiB,
	}
}

// BuildApplicationRelease renders the universal "app" chart for a
// git-sourced application whose image has already been resolved.
func BuildApplicationRelease(namespace string, app request.Application, imageRef string) chart.Release {
	return chart.Release{
		Name:      releaseName(app.LongID),
		Namespace: namespace,
		ChartPath: chartApp,
		Action:    chart.ActionDeploy,
		Overrides: map[string]any{
			"image":        imageRef,
			"env":          decodeEnvVars(app.EnvVars),
			"ports":        portsOverride(app.Ports),
			"probes":       probesOverride(app.Probes),
			"resources":    resourcesOverride(app.Resources),
			"storages":     storagesOverride(app.Storages),
			"mountedFiles": mountedFilesOverride(app.MountedFiles),
			"minInstances": app.MinInstances,
			"maxInstances": app.MaxInstances,
		},
		TimeoutSeconds: 300,
	}
}

// BuildContainerRelease renders the universal "container" chart for a
// registry-sourced service; containers are never built, only pulled.
func BuildContainerRelease(namespace string, c request.Container) chart.Release {
	return chart.Release{
		Name:      releaseName(c.LongID),
		Namespace: namespace,
		ChartPath: chartContainer,
		Action:    chart.ActionDeploy,
		Overrides: map[string]any{
			"image":     c.ImageRef,
			"env":       decodeEnvVars(c.EnvVars),
			"ports":     portsOverride(c.Ports),
			"probes":    probesOverride(c.Probes),
			"resources": resourcesOverride(c.Resources),
		},
		TimeoutSeconds: 300,
	}
}

// BuildDatabaseRelease renders the universal "database-container" chart
// for a self-hosted database. ok is false for Mode == Managed, which
// provisions via Terraform and never gets a Helm release.
func BuildDatabaseRelease(namespace string, db request.Database) (rel chart.Release, ok bool) {
	if db.Mode != request.DatabaseModeContainer {
		return chart.Release{}, false
	}
	return chart.Release{
		Name:      releaseName(db.LongID),
		Namespace: namespace,
		ChartPath: chartDatabaseContainer,
		Action:    chart.ActionDeploy,
		Overrides: map[string]any{
			"kind":      db.Kind,
			"version":   db.Version,
			"resources": resourcesOverride(db.Resources),
			"diskSizeGiB": db.DiskSizeGiB,
			"diskType":    db.DiskType,
			"public":      db.Public,
		},
		TimeoutSeconds: 600, // databases take longer to reach ready than stateless services
	}, true
}

// BuildRouterRelease renders the universal "router" chart. serviceNameOf
// resolves a route's target service long ID to the release name nginx
// should proxy to; Plan registers every database, application, container
// and helm-chart release before building routers, and a route whose
// target is not among them makes this return an error.
func BuildRouterRelease(namespace string, r request.Router, serviceNameOf func(longID string) (string, bool)) (chart.Release, error) {
	routes := make([]map[string]any, 0, len(r.Routes))
	for _, route := range r.Routes {
		target, ok := serviceNameOf(route.ServiceLongID)
		if !ok {
			return chart.Release{}, fmt.Errorf("router %s: route %s targets unknown service %s", r.LongID, route.Path, route.ServiceLongID)
		}
		entry := map[string]any{
			"path":    route.Path,
			"service": target,
		}
		if route.RewriteTarget != nil {
			entry["rewriteTarget"] = *route.RewriteTarget
		}
		routes = append(routes, entry)
	}
	return chart.Release{
		Name:      releaseName(r.LongID),
		Namespace: namespace,
		ChartPath: chartRouter,
		Action:    chart.ActionDeploy,
		Overrides: map[string]any{
			"defaultDomain":       r.DefaultDomain,
			"customDomains":       r.CustomDomains,
			"generateCertificate": r.GenerateCertificate,
			"routes":              routes,
		},
		TimeoutSeconds: 300,
	}, nil
}

// resolvedChartDirFor is where the (out-of-scope) Git/registry fetch step
// is assumed to have materialized hc's chart files, regardless of origin
// kind — the workload pipeline itself never talks to a Git server or
// chart registry, it only reads the deterministic path the fetch
// collaborator writes to.
func resolvedChartDirFor(workspacePrefix string, hc request.HelmChartSource) string {
	return fmt.Sprintf("%senvironment/fetched-charts/%s", workspacePrefix, releaseName(hc.LongID))
}

// BuildHelmWrapperRelease renders the release descriptor for an
// externally-authored chart (git- or registry-sourced): the release
// points directly at the fetched chart rather than at one of the four
// built-in universal charts.
func BuildHelmWrapperRelease(namespace, workspacePrefix string, hc request.HelmChartSource) (chart.Release, error) {
	rel := chart.Release{
		Name:           releaseName(hc.LongID),
		Namespace:      namespace,
		ChartPath:      resolvedChartDirFor(workspacePrefix, hc),
		Action:         chart.ActionDeploy,
		TimeoutSeconds: 300,
	}
	switch hc.Values.Kind {
	case "raw", "":
		if hc.Values.RawYAML != "" {
			rel.Overrides = map[string]any{"_raw_values_yaml": hc.Values.RawYAML}
		}
	case "git":
		rel.ValuesFiles = []string{fmt.Sprintf("%senvironment/fetched-values/%s.yaml", workspacePrefix, releaseName(hc.LongID))}
	default:
		return chart.Release{}, fmt.Errorf("helm chart %s: unsupported values source kind %q", hc.LongID, hc.Values.Kind)
	}
	for k, v := range hc.SetValues {
		rel.SetValues = append(rel.SetValues, chart.ValueSet{Key: k, Value: v})
	}
	return rel, nil
}
