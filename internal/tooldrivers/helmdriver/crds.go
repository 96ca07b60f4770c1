package helmdriver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/eventlog"
)

// applyCRDUpdate fetches spec.URL and server-side-applies its manifests
// before the owning release's Helm apply. When spec.Resources is
// non-empty, only documents whose
// Kind is named there are applied — the URL may bundle more CRDs than one
// release owns.
func (d *Driver) applyCRDUpdate(ctx context.Context, spec chart.CRDUpdateSpec) error {
	if d.kube == nil {
		return eventlog.New(eventlog.TagHelmChartError, "crds_update requires a kubernetes client, none configured", nil).WithSubkind("CRDUpdateNoClient")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return eventlog.Newf(eventlog.TagHelmChartError, err, "building request for crds_update url %s", spec.URL).WithSubkind("CRDUpdateFetch")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return eventlog.Newf(eventlog.TagHelmChartError, err, "fetching crds_update url %s", spec.URL).WithSubkind("CRDUpdateFetch")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return eventlog.Newf(eventlog.TagHelmChartError, nil, "fetching crds_update url %s: http %d", spec.URL, resp.StatusCode).WithSubkind("CRDUpdateFetch")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eventlog.Newf(eventlog.TagHelmChartError, err, "reading crds_update body from %s", spec.URL).WithSubkind("CRDUpdateFetch")
	}

	filtered, err := filterResources(body, spec.Resources)
	if err != nil {
		return eventlog.Newf(eventlog.TagHelmChartError, err, "filtering crds_update manifests from %s", spec.URL).WithSubkind("CRDUpdateFilter")
	}

	if err := d.kube.ApplyManifests(ctx, filtered, "clusterforge-crd-update"); err != nil {
		return eventlog.Newf(eventlog.TagHelmChartError, err, "applying crds_update manifests from %s", spec.URL).WithSubkind("CRDUpdateApply")
	}
	return nil
}

func filterResources(body []byte, kinds []string) ([]byte, error) {
	if len(kinds) == 0 {
		return body, nil
	}
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}

	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(body), 4096)
	var out bytes.Buffer
	for {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decoding manifest document: %w", err)
		}
		if len(obj.Object) == 0 {
			continue
		}
		if !allowed[obj.GetKind()] {
			continue
		}
		raw, err := obj.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshaling filtered document: %w", err)
		}
		out.WriteString("---\n")
		out.Write(raw)
		out.WriteString("\n")
	}
	return out.Bytes(), nil
}
