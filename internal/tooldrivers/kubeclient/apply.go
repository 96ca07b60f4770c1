package kubeclient

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/yaml"
)

// fieldManagerCRDUpdate is the field manager used for the CRD
// server-side-apply step that runs before a release's owning Helm
// apply.
const fieldManagerCRDUpdate = "clusterforge-crd-update"

// ApplyManifests server-side-applies every document in a multi-document
// YAML blob, skipping empty documents: decode, resolve the RESTMapping
// by GVK, then Patch with apply semantics.
func (c *client) ApplyManifests(ctx context.Context, manifests []byte, fieldManager string) error {
	if fieldManager == "" {
		fieldManager = fieldManagerCRDUpdate
	}
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 4096)

	docIndex := 0
	for {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("kubeclient: decoding manifest document %d: %w", docIndex, err)
		}
		if len(obj.Object) == 0 {
			docIndex++
			continue
		}
		if err := c.applyObject(ctx, &obj, fieldManager); err != nil {
			return fmt.Errorf("kubeclient: applying %s %s/%s: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
		}
		docIndex++
	}
	return nil
}

func (c *client) applyObject(ctx context.Context, obj *unstructured.Unstructured, fieldManager string) error {
	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" {
		return fmt.Errorf("object has no kind set")
	}

	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return fmt.Errorf("getting rest mapping for %v: %w", gvk, err)
	}

	resourceInterface := c.dynamicClient.Resource(mapping.Resource)
	namespace := obj.GetNamespace()

	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling object to json: %w", err)
	}

	opts := metav1.PatchOptions{FieldManager: fieldManager, Force: boolPtr(true)}

	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		if namespace == "" {
			namespace = "default"
		}
		_, err = resourceInterface.Namespace(namespace).Patch(ctx, obj.GetName(), types.ApplyPatchType, data, opts)
	} else {
		_, err = resourceInterface.Patch(ctx, obj.GetName(), types.ApplyPatchType, data, opts)
	}
	if err != nil {
		return fmt.Errorf("server-side apply failed: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
