package helmdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoCRDManifest = `
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: certificates.cert-manager.io
---
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: issuers.cert-manager.io
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: unrelated
`

func TestFilterResources_NoFilterReturnsEverything(t *testing.T) {
	out, err := filterResources([]byte(twoCRDManifest), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte(twoCRDManifest), out)
}

func TestFilterResources_FiltersByKind(t *testing.T) {
	out, err := filterResources([]byte(twoCRDManifest), []string{"CustomResourceDefinition"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "certificates.cert-manager.io")
	assert.Contains(t, string(out), "issuers.cert-manager.io")
	assert.NotContains(t, string(out), "unrelated")
}
