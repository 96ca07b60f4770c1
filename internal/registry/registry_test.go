package registry

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

func TestEndpointFor_ParsesRegistryHost(t *testing.T) {
	c := New(Credentials{})
	endpoint, err := c.EndpointFor("registry.example.com/my-app:v1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com", endpoint)
}

func TestEndpointFor_DefaultsToDockerHub(t *testing.T) {
	c := New(Credentials{})
	endpoint, err := c.EndpointFor("library/nginx:latest")
	require.NoError(t, err)
	assert.Equal(t, "index.docker.io", endpoint)
}

func TestEndpointFor_InvalidReferenceErrors(t *testing.T) {
	c := New(Credentials{})
	_, err := c.EndpointFor("UPPERCASE_NOT_ALLOWED")
	assert.Error(t, err)
}

func TestIsNotFound_MatchesTransport404(t *testing.T) {
	err := &transport.Error{StatusCode: http.StatusNotFound}
	assert.True(t, isNotFound(err))
}

func TestIsNotFound_OtherStatusIsNotNotFound(t *testing.T) {
	err := &transport.Error{StatusCode: http.StatusForbidden}
	assert.False(t, isNotFound(err))
}

func TestLoginCredentials_CachedAcrossCalls(t *testing.T) {
	c := New(Credentials{Username: "u", Password: "p"})
	first := c.LoginCredentials()
	second := c.LoginCredentials()
	assert.Same(t, first, second)
}
