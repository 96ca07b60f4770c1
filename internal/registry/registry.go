// Package registry is the engine's container registry adapter: endpoint
// resolution, image existence checks, repository deletion, and cached
// login credentials, built on go-containerregistry (pkg/name +
// pkg/v1/remote for lookups, pkg/crane for deletion).
package registry

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/imamik/clusterforge/internal/eventlog"
)

// Credentials authenticates against one registry. Some cloud variants
// refresh these via their own SDK before constructing a Client.
type Credentials struct {
	Username string
	Password string
	Insecure bool
}

// Client is one registry adapter instance, scoped to the credentials it
// was built with.
type Client struct {
	creds Credentials

	mu         sync.Mutex
	cachedAuth authn.Authenticator
}

// New builds a Client from static credentials.
func New(creds Credentials) *Client {
	return &Client{creds: creds}
}

// EndpointFor returns the registry host imageRef resolves against. The
// cluster-to-registry mapping itself is a cloud-variant concern
// resolved by the caller before calling in.
func (c *Client) EndpointFor(imageRef string) (string, error) {
	ref, err := name.ParseReference(imageRef, c.parseOptions()...)
	if err != nil {
		return "", registryError(err, "parsing image reference %s", imageRef)
	}
	return ref.Context().RegistryStr(), nil
}

// ImageExists reports whether imageRef resolves to a manifest in the
// registry, using a HEAD-equivalent remote call rather than pulling the
// full manifest body.
func (c *Client) ImageExists(ctx context.Context, imageRef string) (bool, error) {
	ref, err := name.ParseReference(imageRef, c.parseOptions()...)
	if err != nil {
		return false, registryError(err, "parsing image reference %s", imageRef)
	}
	_, err = remote.Head(ref, c.remoteOptions(ctx)...)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, registryError(err, "checking existence of %s", imageRef)
	}
	return true, nil
}

// DeleteRepository deletes imageRef's manifest, used by the workload
// pipeline's delete path when an image's last consumer is removed.
func (c *Client) DeleteRepository(ctx context.Context, imageRef string) error {
	if err := crane.Delete(imageRef, c.craneOptions(ctx)...); err != nil {
		if isNotFound(err) {
			return nil
		}
		return registryError(err, "deleting repository %s", imageRef)
	}
	return nil
}

// LoginCredentials returns this Client's authenticator, cached for the
// duration of one invocation.
func (c *Client) LoginCredentials() authn.Authenticator {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedAuth == nil {
		c.cachedAuth = &authn.Basic{Username: c.creds.Username, Password: c.creds.Password}
	}
	return c.cachedAuth
}

func (c *Client) parseOptions() []name.Option {
	if c.creds.Insecure {
		return []name.Option{name.Insecure}
	}
	return nil
}

func (c *Client) remoteOptions(ctx context.Context) []remote.Option {
	return []remote.Option{remote.WithContext(ctx), remote.WithAuth(c.LoginCredentials())}
}

func (c *Client) craneOptions(ctx context.Context) []crane.Option {
	return []crane.Option{crane.WithContext(ctx), crane.WithAuth(c.LoginCredentials())}
}

func isNotFound(err error) bool {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return terr.StatusCode == http.StatusNotFound
	}
	return false
}

func registryError(cause error, format string, args ...any) error {
	return eventlog.Newf(eventlog.TagRegistryError, cause, format, args...).WithSubkind("RemoteCallFailed")
}
