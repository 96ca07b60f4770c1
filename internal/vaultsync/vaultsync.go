// Package vaultsync implements the engine's best-effort secrets push: a
// typed ClusterSecrets record pushed to an injected Client after a
// cluster action completes. No read path is required, and no package
// state is held — Client is injected at call sites, never a
// package-level singleton.
package vaultsync

import "context"

// ClusterSecrets is the record pushed to the vault after a successful
// infrastructure action.
type ClusterSecrets struct {
	CloudVariant        string
	Region              string
	ClusterID           string
	OrganizationID      string
	KubeconfigBase64    string
	GrafanaAdminUser    string
	GrafanaAdminPass    string
	ProviderCredentials map[string]string
	TestCluster         bool
}

// Client pushes ClusterSecrets to a secrets vault. The concrete
// implementation (HashiCorp Vault, a cloud secrets manager, etc.) is an
// external collaborator; this package only defines the contract and the
// best-effort wrapper around it.
type Client interface {
	Push(ctx context.Context, secrets ClusterSecrets) error
}

// Sync pushes secrets via client. A push failure never propagates: warn
// receives the error for the caller's own logging, and Sync returns
// regardless.
func Sync(ctx context.Context, client Client, secrets ClusterSecrets, warn func(error)) {
	if client == nil {
		return
	}
	if err := client.Push(ctx, secrets); err != nil && warn != nil {
		warn(err)
	}
}
