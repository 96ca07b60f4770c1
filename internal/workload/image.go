package workload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/request"
)

// fullSHA matches a complete 40-character git commit hash, the shape a
// ref has already been resolved to.
var fullSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)

// BuildPlatform is the external image-build-from-source platform,
// invoked only when ResolveImage finds no existing image for an
// application's commit.
type BuildPlatform interface {
	Build(ctx context.Context, req BuildRequest) error
}

// BuildRequest carries everything the build platform needs to build
// app's image from source and push it to targetImageRef.
type BuildRequest struct {
	GitURL         string
	Commit         string
	DockerfilePath string
	BuildArgs      map[string]string
	TargetImageRef string
}

// RegistryClient is the subset of *internal/registry.Client the image
// resolver depends on, defined consumer-side like the other tool-driver
// interfaces in this module so tests can supply a fake registry.
type RegistryClient interface {
	ImageExists(ctx context.Context, imageRef string) (bool, error)
	DeleteRepository(ctx context.Context, imageRef string) error
}

// ImageKey computes the image-uniqueness key: a hash of (git URL,
// commit, Dockerfile path, build args). Build args are
// sorted by key first so the hash is independent of map iteration order.
func ImageKey(app request.Application) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n", app.GitURL, app.Commit, app.DockerfilePath)
	keys := make([]string, 0, len(app.BuildArgs))
	for k := range app.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, app.BuildArgs[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ImageRefFor builds the shared-registry image reference app's build
// would push to, keyed by ImageKey so two applications with byte-identical
// build inputs resolve to the same image.
func ImageRefFor(sharedRegistryBase string, app request.Application) string {
	return fmt.Sprintf("%s/%s:%s", strings.TrimSuffix(sharedRegistryBase, "/"), ImageKey(app), app.Commit)
}

// ResolveCommit resolves commitOrRef against gitURL's remote refs (an
// `ls-remote`-equivalent protocol exchange via go-git, without a working
// tree clone) so a branch name or short ref in the request pins to the
// concrete commit the image-uniqueness key requires. A ref that already
// looks like a full 40-character SHA is returned unchanged with no
// network round trip; most requests pass a literal commit hash.
func ResolveCommit(gitURL, commitOrRef string) (string, error) {
	if fullSHA.MatchString(commitOrRef) {
		return commitOrRef, nil
	}
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{Name: "origin", URLs: []string{gitURL}})
	refs, err := remote.List(&git.ListOptions{})
	if err != nil {
		return "", eventlog.Newf(eventlog.TagBuildError, err, "listing remote refs for %s", gitURL).WithSubkind("GitRemoteUnreachable")
	}
	for _, ref := range refs {
		if ref.Name().Short() == commitOrRef || ref.Name().String() == commitOrRef {
			return ref.Hash().String(), nil
		}
	}
	return "", eventlog.Newf(eventlog.TagBuildError, nil, "ref %q not found on remote %s", commitOrRef, gitURL).WithSubkind("GitRefNotFound")
}

// ResolveImage resolves one application's image: if no image exists yet
// for app's (git URL, commit, Dockerfile path, build args) key, invoke
// build to produce and push one; otherwise return the existing
// reference unchanged. built reports whether a build actually ran, so
// callers (and tests) can assert no new image was built.
func ResolveImage(ctx context.Context, registry RegistryClient, build BuildPlatform, sharedRegistryBase string, app request.Application) (imageRef string, built bool, err error) {
	imageRef = ImageRefFor(sharedRegistryBase, app)

	exists, err := registry.ImageExists(ctx, imageRef)
	if err != nil {
		return "", false, fmt.Errorf("workload: checking image existence for %s: %w", app.Name, err)
	}
	if exists {
		return imageRef, false, nil
	}

	if build == nil {
		return "", false, eventlog.Newf(eventlog.TagBuildError, nil, "application %s: no image found for commit %s and no build platform configured", app.Name, app.Commit).WithSubkind("BuildPlatformUnavailable")
	}

	if err := build.Build(ctx, BuildRequest{
		GitURL:         app.GitURL,
		Commit:         app.Commit,
		DockerfilePath: app.DockerfilePath,
		BuildArgs:      app.BuildArgs,
		TargetImageRef: imageRef,
	}); err != nil {
		return "", false, eventlog.Newf(eventlog.TagBuildError, err, "building %s from %s@%s", app.Name, app.GitURL, app.Commit).WithSubkind("BuildFailed")
	}
	return imageRef, true, nil
}
