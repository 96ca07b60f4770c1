package terraform

import (
	"regexp"
	"strings"

	"github.com/imamik/clusterforge/internal/eventlog"
)

// Subkind constants refine eventlog.TagTerraformError. The action
// engine's remediation table switches on these via eventlog.HasSubkind.
const (
	SubkindS3BucketAlreadyOwnedByYou  = "S3BucketAlreadyOwnedByYou"
	SubkindInstanceTypeUnsupported    = "InstanceTypeUnsupported"
	SubkindInstanceTypeSwitchRequired = "InstanceTypeSwitchRequired"
	SubkindQuotaExceeded              = "QuotaExceeded"
	SubkindResourceNotFound           = "ResourceNotFound"
	SubkindGeneric                    = "Generic"
)

var (
	bucketOwnedRe = regexp.MustCompile(`BucketAlreadyOwnedByYou.*?bucket[_ ]?name[:=]?\s*["']?([a-zA-Z0-9.\-]+)`)
	resourceAddrRe = regexp.MustCompile(`with ([a-zA-Z0-9_.\[\]"\-]+),`)
	quotaRe        = regexp.MustCompile(`(?i)quota\s+(?:for\s+)?([a-zA-Z0-9_\-]+)\s+(?:exceeded|is exceeded)?.*?limit[:=]?\s*(\d+).*?request(?:ed)?[:=]?\s*(\d+)`)
	nodegroupRe    = regexp.MustCompile(`(?i)nodegroup[ :]+["']?([a-zA-Z0-9_\-]+)`)
)

// classify inspects a failed run's captured stdout/stderr and maps it
// to a typed Terraform error kind. Anything that doesn't match a
// recognized pattern becomes the fatal Generic subkind carrying stdout,
// stderr, and the exit code.
func classify(args []string, result runResult) *eventlog.Error {
	combined := result.Stdout + "\n" + result.Stderr

	switch {
	case strings.Contains(combined, "BucketAlreadyOwnedByYou") || strings.Contains(combined, "already own it"):
		bucket := ""
		if m := bucketOwnedRe.FindStringSubmatch(combined); len(m) > 1 {
			bucket = m[1]
		}
		resourceAddr := ""
		if m := resourceAddrRe.FindStringSubmatch(combined); len(m) > 1 {
			resourceAddr = m[1]
		}
		err := eventlog.Newf(eventlog.TagTerraformError, nil, "s3 bucket %q already owned by you (resource %s)", bucket, resourceAddr)
		return err.WithSubkind(SubkindS3BucketAlreadyOwnedByYou).WithRaw(combined)

	case strings.Contains(combined, "InvalidInstanceType") || strings.Contains(combined, "Unsupported instance type"):
		return eventlog.Newf(eventlog.TagTerraformError, nil, "unsupported instance type").WithSubkind(SubkindInstanceTypeUnsupported).WithRaw(combined)

	case strings.Contains(combined, "InstanceTypeSwitchRequired") || strings.Contains(combined, "requires replacement of instance type"):
		return eventlog.Newf(eventlog.TagTerraformError, nil, "instance type switch required").WithSubkind(SubkindInstanceTypeSwitchRequired).WithRaw(combined)

	case strings.Contains(combined, "QuotaExceeded") || strings.Contains(combined, "LimitExceeded") || strings.Contains(combined, "quota"):
		kind, limit, requested := "", "", ""
		if m := quotaRe.FindStringSubmatch(combined); len(m) == 4 {
			kind, limit, requested = m[1], m[2], m[3]
		}
		var err *eventlog.Error
		if m := nodegroupRe.FindStringSubmatch(combined); len(m) > 1 {
			// The nodegroup name is what the action engine's remediation
			// needs to tear the failed group down before retrying.
			err = eventlog.Newf(eventlog.TagTerraformError, nil, "quota exceeded for %s (limit %s, requested %s); failed nodegroup %q", kind, limit, requested, m[1])
		} else {
			err = eventlog.Newf(eventlog.TagTerraformError, nil, "quota exceeded for %s (limit %s, requested %s)", kind, limit, requested)
		}
		return err.WithSubkind(SubkindQuotaExceeded).WithRaw(combined)

	case strings.Contains(combined, "ResourceNotFoundException") || strings.Contains(combined, "doesn't exist") || strings.Contains(combined, "could not be found"):
		return eventlog.Newf(eventlog.TagTerraformError, nil, "resource not found").WithSubkind(SubkindResourceNotFound).WithRaw(combined)

	default:
		err := eventlog.Newf(eventlog.TagTerraformError, nil, "terraform %v failed with exit code %d: %s", args, result.ExitCode, firstLine(result.Stderr))
		return err.WithSubkind(SubkindGeneric).WithRaw(combined)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
