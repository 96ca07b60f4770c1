package storage

import "strings"

// KubeconfigBucket returns the bucket a cluster's kubeconfig is
// persisted to, keyed by the cluster's short ID.
func KubeconfigBucket(shortClusterID string) string {
	return "qovery-kubeconfigs-" + shortClusterID
}

// KubeconfigObjectKey returns the object key the kubeconfig is stored
// under inside KubeconfigBucket.
func KubeconfigObjectKey(clusterID string) string {
	return clusterID + ".yaml"
}

// LogsBucket returns the bucket Loki logs for a cluster land in.
func LogsBucket(clusterID string) string {
	return "qovery-logs-" + clusterID
}

// ShortClusterID derives the short form of a cluster ID used in bucket
// names: dashes stripped, truncated to eight characters.
func ShortClusterID(clusterID string) string {
	s := strings.ReplaceAll(clusterID, "-", "")
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}
