package planner

// PreserveKnownQuirks gates the cluster-agent naming quirk (applyQuirks),
// kept representable in code rather than silently fixed. It defaults
// off: the engine ships the corrected name unless a product decision
// flips this flag. The ORGANIZATION value (OrganizationEnvVar) is not
// gated by it.
var PreserveKnownQuirks = false

// applyQuirks renames a skeleton item when PreserveKnownQuirks is set,
// reproducing a historical cluster-agent/external-dns naming
// collision: the control-plane integration chart
// was historically registered under the chart name "external-dns",
// colliding with the actual external-dns leaf controller release at level
// 5. The corrected name, "cluster-agent", ships by default.
func applyQuirks(name string) string {
	if PreserveKnownQuirks && name == "cluster-agent" {
		return "external-dns"
	}
	return name
}

// OrganizationEnvVar returns the AWS engine-workload chart's ORGANIZATION
// env var value. This has always been set from the cluster ID, not the
// organization ID; the value is load-bearing in deployed charts that
// read $ORGANIZATION expecting the cluster ID.
//
// cluster id, not organization id -- to be fixed when removing nats
func OrganizationEnvVar(clusterID, organizationID string) string {
	return clusterID
}
