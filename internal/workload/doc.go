// Package workload implements the workload deployment pipeline: for one
// EnvironmentRequest, it resolves each application's image
// (build-or-pull), renders a Helm release descriptor per service from a
// universal per-kind chart (app / container / database-container /
// router / helm-wrapper), composes levels (databases -> {applications,
// containers} -> helm-charts -> routers), and hands the result to
// internal/executor.
package workload
