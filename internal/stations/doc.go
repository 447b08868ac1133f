// Package stations implements the seven analysis stations.
//
// Every station is an station.Executor: it issues a small number of
// generative calls through a taskclient.Client, decodes each response
// strictly, clamps every externally supplied score into its documented
// range and returns a typed result. Calls inside one station run with at
// most three in flight. A station that finds a predecessor missing or
// failed substitutes a neutral default for that dependency instead of
// failing.
package stations
