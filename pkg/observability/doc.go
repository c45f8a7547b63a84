/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured audit logs.
*/
package observability
