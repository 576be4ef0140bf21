// Package obs holds the invauthd process plumbing: the zap logger, the
// Prometheus scrape server and the OTLP meter provider.
package obs
