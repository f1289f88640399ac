// Package metrics records build and page generation metrics.
//
// Components receive a Recorder and default to NoopRecorder, so callers never
// check for nil:
//
//	sched := site.New(cfg, site.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The serve command activates PrometheusRecorder and exposes it on /metrics
// through HTTPHandler.
package metrics
