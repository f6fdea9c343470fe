// Package observability exports knncache metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	pc, err := observability.NewPrometheusCollector(reg)
//	c, err := cache.New(ds, func(o *cache.Options) { o.Metrics = pc })
//
// Collectors are registered on the caller's registry, never on the global
// default, so several can coexist in one process and in tests.
package observability
