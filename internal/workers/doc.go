/*
Package workers determines worker pool sizes that respect container CPU
limits.

runtime.NumCPU() reports the host machine's core count even when a cgroup
limit caps the container far below it, while GOMAXPROCS (Go 1.19+) tracks
the actual limit. Every helper here sizes pools from GOMAXPROCS:

	// CPU-bound work (image decoding, thumbnail generation)
	n := workers.ForCPU(8)

	// I/O-bound work (storage fetches, geocoding calls)
	n := workers.ForIO(16)

	// Mixed pipelines (fetch, process, upload)
	n := workers.ForMixed(12)

All helpers honor the PIPELINE_WORKERS environment variable as a manual
override, which is useful when tuning a deployment without rebuilding.
Always pass a sensible limit: pool size should also respect downstream
resources like the database connection pool.
*/
package workers
