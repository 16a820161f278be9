// Package storage abstracts where photo originals and derived assets live.
//
// Every backend implements the same Provider contract: an S3-compatible
// object store, a local directory, an AList/OpenList file host, and Baidu
// Netdisk. Get and FileMeta report absence as (nil, nil) rather than an
// error, keys are rooted idempotently under each provider's configured
// root, and PublicURL derives a stable URL without network I/O.
//
// Manager owns the single active provider and hot-swaps it when the stored
// configuration changes. Swaps are all-or-nothing: if the new provider
// cannot be constructed the previous one stays active and listeners get a
// provider-error event instead of provider-changed.
package storage
