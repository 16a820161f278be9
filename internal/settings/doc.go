// Package settings stores storage provider configurations in the shared
// SQLite database. At most one configuration is active at a time; swapping
// the active row is what drives a storage provider hot swap.
//
// The store also implements storage.ConfigStore so the Baidu provider can
// persist rotated refresh tokens with a compare-and-swap guard.
package settings
