package storage

import "strings"

// NormalizeRoot strips leading and trailing slashes from a configured root
// path. An empty result disables rooting.
func NormalizeRoot(root string) string {
	return strings.Trim(root, "/")
}

// WithRoot prefixes the configured root onto a caller-supplied key unless
// the key already starts with it. Re-rooting an already-rooted key is a
// no-op, so retried operations never double-prefix.
func WithRoot(root, key string) string {
	root = NormalizeRoot(root)
	key = strings.TrimLeft(key, "/")
	if root == "" {
		return key
	}
	if key == root || strings.HasPrefix(key, root+"/") {
		return key
	}
	return root + "/" + key
}

// AbsolutePath converts a rooted key to the backend's absolute path form.
func AbsolutePath(key string) string {
	if key == "" || key == "/" {
		return "/"
	}
	if strings.HasPrefix(key, "/") {
		return key
	}
	return "/" + key
}
