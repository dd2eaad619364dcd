//go:build !chtdebug

package chashtable

// poisonRedirectedBucket is a no-op in production builds.
func poisonRedirectedBucket[V any](b *bucket[V]) {}
