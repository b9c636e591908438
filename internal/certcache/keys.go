package certcache

import (
	"fmt"

	"github.com/albedosehen/certvault/internal/certstore"
)

// ListKey builds the cache key for one page of a store listing. Offset and
// limit are part of the key so each page caches independently.
func ListKey(store certstore.Store, offset, limit int) string {
	return fmt.Sprintf("list:%s:off=%d:lim=%d", store, offset, limit)
}

// DetailKey builds the cache key for a single certificate detail lookup.
func DetailKey(store certstore.Store, domain string) string {
	return fmt.Sprintf("detail:%s:%s", store, domain)
}

// storePattern matches every key of a store regardless of projection. Both
// key shapes put the store name after the first colon.
func storePattern(store certstore.Store) string {
	return fmt.Sprintf("*:%s*", store)
}
