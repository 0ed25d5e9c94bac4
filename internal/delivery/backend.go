package delivery

import "context"

// PutOptions carries per-object metadata for a backend write.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// Backend stores rendered variant bytes and maps storage keys to fetchable
// URLs. Implementations must tolerate repeated Puts of the same key with
// identical content, since re-ingestion of deduplicated assets re-uploads.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	URL(key string) string
	Delete(ctx context.Context, keys ...string) error
	Name() string
}
