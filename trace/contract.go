package trace

// Span 属性键
const (
	AttrSource      = "harvest.source"
	AttrRunID       = "harvest.run_id"
	AttrFingerprint = "harvest.fingerprint"
	AttrAttempt     = "harvest.attempt"
	AttrPage        = "harvest.page"
	AttrCacheHit    = "harvest.cache_hit"
	AttrBackend     = "harvest.storage.backend"
	AttrTarget      = "harvest.storage.target"
	AttrRecords     = "harvest.records"
	AttrHTTPMethod  = "http.request.method"
	AttrHTTPURL     = "url.full"
	AttrHTTPStatus  = "http.response.status_code"
)

// Span 名称
const (
	SpanRun          = "harvest.run"
	SpanFetch        = "harvest.fetch"
	SpanFetchAttempt = "harvest.fetch.attempt"
	SpanStore        = "harvest.store"
	SpanStoreTarget  = "harvest.store.target"
)
