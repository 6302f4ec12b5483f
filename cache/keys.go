package cache

// Keyspace. These constants are the contract between the cache, the
// orchestrator, the worker, and the auth layer; call sites never build keys
// from raw string literals.
//
//	api_key:{sha256hex}        JSON APIKeyRecord
//	extraction_job:{job_id}    JSON extraction job
//	{sha256hex}                JSON Tier-C ExtractionResult (bare, no prefix)
//	queue:extraction           job envelopes {doc_id}
//	queue:dlq                  failure envelopes {...job, error, failed_at}
//	retry_counts:{job_id}      per-job retry counter
//
// Queues are keyspace prefixes in the KV: members live at
// {queue}:item:{seq} where seq is a zero-padded nanosecond timestamp plus a
// UUID tiebreaker, popped in ascending (FIFO) order.
const (
	APIKeyPrefix     = "api_key:"
	JobPrefix        = "extraction_job:"
	QueueExtraction  = "queue:extraction"
	QueueDLQ         = "queue:dlq"
	RetryCountPrefix = "retry_counts:"
)

// APIKeyKey returns the storage key for an API key record by its sha-256
// hex digest.
func APIKeyKey(sha256hex string) string {
	return APIKeyPrefix + sha256hex
}

// JobKey returns the storage key for an extraction job record.
func JobKey(jobID string) string {
	return JobPrefix + jobID
}

// ResultKey returns the storage key for a Tier-C extraction result: the
// bare window fingerprint.
func ResultKey(sha256hex string) string {
	return sha256hex
}

// RetryCountKey returns the storage key for a job's retry counter.
func RetryCountKey(jobID string) string {
	return RetryCountPrefix + jobID
}
