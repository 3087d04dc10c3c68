package common

// CronSecretHeaderName carries the shared secret of the time-driven trigger on
// HTTP requests. The gRPC metadata key is its lower-case form.
const CronSecretHeaderName = "X-Cron-Secret"

// CronSecretMetadataKey is the gRPC metadata key for the trigger secret.
const CronSecretMetadataKey = "x-cron-secret"

// DefaultDispatchBatchSize bounds a single due-post batch.
const DefaultDispatchBatchSize = 10
