package redis

import "strings"

const keyNamespace = "artisan"

// Keyspace builds namespaced keys. Blank segments are skipped.
type Keyspace struct{}

func (Keyspace) IdempotencyKey(scope, id string) string {
	return joinKey("idempotency", scope, id)
}

func (Keyspace) RateLimitKey(scope, bucket string) string {
	return joinKey("rate_limit", scope, bucket)
}

// WebhookEventKey records a provider event id as processed.
func (Keyspace) WebhookEventKey(provider, eventID string) string {
	return joinKey("webhook", provider, eventID)
}

func joinKey(segments ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, segment := range segments {
		if segment = strings.TrimSpace(segment); segment != "" {
			b.WriteByte(':')
			b.WriteString(segment)
		}
	}
	return b.String()
}
