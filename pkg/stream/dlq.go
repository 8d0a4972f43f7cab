package stream

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// deadLetter writes the exhausted message to streamName+dlqSuffix,
// annotated with why it was dead-lettered and where it came from (spec
// §4.8 "dead-letter record fields").
func deadLetter(ctx context.Context, client *redis.Client, dlqStream string, values map[string]any, reason, originalStream, originalID string) error {
	fields := make(map[string]any, len(values)+4)
	for k, v := range values {
		fields[k] = v
	}
	fields["deadLetterReason"] = reason
	fields["deadLetterTimestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	fields["originalStream"] = originalStream
	fields["originalId"] = originalID

	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: fields,
	}).Err()
}
