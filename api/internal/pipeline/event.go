package pipeline

import (
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

// Event is an S3 notification as the pipeline reads it. Object keys are kept
// raw so that one badly escaped key fails only its own item.
type Event struct {
	Records []EventRecord `json:"Records"`
}

type EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket events.S3Bucket `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// Keys lists the object keys in record order. Keys arrive URL-encoded ("+" for
// space) and are decoded; a key that fails to decode is passed through unchanged.
func (e Event) Keys() []string {
	keys := make([]string, 0, len(e.Records))
	for _, rec := range e.Records {
		key := rec.S3.Object.Key
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		keys = append(keys, key)
	}
	return keys
}
