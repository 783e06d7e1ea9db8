// Package event decodes bucket change notifications delivered by the queue.
package event

import (
	"encoding/json"
	"strings"

	perrors "github.com/Aman-CERP/ragingest/internal/errors"
)

// Kind classifies a storage change.
type Kind int

const (
	// KindUnknown is any event name the router does not recognise.
	KindUnknown Kind = iota
	// KindAdded is an ObjectCreated:* notification.
	KindAdded
	// KindRemoved is an ObjectRemoved:* notification.
	KindRemoved
)

// Event name prefixes used by bucket notifications.
const (
	PrefixCreated = "ObjectCreated"
	PrefixRemoved = "ObjectRemoved"
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAdded:
		return "added"
	case KindRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf maps an event name to its Kind by prefix.
func KindOf(eventName string) Kind {
	switch {
	case strings.HasPrefix(eventName, PrefixCreated):
		return KindAdded
	case strings.HasPrefix(eventName, PrefixRemoved):
		return KindRemoved
	default:
		return KindUnknown
	}
}

// Event is a single storage change carried inside a queue message.
type Event struct {
	Kind      Kind
	EventName string
	Bucket    string
	// ObjectKey is the key exactly as delivered, still URL-encoded.
	ObjectKey string
}

// Notification is the JSON document a queue message body carries.
type Notification struct {
	Records []Record `json:"Records"`
}

// Record is one entry of Notification.Records.
type Record struct {
	EventName string   `json:"eventName"`
	S3        S3Entity `json:"s3"`
}

// S3Entity locates the changed object.
type S3Entity struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// Parse decodes a message body into its events, preserving record order.
// A body that is not a notification document yields ERR_407_INVALID_MESSAGE.
func Parse(messageID string, body []byte) ([]Event, error) {
	if err := validate(body); err != nil {
		return nil, perrors.MalformedMessageError(messageID, err)
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, perrors.MalformedMessageError(messageID, err)
	}

	events := make([]Event, 0, len(n.Records))
	for _, r := range n.Records {
		events = append(events, Event{
			Kind:      KindOf(r.EventName),
			EventName: r.EventName,
			Bucket:    r.S3.Bucket.Name,
			ObjectKey: r.S3.Object.Key,
		})
	}
	return events, nil
}

// Encode builds a message body holding the given events.
func Encode(events ...Event) ([]byte, error) {
	n := Notification{Records: make([]Record, 0, len(events))}
	for _, e := range events {
		var r Record
		r.EventName = e.EventName
		r.S3.Bucket.Name = e.Bucket
		r.S3.Object.Key = e.ObjectKey
		n.Records = append(n.Records, r)
	}
	return json.Marshal(n)
}

// Created returns an ObjectCreated:Put event for bucket/key.
func Created(bucket, key string) Event {
	return Event{Kind: KindAdded, EventName: PrefixCreated + ":Put", Bucket: bucket, ObjectKey: key}
}

// Removed returns an ObjectRemoved:Delete event for bucket/key.
func Removed(bucket, key string) Event {
	return Event{Kind: KindRemoved, EventName: PrefixRemoved + ":Delete", Bucket: bucket, ObjectKey: key}
}

