package config

import (
	"os"
	"strings"
)

// LenientAmounts restores the legacy behavior of coercing an unparseable
// writeoff amount to zero instead of rejecting the input.
//
// Set via env:
// - JOURNAL_LENIENT_AMOUNTS=true
func LenientAmounts() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("JOURNAL_LENIENT_AMOUNTS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// MirrorEventsToPubSub enables mirroring push-update events to a GCP Pub/Sub
// topic in addition to the Redis channel. Requires JOURNAL_PUBSUB_TOPIC and a
// reachable Pub/Sub project.
//
// Set via env:
// - JOURNAL_MIRROR_PUBSUB=true
func MirrorEventsToPubSub() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("JOURNAL_MIRROR_PUBSUB")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
