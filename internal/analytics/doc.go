// ABOUTME: Package analytics buffers widget usage events and flushes them in batches
// ABOUTME: Delivery is best effort; nothing here ever surfaces an error to the user

// Package analytics queues usage events in memory and flushes them on a
// fixed interval and when the page is hidden.
//
// Every event carries a session id kept in page storage under SessionKey.
// The id slides forward on each tracked event and expires after a period of
// inactivity. Only Track extends it.
package analytics
