// Package nfc wraps a platform's near-field reading primitives: the
// permission query, the continuous scan session and NDEF record decoding.
package nfc

import (
	"context"
)

// PermissionName is the name the platform permission query uses for NFC.
const PermissionName = "nfc"

type PermissionState uint8

const (
	PermissionUnknown PermissionState = iota
	PermissionGranted
	PermissionDenied
)

func (s PermissionState) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Record is a single NDEF record. An empty Encoding means utf-8.
type Record struct {
	Data     []byte
	Encoding string
}

// Message is what a tag delivers on one tap.
type Message struct {
	Records []Record
}

// PermissionStatus is the result of a permission query. It keeps reporting
// state changes made outside of the application, e.g. a revocation in the
// browser settings.
type PermissionStatus interface {
	State() PermissionState

	// Listen registers for state changes and returns a function that
	// unsubscribes.
	Listen(handler func(PermissionState)) (unsubscribe func())
}

type Permissions interface {
	Query(ctx context.Context, name string) (PermissionStatus, error)
}

// Scanner is the platform's scanning primitive. Scan returns once the scan
// session has started, the callbacks are then invoked for every tap until
// ctx is cancelled.
type Scanner interface {
	Scan(ctx context.Context, onReading func(Message),
		onReadingError func(error)) error
}

// Platform is everything the package needs from the host. Permissions may
// return nil if the host cannot be queried for permissions at all.
type Platform interface {
	Supported() bool
	Permissions() Permissions
	Scanner() Scanner
}
