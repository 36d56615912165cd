package wave

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNoDevices is returned when the fleet roster could not be retrieved.
	// Nothing can be pulled without it, so callers treat it as fatal.
	ErrNoDevices = errors.New("failed to receive device list")

	// ErrMalformedPayload marks a successful response whose body is not valid JSON.
	ErrMalformedPayload = errors.New("malformed json payload")

	// ErrMisuse marks a programming error in how a collaborator was called.
	ErrMisuse = errors.New("misuse")
)

// Client abstracts the remote Spotter API.
type Client interface {
	ListDevices(ctx context.Context) ([]Device, error)
	FetchWaveData(ctx context.Context, device Device, window Window) (json.RawMessage, error)
}

// Store is the contract for persisting daily reading documents.
type Store interface {
	// Prepare creates the output root and one directory per device.
	Prepare(devices []Device) error
	// Save creates or overwrites the artifact for (device, day).
	Save(device Device, day Day, doc json.RawMessage) error
	// Root is the output directory, used for log lines.
	Root() string
}

// fatal reports whether a per-item fetch error must abort the whole run.
func fatal(err error) bool {
	return errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrMisuse)
}
