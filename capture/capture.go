// Package capture defines the capture source abstraction: enumerable video
// input devices producing live streams from which still frames can be
// snapshotted as JPEG bytes.
package capture

import (
	"errors"
	"sync"
)

// Capture failure sentinels.
var (
	// ErrCameraUnavailable means no capture backend exists in this
	// environment.
	ErrCameraUnavailable = errors.New("camera not supported in this environment")

	// ErrPermissionDenied means the environment refused access to the device.
	ErrPermissionDenied = errors.New("camera access denied")

	// ErrNotReady means a snapshot was requested before any frame was
	// decodable.
	ErrNotReady = errors.New("no frame decoded yet")

	// ErrUnknownDevice means the requested device ID does not exist.
	ErrUnknownDevice = errors.New("unknown capture device")
)

// DeviceInfo describes one enumerable video input device.
// Label may be empty until the source has been opened with permission.
type DeviceInfo struct {
	ID    string
	Label string
}

// Source exposes enumerable devices and produces live streams.
type Source interface {
	// ListDevices enumerates available video input devices.
	ListDevices() ([]DeviceInfo, error)

	// Start opens a stream on the given device. An empty deviceID selects
	// the default device.
	Start(deviceID string) (*Stream, error)

	// Snapshot captures the current frame of the stream as JPEG bytes.
	// Returns ErrNotReady when no frame has been decoded yet.
	Snapshot(stream *Stream) ([]byte, error)
}

// Stream is one live capture stream. At most one frame producer feeds it;
// stopping is idempotent and leaves zero live tracks.
type Stream struct {
	mu       sync.Mutex
	deviceID string
	tracks   int
	stopFn   func()
}

// NewStream creates a live stream for the given device with one video track.
// stopFn, when non-nil, runs once on the first Stop.
func NewStream(deviceID string, stopFn func()) *Stream {
	return &Stream{deviceID: deviceID, tracks: 1, stopFn: stopFn}
}

// DeviceID returns the device this stream was opened on.
func (s *Stream) DeviceID() string {
	return s.deviceID
}

// LiveTracks returns the number of live tracks: 1 while active, 0 after Stop.
func (s *Stream) LiveTracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

// Stop stops all tracks. Calling Stop on an already-stopped stream is a no-op.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracks == 0 {
		return
	}
	s.tracks = 0
	if s.stopFn != nil {
		s.stopFn()
	}
}
