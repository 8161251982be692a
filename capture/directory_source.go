package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ThomasConway01/OutfitMatcher/media"
)

// frameExtensions are the image formats a directory device may contain.
var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// DirectorySource is a capture source backed by the filesystem: every
// subdirectory of the root is one device, and its image files are the frames
// the device produces, in name order. Snapshots advance through the frames
// and always come back as bounded JPEG bytes.
//
// This is the headless stand-in for a browser media-capture backend; tests
// and the console front end use it interchangeably with any future real one.
type DirectorySource struct {
	mu     sync.Mutex
	root   string
	config media.FrameConfig
	// cursor tracks the next frame index per device, so consecutive
	// snapshots step through the device's frames.
	cursor map[string]int
}

// NewDirectorySource creates a source rooted at dir.
// Returns ErrCameraUnavailable when the root does not exist.
func NewDirectorySource(dir string, config media.FrameConfig) (*DirectorySource, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCameraUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open capture root: %w", err)
	}
	if !info.IsDir() {
		return nil, ErrCameraUnavailable
	}
	return &DirectorySource{
		root:   dir,
		config: config,
		cursor: make(map[string]int),
	}, nil
}

// ListDevices enumerates the root's subdirectories as devices. Labels are
// empty for unreadable devices, mirroring permission-gated label behavior.
func (s *DirectorySource) ListDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		if _, err := os.ReadDir(filepath.Join(s.root, entry.Name())); err != nil {
			label = ""
		}
		devices = append(devices, DeviceInfo{ID: entry.Name(), Label: label})
	}
	return devices, nil
}

// Start opens a stream on the given device. An empty deviceID selects the
// first device in name order.
func (s *DirectorySource) Start(deviceID string) (*Stream, error) {
	if deviceID == "" {
		devices, err := s.ListDevices()
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, ErrCameraUnavailable
		}
		deviceID = devices[0].ID
	}

	dir := filepath.Join(s.root, deviceID)
	if _, err := os.ReadDir(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrUnknownDevice
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("failed to open device %s: %w", deviceID, err)
	}

	return NewStream(deviceID, nil), nil
}

// Snapshot reads the stream's next frame, re-encoded as a bounded JPEG.
// Returns ErrNotReady when the device has no decodable frame yet.
func (s *DirectorySource) Snapshot(stream *Stream) ([]byte, error) {
	if stream == nil || stream.LiveTracks() == 0 {
		return nil, ErrNotReady
	}

	frames, err := s.listFrames(stream.DeviceID())
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNotReady
	}

	s.mu.Lock()
	idx := s.cursor[stream.DeviceID()] % len(frames)
	s.cursor[stream.DeviceID()] = idx + 1
	s.mu.Unlock()

	data, err := os.ReadFile(frames[idx])
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	frame, err := media.EncodeFrame(data, s.config)
	if err != nil {
		// An undecodable file means the device hasn't produced a usable
		// frame, the same condition as a stream with zero dimensions.
		return nil, ErrNotReady
	}
	return frame.Data, nil
}

func (s *DirectorySource) listFrames(deviceID string) ([]string, error) {
	dir := filepath.Join(s.root, deviceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read device %s: %w", deviceID, err)
	}

	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(frames)
	return frames, nil
}
