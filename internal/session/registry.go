// Package session owns the table of live camera sessions. The registry
// outlives tile controllers, so an active media source survives tile
// teardown and can be reattached on remount without re-acquiring the device.
package session

import (
	"sync"

	"github.com/carewatch/streaming-console/internal/media"
)

// Mode identifies the media strategy behind a session.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeUpload Mode = "upload"
)

// CameraSession holds the owned media source for one camera tile plus the
// auto-resume intent that persists across tile teardown. Entries are mutated
// only by start/stop/replace on the same camera id, always as a whole.
type CameraSession struct {
	CameraID   string
	Mode       Mode
	Source     media.Source
	AutoResume bool
}

// Registry maps camera ids to their sessions. It is an explicit dependency
// of the tile controller, not a package-level global.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CameraSession
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*CameraSession)}
}

// Get returns the session for a camera id.
func (r *Registry) Get(cameraID string) (*CameraSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[cameraID]
	return s, ok
}

// Set replaces the whole entry for a camera id.
func (r *Registry) Set(cameraID string, s *CameraSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[cameraID] = s
}

// Clear removes the entry for a camera id. The caller releases the media
// source; the registry only drops the reference.
func (r *Registry) Clear(cameraID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cameraID)
}
