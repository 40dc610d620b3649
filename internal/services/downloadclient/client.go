// Package downloadclient abstracts external download clients behind a
// single interface with one implementation per client family, selected
// through a registry keyed by a type tag. The rest of the pipeline never
// branches on client type.
package downloadclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrJobNotFound means the job is absent from the client
var ErrJobNotFound = errors.New("job not found in client")

// Config identifies one configured client instance
type Config struct {
	Type   string // adapter type tag, e.g. "torbox", "sabnzbd"
	URL    string
	APIKey string
}

// State is the normalized progress state reported by a client
type State string

const (
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateSeeding     State = "seeding"
	StateFailed      State = "failed"
)

// Terminal reports whether the state allows import to start
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateSeeding
}

// Status is the normalized live status of one client job
type Status struct {
	State    State
	Progress float64 // 0..100
	SavePath string
	Message  string // client-reported error detail, if any
}

// Release is a ranked winner handed to a client for download
type Release struct {
	Title       string
	DownloadURL string
}

// Job is a client-side job listing entry, used for untracked matching
type Job struct {
	ID   string
	Name string
}

// Client is the adapter interface implemented per client family
type Client interface {
	// Type returns the adapter's type tag
	Type() string
	// Add submits a release for download and returns the client job id
	Add(ctx context.Context, cfg Config, release Release) (string, error)
	// GetStatus fetches the live status of a job; ErrJobNotFound when
	// the client no longer knows the job
	GetStatus(ctx context.Context, cfg Config, jobID string) (*Status, error)
	// RemoveDownload deletes a finished or failed job from the client
	RemoveDownload(ctx context.Context, cfg Config, jobID string) error
	// TestConnection verifies connectivity and returns client info
	TestConnection(ctx context.Context, cfg Config) (string, error)
	// List enumerates all jobs currently known to the client
	List(ctx context.Context, cfg Config) ([]Job, error)
}

// Registry selects adapters by type tag
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds an adapter to the registry
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Type()] = c
}

// Get returns the adapter for a type tag
func (r *Registry) Get(typeTag string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[typeTag]
	if !ok {
		return nil, fmt.Errorf("no download client adapter registered for type %q", typeTag)
	}
	return c, nil
}
