package relay

import (
	"errors"
	"time"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

// Operations understood by the relay.
const (
	OpGet     = "get"
	OpSet     = "set"
	OpMerge   = "merge"
	OpDelete  = "delete"
	OpCAS     = "cas"
	OpWatch   = "watch"
	OpUnwatch = "unwatch"
)

// Error codes carried in responses.
const (
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeClosed     = "closed"
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
)

// Request is one client message. RID correlates the response; for watch it
// also names the subscription.
type Request struct {
	RID        string         `json:"rid"`
	Op         string         `json:"op"`
	Collection string         `json:"collection,omitempty"`
	ID         string         `json:"id,omitempty"`
	Data       docstore.Doc   `json:"data,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Version    int64          `json:"version,omitempty"`
	Delete     bool           `json:"delete,omitempty"` // cas removes instead of writing Data
	Sub        string         `json:"sub,omitempty"`    // unwatch target
}

// Key returns the addressed document.
func (r Request) Key() docstore.Key {
	return docstore.Key{Collection: r.Collection, ID: r.ID}
}

// Response answers a request (RID set) or carries a watch event (Sub set).
type Response struct {
	RID      string    `json:"rid,omitempty"`
	Sub      string    `json:"sub,omitempty"`
	OK       bool      `json:"ok"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Ended    bool      `json:"ended,omitempty"`
}

// Snapshot is the wire form of docstore.Snapshot.
type Snapshot struct {
	Collection string       `json:"collection"`
	ID         string       `json:"id"`
	Exists     bool         `json:"exists"`
	Data       docstore.Doc `json:"data,omitempty"`
	Version    int64        `json:"version"`
	UpdatedAt  int64        `json:"updated_at,omitempty"` // unix ms
}

// FromSnapshot converts a store snapshot to its wire form.
func FromSnapshot(s docstore.Snapshot) *Snapshot {
	out := &Snapshot{
		Collection: s.Key.Collection,
		ID:         s.Key.ID,
		Exists:     s.Exists,
		Data:       s.Data,
		Version:    s.Version,
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = s.UpdatedAt.UnixMilli()
	}
	return out
}

// Store converts the wire form back to a store snapshot.
func (s *Snapshot) Store() docstore.Snapshot {
	if s == nil {
		return docstore.Snapshot{}
	}
	out := docstore.Snapshot{
		Key:     docstore.Key{Collection: s.Collection, ID: s.ID},
		Exists:  s.Exists,
		Data:    s.Data,
		Version: s.Version,
	}
	if s.UpdatedAt != 0 {
		out.UpdatedAt = time.UnixMilli(s.UpdatedAt)
	}
	return out
}

// CodeOf maps a store error to a wire code.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, docstore.ErrConflict):
		return CodeConflict
	case errors.Is(err, docstore.ErrClosed):
		return CodeClosed
	default:
		return CodeInternal
	}
}

// ErrorOf maps a failed response back to an error, keeping the sentinels
// callers test with errors.Is.
func ErrorOf(r Response) error {
	if r.OK {
		return nil
	}
	var base error
	switch r.Code {
	case CodeNotFound:
		base = docstore.ErrNotFound
	case CodeConflict:
		base = docstore.ErrConflict
	case CodeClosed:
		base = docstore.ErrClosed
	default:
		return &RemoteError{Code: r.Code, Message: r.Message}
	}
	return &RemoteError{Code: r.Code, Message: r.Message, base: base}
}

// RemoteError is an error reported by the relay.
type RemoteError struct {
	Code    string
	Message string
	base    error
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "relay: " + e.Code
	}
	return "relay: " + e.Code + ": " + e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.base
}
