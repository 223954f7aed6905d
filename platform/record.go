// Package platform holds the plumbing shared by the Kick and Twitch clients:
// the normalized live record, app access tokens, authenticated JSON requests
// and classification of platform errors for the backoff tracker.
package platform

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Name identifies a streaming platform.
type Name string

const (
	Kick   Name = "kick"
	Twitch Name = "twitch"
)

// Title returns the display name used in notifications.
func (n Name) Title() string {
	switch n {
	case Kick:
		return "Kick"
	case Twitch:
		return "Twitch"
	default:
		return string(n)
	}
}

// ChannelURL returns the public channel URL for a handle.
func (n Name) ChannelURL(handle string) string {
	switch n {
	case Twitch:
		return "https://twitch.tv/" + handle
	default:
		return "https://kick.com/" + handle
	}
}

// LiveRecord is the normalized view of one channel or stream as reported by a
// platform. Missing upstream fields are left at their zero values.
type LiveRecord struct {
	Handle       string
	Live         bool
	StreamID     string
	StartedAt    string
	Title        string
	CategoryID   string
	CategoryName string
}

// NormalizeHandle trims and lowercases a slug or login. Every comparison and
// map key uses the normalized form.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ID decodes identifiers that upstream APIs send either as JSON numbers or
// strings (Kick category ids, for example).
type ID string

// UnmarshalJSON accepts a number, a string or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }
