// Package store holds the persisted notifier document: settings, tracked
// streamers, active notification records and per-platform health. The JSON
// field names match the data.json written by earlier versions of the bot so an
// existing file can be loaded as-is.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/noxrp/stream-notifier/platform"
)

// Defaults mirrored by config when env vars are unset.
const (
	DefaultKeywordRegex         = `nox\s*rp`
	DefaultIntervalSeconds      = 60
	MinIntervalSeconds          = 10
	MaxIntervalSeconds          = 3600
	DefaultDiscoveryTwitchPages = 5
	DefaultDiscoveryKickLimit   = 100
	DefaultTwitchGameID         = "32982"
	DefaultKickCategoryName     = "Grand Theft Auto V"
)

// Settings are the operator-tunable knobs.
type Settings struct {
	NotifyChannelID      string `json:"notifyChannelId,omitempty" yaml:"notifyChannelId,omitempty"`
	MentionHere          bool   `json:"mentionHere" yaml:"mentionHere"`
	KeywordRegex         string `json:"keywordRegex" yaml:"keywordRegex"`
	CheckIntervalSeconds int    `json:"checkIntervalSeconds" yaml:"checkIntervalSeconds"`

	DiscoveryMode        bool `json:"discoveryMode" yaml:"discoveryMode"`
	DiscoveryTwitchPages int  `json:"discoveryTwitchPages" yaml:"discoveryTwitchPages"`
	DiscoveryKickLimit   int  `json:"discoveryKickLimit" yaml:"discoveryKickLimit"`

	TwitchGameID           string      `json:"twitchGta5GameId" yaml:"twitchGta5GameId"`
	KickCategoryName       string      `json:"kickGtaCategoryName" yaml:"kickGtaCategoryName"`
	KickCategoryID         platform.ID `json:"kickGtaCategoryId,omitempty" yaml:"kickGtaCategoryId,omitempty"`
	KickCategoryResolvedAt int64       `json:"kickGtaCategoryResolvedAt" yaml:"kickGtaCategoryResolvedAt,omitempty"`
}

// IntervalSeconds returns the tick interval clamped to [10, 3600].
func (s Settings) IntervalSeconds() int {
	return ClampInt(s.CheckIntervalSeconds, MinIntervalSeconds, MaxIntervalSeconds, DefaultIntervalSeconds)
}

// Interval is IntervalSeconds as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds()) * time.Second
}

// Streamer is one tracked channel. Kick lists serialize the handle as
// "slug", Twitch lists as "login".
type Streamer struct {
	Handle    string `yaml:"handle"`
	DiscordID string `yaml:"discordId,omitempty"`
}

// ActiveMessage records the notification currently posted for a streamer.
type ActiveMessage struct {
	MessageID  string `json:"messageId"`
	SessionKey string `json:"sessionKey"`
	CreatedAt  int64  `json:"createdAt"`
	// ChannelID is the channel the message was posted in. Older documents
	// lack it; the current notify channel is assumed then.
	ChannelID string `json:"channelId,omitempty"`
	// Superseded lists messages of earlier sessions whose delete failed.
	// They are retried whenever the record is reconciled, and the record is
	// not dropped before they are gone.
	Superseded []MessageRef `json:"supersededMessages,omitempty"`
}

// MessageRef points at a posted message.
type MessageRef struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId,omitempty"`
}

// PlatformHealth is the persisted failure and backoff state of a platform.
// Timestamps are unix milliseconds, zero meaning unset.
type PlatformHealth struct {
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	NextAllowedAt       int64  `json:"nextAllowedAt"`
	LastError           string `json:"lastError,omitempty"`
	LastErrorAt         int64  `json:"lastErrorAt"`
	LastSuccessAt       int64  `json:"lastSuccessAt"`
	LastLoggedAt        int64  `json:"lastLoggedAt"`
}

// Runtime is the "state" section of the document.
type Runtime struct {
	KickActive         map[string]ActiveMessage `json:"kickActiveMessages"`
	TwitchActive       map[string]ActiveMessage `json:"twitchActiveMessages"`
	KickHealth         PlatformHealth           `json:"kickHealth"`
	TwitchHealth       PlatformHealth           `json:"twitchHealth"`
	LastTickAt         int64                    `json:"lastTickAt"`
	LastTickDurationMs int64                    `json:"lastTickDurationMs"`
}

// State is the whole persisted document.
type State struct {
	Settings Settings
	Kick     []Streamer
	Twitch   []Streamer
	Runtime  Runtime

	// extra keeps top-level sections this program does not own (fivem,
	// tickets, welcome) so saving never drops them.
	extra map[string]json.RawMessage
}

// Defaults returns a fresh document with default settings.
func Defaults() *State {
	return &State{
		Settings: Settings{
			MentionHere:          true,
			KeywordRegex:         DefaultKeywordRegex,
			CheckIntervalSeconds: DefaultIntervalSeconds,
			DiscoveryTwitchPages: DefaultDiscoveryTwitchPages,
			DiscoveryKickLimit:   DefaultDiscoveryKickLimit,
			TwitchGameID:         DefaultTwitchGameID,
			KickCategoryName:     DefaultKickCategoryName,
		},
		Runtime: Runtime{
			KickActive:   map[string]ActiveMessage{},
			TwitchActive: map[string]ActiveMessage{},
		},
	}
}

// Streamers returns a pointer to the tracked list of p.
func (s *State) Streamers(p platform.Name) *[]Streamer {
	if p == platform.Twitch {
		return &s.Twitch
	}
	return &s.Kick
}

// Active returns the active message map of p.
func (s *State) Active(p platform.Name) map[string]ActiveMessage {
	if p == platform.Twitch {
		if s.Runtime.TwitchActive == nil {
			s.Runtime.TwitchActive = map[string]ActiveMessage{}
		}
		return s.Runtime.TwitchActive
	}
	if s.Runtime.KickActive == nil {
		s.Runtime.KickActive = map[string]ActiveMessage{}
	}
	return s.Runtime.KickActive
}

// Health returns the health record of p.
func (s *State) Health(p platform.Name) *PlatformHealth {
	if p == platform.Twitch {
		return &s.Runtime.TwitchHealth
	}
	return &s.Runtime.KickHealth
}

// FindStreamer looks up a normalized handle in the list of p.
func (s *State) FindStreamer(p platform.Name, handle string) (Streamer, bool) {
	h := platform.NormalizeHandle(handle)
	for _, st := range *s.Streamers(p) {
		if st.Handle == h {
			return st, true
		}
	}
	return Streamer{}, false
}

// Normalize lowercases handles, drops empty and duplicate entries and makes
// sure every map exists. Loading always runs it.
func (s *State) Normalize() {
	s.Kick = normalizeList(s.Kick)
	s.Twitch = normalizeList(s.Twitch)
	s.Runtime.KickActive = normalizeActive(s.Runtime.KickActive)
	s.Runtime.TwitchActive = normalizeActive(s.Runtime.TwitchActive)
}

func normalizeList(in []Streamer) []Streamer {
	out := make([]Streamer, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, st := range in {
		h := platform.NormalizeHandle(st.Handle)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, Streamer{Handle: h, DiscordID: st.DiscordID})
	}
	return out
}

func normalizeActive(in map[string]ActiveMessage) map[string]ActiveMessage {
	out := make(map[string]ActiveMessage, len(in))
	for k, v := range in {
		h := platform.NormalizeHandle(k)
		if h == "" || v.MessageID == "" {
			continue
		}
		out[h] = v
	}
	return out
}

// Clone returns a deep copy, used when a snapshot must outlive the lock.
func (s *State) Clone() *State {
	c := *s
	c.Kick = append([]Streamer(nil), s.Kick...)
	c.Twitch = append([]Streamer(nil), s.Twitch...)
	c.Runtime.KickActive = cloneActive(s.Runtime.KickActive)
	c.Runtime.TwitchActive = cloneActive(s.Runtime.TwitchActive)
	c.extra = make(map[string]json.RawMessage, len(s.extra))
	for k, v := range s.extra {
		c.extra[k] = v
	}
	return &c
}

func cloneActive(in map[string]ActiveMessage) map[string]ActiveMessage {
	out := make(map[string]ActiveMessage, len(in))
	for k, v := range in {
		v.Superseded = append([]MessageRef(nil), v.Superseded...)
		out[k] = v
	}
	return out
}

// ActiveHandles returns the handles with an active record, sorted.
func (s *State) ActiveHandles(p platform.Name) []string {
	out := make([]string, 0, len(s.Active(p)))
	for h := range s.Active(p) {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ClampInt bounds n to [min, max]; non-positive n yields fallback.
func ClampInt(n, min, max, fallback int) int {
	if n <= 0 {
		return fallback
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// wire forms of the streamer lists

type streamerJSON struct {
	Slug      string  `json:"slug,omitempty"`
	Login     string  `json:"login,omitempty"`
	Handle    string  `json:"handle,omitempty"`
	DiscordID *string `json:"discordId"`
}

type section struct {
	Streamers []streamerJSON `json:"streamers"`
}

func encodeSection(list []Streamer, twitch bool) section {
	out := section{Streamers: make([]streamerJSON, 0, len(list))}
	for _, st := range list {
		sj := streamerJSON{}
		if twitch {
			sj.Login = st.Handle
		} else {
			sj.Slug = st.Handle
		}
		if st.DiscordID != "" {
			id := st.DiscordID
			sj.DiscordID = &id
		}
		out.Streamers = append(out.Streamers, sj)
	}
	return out
}

func decodeSection(raw json.RawMessage) ([]Streamer, error) {
	var sec section
	if err := json.Unmarshal(raw, &sec); err != nil {
		return nil, err
	}
	out := make([]Streamer, 0, len(sec.Streamers))
	for _, sj := range sec.Streamers {
		h := sj.Slug
		if h == "" {
			h = sj.Login
		}
		if h == "" {
			h = sj.Handle
		}
		st := Streamer{Handle: h}
		if sj.DiscordID != nil {
			st.DiscordID = *sj.DiscordID
		}
		out = append(out, st)
	}
	return out, nil
}

// Decode parses a persisted document on top of the defaults, so missing
// sections and fields keep their default values.
func Decode(b []byte) (*State, error) {
	return decodeOnto(Defaults(), b)
}

func decodeOnto(s *State, b []byte) (*State, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	for key, raw := range top {
		var err error
		switch key {
		case "settings":
			err = json.Unmarshal(raw, &s.Settings)
		case "kick":
			s.Kick, err = decodeSection(raw)
		case "twitch":
			s.Twitch, err = decodeSection(raw)
		case "state":
			err = json.Unmarshal(raw, &s.Runtime)
		default:
			if s.extra == nil {
				s.extra = map[string]json.RawMessage{}
			}
			s.extra[key] = raw
		}
		if err != nil {
			return nil, fmt.Errorf("decode state %q: %w", key, err)
		}
	}
	s.Normalize()
	return s, nil
}

// Encode renders the document as indented JSON.
func Encode(s *State) ([]byte, error) {
	top := make(map[string]any, 4+len(s.extra))
	for k, v := range s.extra {
		top[k] = v
	}
	top["settings"] = s.Settings
	top["kick"] = encodeSection(s.Kick, false)
	top["twitch"] = encodeSection(s.Twitch, true)
	top["state"] = s.Runtime
	b, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}
