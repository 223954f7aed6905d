package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noxrp/stream-notifier/platform"
)

// Seed is the optional YAML file listing streamers to track at startup:
//
//	kick:
//	  - handle: foo
//	    discordId: "1234"
//	twitch:
//	  - handle: bar
type Seed struct {
	Kick   []Streamer `yaml:"kick"`
	Twitch []Streamer `yaml:"twitch"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed adds seeded streamers that are not tracked yet and returns how
// many were added. Existing entries keep their discord id.
func (s *State) ApplySeed(seed *Seed) int {
	if seed == nil {
		return 0
	}
	added := 0
	for _, p := range []platform.Name{platform.Kick, platform.Twitch} {
		list := seed.Kick
		if p == platform.Twitch {
			list = seed.Twitch
		}
		for _, st := range list {
			if s.AddStreamer(p, st.Handle, st.DiscordID) {
				added++
			}
		}
	}
	return added
}

// AddStreamer tracks handle on p. It reports false for an empty or already
// tracked handle.
func (s *State) AddStreamer(p platform.Name, handle, discordID string) bool {
	h := platform.NormalizeHandle(handle)
	if h == "" {
		return false
	}
	if _, ok := s.FindStreamer(p, h); ok {
		return false
	}
	list := s.Streamers(p)
	*list = append(*list, Streamer{Handle: h, DiscordID: strings.TrimSpace(discordID)})
	return true
}

// RemoveStreamer stops tracking handle and returns the removed entry.
func (s *State) RemoveStreamer(p platform.Name, handle string) (Streamer, bool) {
	h := platform.NormalizeHandle(handle)
	list := s.Streamers(p)
	for i, st := range *list {
		if st.Handle == h {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return st, true
		}
	}
	return Streamer{}, false
}

// SetMention updates the discord id of a tracked streamer; "" clears it.
func (s *State) SetMention(p platform.Name, handle, discordID string) bool {
	h := platform.NormalizeHandle(handle)
	list := *s.Streamers(p)
	for i := range list {
		if list[i].Handle == h {
			list[i].DiscordID = strings.TrimSpace(discordID)
			return true
		}
	}
	return false
}

// Export scopes.
const (
	ExportAll    = "all"
	ExportKick   = "kick"
	ExportTwitch = "twitch"
)

type exportStreamer struct {
	Handle    string `json:"handle" yaml:"handle"`
	DiscordID string `json:"discordId,omitempty" yaml:"discordId,omitempty"`
}

type exportDoc struct {
	Settings Settings         `json:"settings" yaml:"settings"`
	Kick     []exportStreamer `json:"kick,omitempty" yaml:"kick,omitempty"`
	Twitch   []exportStreamer `json:"twitch,omitempty" yaml:"twitch,omitempty"`
}

func exportList(in []Streamer) []exportStreamer {
	out := make([]exportStreamer, 0, len(in))
	for _, st := range in {
		out = append(out, exportStreamer(st))
	}
	return out
}

// Export renders settings plus the selected streamer lists as "json" or
// "yaml". The YAML form can be fed back as a seed file. Cached category
// resolution is left out.
func Export(s *State, scope, format string) ([]byte, error) {
	doc := exportDoc{Settings: s.Settings}
	doc.Settings.CheckIntervalSeconds = s.Settings.IntervalSeconds()
	doc.Settings.KickCategoryID = ""
	doc.Settings.KickCategoryResolvedAt = 0

	switch strings.ToLower(scope) {
	case "", ExportAll:
		doc.Kick = exportList(s.Kick)
		doc.Twitch = exportList(s.Twitch)
	case ExportKick:
		doc.Kick = exportList(s.Kick)
	case ExportTwitch:
		doc.Twitch = exportList(s.Twitch)
	default:
		return nil, fmt.Errorf("unknown export scope %q", scope)
	}

	switch strings.ToLower(format) {
	case "", "json":
		return json.MarshalIndent(doc, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
