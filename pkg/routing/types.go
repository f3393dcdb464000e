package routing

import "time"

// Scope restricts which conversations a source binding applies to.
type Scope string

const (
	ScopeDM       Scope = "dm"
	ScopeGroup    Scope = "group"
	ScopeComments Scope = "comments"
	ScopeAll      Scope = "all"
)

// ModeObservational marks traffic that feeds the memory pipeline instead of
// invoking the agent.
const ModeObservational = "observational"

// BusyPolicy selects how concurrent traffic to one session is handled.
type BusyPolicy string

const (
	// BusyQueue appends the message to the session's FIFO chain.
	BusyQueue BusyPolicy = "queue"
	// BusySteer interrupts the active run with the new message.
	BusySteer BusyPolicy = "steer"
)

// Envelope is the normalized inbound message produced by channel adapters.
// It is immutable once constructed.
type Envelope struct {
	ChannelID     string                 `json:"channel_id"`
	SourceID      string                 `json:"source_id"`
	SenderID      string                 `json:"sender_id"`
	SenderName    string                 `json:"sender_name,omitempty"`
	Content       string                 `json:"content"`
	Timestamp     time.Time              `json:"timestamp"`
	IsGroup       bool                   `json:"is_group"`
	Mode          string                 `json:"mode,omitempty"`
	ThreadID      string                 `json:"thread_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Raw           map[string]interface{} `json:"raw,omitempty"`
}

// Source binds a channel to a group, either by explicit conversation ids
// (ChannelIDs) or by a scope fallback. A source with neither matches any
// envelope on its channel.
type Source struct {
	Channel    string   `json:"channel" mapstructure:"channel"`
	Scope      Scope    `json:"scope,omitempty" mapstructure:"scope"`
	ChannelIDs []string `json:"channelIds,omitempty" mapstructure:"channelIds"`
}

// Group is one routing group definition. Declaration order matters within a
// matching pass.
type Group struct {
	ID         string     `json:"id" mapstructure:"id"`
	AllowFrom  []string   `json:"allowFrom,omitempty" mapstructure:"allowFrom"`
	Mode       string     `json:"mode,omitempty" mapstructure:"mode"`
	BusyPolicy BusyPolicy `json:"busyPolicy,omitempty" mapstructure:"busyPolicy"`
	Sources    []Source   `json:"sources" mapstructure:"sources"`
}

// Config is the ordered routing configuration.
type Config struct {
	// CommentChannel names the channel whose conversations are treated as
	// comment threads for scope matching and session key construction.
	CommentChannel string  `json:"commentChannel,omitempty" mapstructure:"commentChannel"`
	Groups         []Group `json:"groups" mapstructure:"groups"`
}

// ResolvedRoute is the outcome of routing one envelope. It is derived, never
// persisted, and recomputed per message.
type ResolvedRoute struct {
	GroupID        string
	SessionKey     string
	MainSessionKey string
	MatchedBy      string
	Mode           string
	BusyPolicy     BusyPolicy
	AllowFrom      []string
}
