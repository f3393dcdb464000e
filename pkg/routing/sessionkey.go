package routing

import "fmt"

// MainSessionKey returns the stable per-group anchor session, independent of
// sender and thread. Scheduled activity and group-level state serialize here.
func MainSessionKey(groupID string) string {
	return fmt.Sprintf("group:%s:main", groupID)
}

// BuildSessionKey derives the conversation session key for an envelope routed
// to a group. The key is a pure function of (group, channel, scope, identity,
// thread): repeated traffic from the same conversation always lands on the
// same key, and distinct conversations never collide.
func BuildSessionKey(cfg *Config, groupID string, env Envelope) string {
	scope := conversationScope(cfg, env)

	identity := env.SenderID
	if env.IsGroup {
		identity = env.SourceID
	}

	key := fmt.Sprintf("group:%s:%s:%s:%s", groupID, env.ChannelID, scope, identity)
	if env.ThreadID != "" {
		key += ":thread:" + env.ThreadID
	}
	return key
}

// BuildPersonalCLISessionKey returns the session key for direct operator
// ingress that bypasses group routing.
func BuildPersonalCLISessionKey(identity, threadID string) string {
	key := fmt.Sprintf("cli:%s", identity)
	if threadID != "" {
		key += ":thread:" + threadID
	}
	return key
}

// conversationScope classifies the envelope's conversation for session key
// purposes: comment threads on the comment channel, otherwise group or dm.
func conversationScope(cfg *Config, env Envelope) Scope {
	if cfg != nil && cfg.CommentChannel != "" && env.ChannelID == cfg.CommentChannel {
		return ScopeComments
	}
	if env.IsGroup {
		return ScopeGroup
	}
	return ScopeDM
}
