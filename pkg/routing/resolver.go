package routing

import "fmt"

// Resolve maps an inbound envelope to a routing group and session key. It is
// pure and deterministic; a nil result means the envelope is unrouted and the
// caller must drop it (no error is ever returned for a miss).
//
// Matching runs in two passes over the groups in declaration order:
//
//  1. explicit bindings: a source on the envelope's channel whose ChannelIDs
//     list contains the envelope's source id;
//  2. scope fallbacks: a source on the envelope's channel whose scope is
//     satisfied by the envelope, or that declares neither scope nor ids.
//
// An explicit binding on any group always outranks a scope fallback on any
// other group, independent of declaration order between the two.
func Resolve(cfg *Config, env Envelope) *ResolvedRoute {
	if cfg == nil {
		return nil
	}

	for gi := range cfg.Groups {
		group := &cfg.Groups[gi]
		for si := range group.Sources {
			src := &group.Sources[si]
			if src.Channel != env.ChannelID {
				continue
			}
			if len(src.ChannelIDs) == 0 {
				continue
			}
			if containsString(src.ChannelIDs, env.SourceID) {
				return buildRoute(cfg, group, env, fmt.Sprintf("binding:%s/%s", group.ID, src.Channel))
			}
		}
	}

	for gi := range cfg.Groups {
		group := &cfg.Groups[gi]
		for si := range group.Sources {
			src := &group.Sources[si]
			if src.Channel != env.ChannelID {
				continue
			}
			if len(src.ChannelIDs) > 0 {
				continue
			}
			if !scopeMatches(cfg, src.Scope, env) {
				continue
			}
			matched := fmt.Sprintf("scope:%s/%s/%s", group.ID, src.Channel, src.Scope)
			if src.Scope == "" {
				matched = fmt.Sprintf("scope:%s/%s/any", group.ID, src.Channel)
			}
			return buildRoute(cfg, group, env, matched)
		}
	}

	return nil
}

// scopeMatches reports whether a scope fallback accepts the envelope. An
// empty scope on a source without explicit ids accepts everything on the
// channel.
func scopeMatches(cfg *Config, scope Scope, env Envelope) bool {
	switch scope {
	case "":
		return true
	case ScopeAll:
		return true
	case ScopeDM:
		return !env.IsGroup
	case ScopeGroup:
		return env.IsGroup
	case ScopeComments:
		return env.ChannelID == cfg.CommentChannel
	default:
		return false
	}
}

func buildRoute(cfg *Config, group *Group, env Envelope, matchedBy string) *ResolvedRoute {
	mode := env.Mode
	if mode == "" {
		mode = group.Mode
	}

	policy := group.BusyPolicy
	if policy == "" {
		policy = BusyQueue
	}

	return &ResolvedRoute{
		GroupID:        group.ID,
		SessionKey:     BuildSessionKey(cfg, group.ID, env),
		MainSessionKey: MainSessionKey(group.ID),
		MatchedBy:      matchedBy,
		Mode:           mode,
		BusyPolicy:     policy,
		AllowFrom:      group.AllowFrom,
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
