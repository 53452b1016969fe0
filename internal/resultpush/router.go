package resultpush

import "strings"

type Router struct{}

func (r Router) MatchTargets(targets []PushTarget, ev RaceEvent) []PushTarget {
	if len(targets) == 0 {
		return nil
	}
	out := make([]PushTarget, 0, len(targets))
	for _, target := range targets {
		if !target.Enabled || !scopeMatches(target, ev) {
			continue
		}
		if !eventAllowed(target.EventAllowlist, ev.EventType) {
			continue
		}
		out = append(out, target)
	}
	return out
}

func scopeMatches(target PushTarget, ev RaceEvent) bool {
	switch target.ScopeType {
	case ScopeAll:
		return true
	case ScopeSource:
		return target.ScopeValue != "" && strings.EqualFold(target.ScopeValue, ev.Source)
	case ScopeUser:
		return target.ScopeValue != "" && ev.hasUser(target.ScopeValue)
	default:
		return false
	}
}

// eventAllowed treats an empty allowlist as allow-all.
func eventAllowed(allowlist []string, evType string) bool {
	if len(allowlist) == 0 {
		return true
	}
	evType = strings.ToLower(strings.TrimSpace(evType))
	for _, v := range allowlist {
		if v != "" && v == evType {
			return true
		}
	}
	return false
}
