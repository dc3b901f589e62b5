// Package chatrouter picks up an in-conversation agent handoff by scoring
// the incoming message against each candidate agent's keyword list. It has
// no regex, intent classification, or tool-use triggers — those are the
// teacher's multiagent.Router features this router deliberately narrows
// away from; a pure substring-count rule is all the spec calls for.
package chatrouter

import "strings"

// Rule binds one agent to the keywords that should hand a conversation off
// to it.
type Rule struct {
	AgentID     string
	Keywords    []string
	Description string
}

// HandoffInfo is emitted when the router decides the conversation should
// switch to a different agent.
type HandoffInfo struct {
	ToAgentID string
	Reason    string
	Score     int
}

// Router scores an incoming message against a fixed set of rules.
type Router struct {
	rules []Rule
}

// NewRouter builds a Router from rules. Rules for the same agent ID are
// kept distinct and scored separately; on equal scores the rule registered
// first wins.
func NewRouter(rules []Rule) *Router {
	return &Router{rules: rules}
}

// SetRules replaces the router's rule set, for agents reloaded at runtime.
func (r *Router) SetRules(rules []Rule) {
	r.rules = rules
}

// Route scores message against every rule whose agent isn't currentAgentID.
// The rule with the highest keyword-match count wins; ties keep whichever
// rule was registered first. A best score below 1 means no handoff.
func (r *Router) Route(message, currentAgentID string) (HandoffInfo, bool) {
	content := strings.ToLower(message)

	var best Rule
	bestScore := 0
	found := false

	for _, rule := range r.rules {
		if rule.AgentID == "" || rule.AgentID == currentAgentID {
			continue
		}
		score := countKeywordMatches(content, rule.Keywords)
		if score > bestScore {
			bestScore = score
			best = rule
			found = true
		}
	}

	if !found || bestScore < 1 {
		return HandoffInfo{}, false
	}

	return HandoffInfo{
		ToAgentID: best.AgentID,
		Reason:    best.Description,
		Score:     bestScore,
	}, true
}

func countKeywordMatches(lowerContent string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if strings.Contains(lowerContent, keyword) {
			count++
		}
	}
	return count
}
