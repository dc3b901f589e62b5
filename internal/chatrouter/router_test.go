package chatrouter

import "testing"

func testRules() []Rule {
	return []Rule{
		{AgentID: "orchestrator", Keywords: []string{"bonjour", "aide"}, Description: "general orchestrator"},
		{AgentID: "facturation", Keywords: []string{"relance", "facture", "paiement"}, Description: "billing and invoicing"},
		{AgentID: "support", Keywords: []string{"bug", "erreur", "probleme"}, Description: "technical support"},
	}
}

func TestRouteHandsOffToBestKeywordMatch(t *testing.T) {
	r := NewRouter(testRules())

	info, ok := r.Route("je dois relancer un client qui n'a pas payé sa facture", "orchestrator")
	if !ok {
		t.Fatal("expected a handoff")
	}
	if info.ToAgentID != "facturation" {
		t.Fatalf("got target %q, want facturation", info.ToAgentID)
	}
	if info.Score != 2 {
		t.Fatalf("got score %d, want 2 (relance + facture both match)", info.Score)
	}
	if info.Reason != "billing and invoicing" {
		t.Fatalf("got reason %q, want the facturation rule's description", info.Reason)
	}
}

func TestRouteNoHandoffBelowOneMatch(t *testing.T) {
	r := NewRouter(testRules())

	_, ok := r.Route("what's the weather like today", "orchestrator")
	if ok {
		t.Fatal("expected no handoff when no keyword matches")
	}
}

func TestRouteNeverTargetsTheCurrentAgent(t *testing.T) {
	r := NewRouter(testRules())

	// The message matches the current agent's own keyword ("aide") but
	// the current agent can never hand off to itself.
	_, ok := r.Route("j'ai besoin d'aide", "orchestrator")
	if ok {
		t.Fatal("expected no handoff since only the current agent's own rule matched")
	}
}

func TestRoutePicksHighestScoringAgentOnMultipleMatches(t *testing.T) {
	r := NewRouter(testRules())

	info, ok := r.Route("j'ai un bug de facture et une erreur de paiement", "orchestrator")
	if !ok {
		t.Fatal("expected a handoff")
	}
	// "facture" and "paiement" match facturation (score 2); "bug" and
	// "erreur" match support (score 2). facturation is registered first,
	// so it wins the tie.
	if info.ToAgentID != "facturation" {
		t.Fatalf("got target %q, want facturation on tie-break", info.ToAgentID)
	}
}

func TestRouteIsCaseInsensitive(t *testing.T) {
	r := NewRouter(testRules())

	info, ok := r.Route("BONJOUR, j'ai besoin d'AIDE svp", "support")
	if !ok {
		t.Fatal("expected a handoff")
	}
	if info.ToAgentID != "orchestrator" {
		t.Fatalf("got target %q, want orchestrator", info.ToAgentID)
	}
}

func TestRouteIgnoresRulesWithNoAgentID(t *testing.T) {
	r := NewRouter([]Rule{{Keywords: []string{"facture"}}})

	_, ok := r.Route("j'ai une facture", "orchestrator")
	if ok {
		t.Fatal("expected no handoff when the matching rule has no agent id")
	}
}

func TestSetRulesReplacesRuleSet(t *testing.T) {
	r := NewRouter(testRules())
	r.SetRules([]Rule{{AgentID: "onboarding", Keywords: []string{"bienvenue"}}})

	if _, ok := r.Route("j'ai une facture", "orchestrator"); ok {
		t.Fatal("expected the old facturation rule to be gone after SetRules")
	}

	info, ok := r.Route("bienvenue chez nous", "orchestrator")
	if !ok || info.ToAgentID != "onboarding" {
		t.Fatalf("got %+v, %v, want a handoff to onboarding", info, ok)
	}
}
