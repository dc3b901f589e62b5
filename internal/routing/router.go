package routing

import (
	"sort"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

// Selection is the outcome of routing one LLM call.
type Selection struct {
	Model    *Model
	Provider provider.Name
	Score    float64
	Reason   string
}

// Router picks the best model for a task within a tenant's entitlement,
// skipping unhealthy providers and falling back to a conservative choice
// rather than failing outright.
type Router struct {
	catalog *Catalog
	health  *Health
	weights Weights
}

// NewRouter builds a Router over catalog, tracking health independently
// per Router instance.
func NewRouter(catalog *Catalog, health *Health) *Router {
	return &Router{catalog: catalog, health: health, weights: DefaultWeights()}
}

// Select chooses the best model for task among everything the tenant's
// tier allows, restricted to requireProvider's models if set and excluding
// any provider whose failure streak exceeds the unhealthy threshold. When no
// candidate scores, it falls back to the first entitled model whose provider
// is healthy; when there is none, it returns a KindNotFound error.
func (r *Router) Select(tenant *domain.Tenant, task TaskType, opts ScoreOptions, requireProvider provider.Name) (*Selection, error) {
	candidates := r.catalog.ListUpToTier(tenant.LLMTier)

	var viable []scored

	for i, m := range candidates {
		if requireProvider != "" && m.Provider != requireProvider {
			continue
		}
		if !r.health.IsHealthy(string(m.Provider)) {
			continue
		}
		viable = append(viable, scored{model: m, score: score(m, task, r.weights, opts), index: i})
	}

	if len(viable) == 0 {
		for _, m := range candidates {
			if !r.health.IsHealthy(string(m.Provider)) {
				continue
			}
			return &Selection{
				Model: m, Provider: m.Provider, Score: 0,
				Reason: "fallback: no healthy candidate scored for task " + string(task),
			}, nil
		}
		return nil, errs.New(errs.KindNotFound, "no models available for tenant tier "+string(tenant.LLMTier))
	}

	sortByScoreThenTier(viable)
	best := viable[0]

	return &Selection{
		Model:    best.model,
		Provider: best.model.Provider,
		Score:    best.score,
		Reason:   "best match for task " + string(task),
	}, nil
}

// scored pairs a catalog model with its score and its position in the
// candidate list ListUpToTier produced, so ties can fall back to tier then
// candidate-list order instead of an arbitrary one.
type scored struct {
	model *Model
	score float64
	index int
}

// sortByScoreThenTier ranks highest score first; an exact tie goes to the
// lower/cheaper tier, and a tie on that too keeps candidate-list order
// (stable, so two calls over identical inputs always agree).
func sortByScoreThenTier(viable []scored) {
	sort.SliceStable(viable, func(i, j int) bool {
		if viable[i].score != viable[j].score {
			return viable[i].score > viable[j].score
		}
		if ri, rj := domain.TierRank(viable[i].model.Tier), domain.TierRank(viable[j].model.Tier); ri != rj {
			return ri < rj
		}
		return viable[i].index < viable[j].index
	})
}

// SelectFallback re-selects after a failed attempt, upgrading to
// prefer-quality semantics and excluding the provider that just failed, the
// same escalation the teacher's router performs before giving up.
func (r *Router) SelectFallback(tenant *domain.Tenant, task TaskType, failedProvider provider.Name) (*Selection, error) {
	candidates := r.catalog.ListUpToTier(tenant.LLMTier)

	var viable []scored

	for i, m := range candidates {
		if m.Provider == failedProvider {
			continue
		}
		if !r.health.IsHealthy(string(m.Provider)) {
			continue
		}
		viable = append(viable, scored{model: m, score: score(m, task, r.weights, ScoreOptions{PreferQuality: true}), index: i})
	}

	if len(viable) == 0 {
		return nil, errs.New(errs.KindUpstream, "no alternative provider available after "+string(failedProvider)+" failure")
	}

	sortByScoreThenTier(viable)
	best := viable[0]
	return &Selection{
		Model: best.model, Provider: best.model.Provider, Score: best.score,
		Reason: "fallback after " + string(failedProvider) + " failure",
	}, nil
}
