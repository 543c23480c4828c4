package vectorkb

import (
	"context"

	"github.com/regulens/vectorkb/pkg/types"
)

// Knowledge types that inform a decision: codified rules, observed patterns,
// and prior outcomes. Facts and raw context are deliberately excluded; they
// describe the world but do not prescribe action.
var decisionTypes = []types.KnowledgeType{
	types.TypeRule,
	types.TypePattern,
	types.TypeExperience,
}

// agentDomains maps an agent type to the domain it operates in. Unknown
// agent types search across all domains.
var agentDomains = map[string]types.Domain{
	"compliance_monitor": types.DomainRegulatoryCompliance,
	"fraud_detector":     types.DomainTransactionMonitoring,
	"audit_analyst":      types.DomainAuditIntelligence,
	"risk_assessor":      types.DomainRiskManagement,
	"legal_reviewer":     types.DomainLegalFrameworks,
}

// GetContextForDecision retrieves the rules, patterns, and experiences most
// relevant to a decision in one domain. This is the primary entry point for
// agents assembling a decision context window.
func (e *Engine) GetContextForDecision(ctx context.Context, domain types.Domain, query string, limit int) []types.QueryResult {
	if limit <= 0 {
		limit = 10
	}
	return e.Search(ctx, types.SemanticQuery{
		Text:           query,
		Domain:         domain,
		KnowledgeTypes: decisionTypes,
		MaxResults:     limit,
	})
}

// GetRelevantKnowledge retrieves knowledge for a named agent type, scoping
// the search to the agent's home domain when one is registered.
func (e *Engine) GetRelevantKnowledge(ctx context.Context, agentType, query string, limit int) []types.QueryResult {
	if limit <= 0 {
		limit = 10
	}
	return e.HybridSearch(ctx, types.SemanticQuery{
		Text:       query,
		Domain:     agentDomains[agentType],
		MaxResults: limit,
	})
}
