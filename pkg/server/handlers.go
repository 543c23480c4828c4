package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/regulens/vectorkb"
	"github.com/regulens/vectorkb/pkg/store"
	"github.com/regulens/vectorkb/pkg/types"
)

// handlers carries the engine into the route functions.
type handlers struct {
	kb     *vectorkb.Engine
	logger *slog.Logger
}

func newHandlers(kb *vectorkb.Engine, logger *slog.Logger) *handlers {
	return &handlers{kb: kb, logger: logger}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, store.ErrConnection):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "storage_unavailable", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: err.Error()})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: message})
}

// --- Health ---

// Health handles GET /health
func (h *handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// Ready handles GET /ready: the engine is ready once the backend answers.
func (h *handlers) Ready(c *gin.Context) {
	if _, err := h.kb.GetMemoryStatistics(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Live handles GET /live for liveness probes.
func (h *handlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// --- Entities ---

// StoreEntity handles POST /api/v1/entities
func (h *handlers) StoreEntity(c *gin.Context) {
	var entity types.KnowledgeEntity
	if err := c.ShouldBindJSON(&entity); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.kb.StoreEntity(c.Request.Context(), &entity); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConnection) {
			writeError(c, err)
			return
		}
		// Validation failures dominate the remainder.
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusCreated, entity)
}

// GetEntity handles GET /api/v1/entities/:id
func (h *handlers) GetEntity(c *gin.Context) {
	entity, err := h.kb.GetEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// UpdateEntity handles PATCH /api/v1/entities/:id
func (h *handlers) UpdateEntity(c *gin.Context) {
	var update types.EntityUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.kb.UpdateEntity(c.Request.Context(), c.Param("id"), update); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type confidenceRequest struct {
	Delta float64 `json:"delta"`
}

// UpdateConfidence handles PATCH /api/v1/entities/:id/confidence
func (h *handlers) UpdateConfidence(c *gin.Context) {
	var req confidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	score, err := h.kb.UpdateEntityConfidence(c.Request.Context(), c.Param("id"), req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity_id": c.Param("id"), "confidence_score": score})
}

// DeleteEntity handles DELETE /api/v1/entities/:id
func (h *handlers) DeleteEntity(c *gin.Context) {
	if err := h.kb.DeleteEntity(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Search ---

// Search handles POST /api/v1/search
func (h *handlers) Search(c *gin.Context) {
	var query types.SemanticQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		badRequest(c, err.Error())
		return
	}
	if query.Text == "" && len(query.Embedding) == 0 {
		badRequest(c, "either text or embedding is required")
		return
	}
	results := h.kb.Search(c.Request.Context(), query)
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// HybridSearch handles POST /api/v1/search/hybrid
func (h *handlers) HybridSearch(c *gin.Context) {
	var query types.SemanticQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		badRequest(c, err.Error())
		return
	}
	if query.Text == "" {
		badRequest(c, "text is required for hybrid search")
		return
	}
	results := h.kb.HybridSearch(c.Request.Context(), query)
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

type decisionContextRequest struct {
	Domain string `json:"domain"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

// DecisionContext handles POST /api/v1/context
func (h *handlers) DecisionContext(c *gin.Context) {
	var req decisionContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Query == "" {
		badRequest(c, "query is required")
		return
	}
	results := h.kb.GetContextForDecision(c.Request.Context(),
		types.ParseDomain(req.Domain), req.Query, req.Limit)
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// --- Graph ---

// CreateRelationship handles POST /api/v1/relationships
func (h *handlers) CreateRelationship(c *gin.Context) {
	var rel types.Relationship
	if err := c.ShouldBindJSON(&rel); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.kb.CreateRelationship(c.Request.Context(), &rel); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConnection) {
			writeError(c, err)
			return
		}
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusCreated, rel)
}

// GetRelated handles GET /api/v1/entities/:id/related
func (h *handlers) GetRelated(c *gin.Context) {
	depth, _ := strconv.Atoi(c.DefaultQuery("depth", "1"))
	related, err := h.kb.GetRelated(c.Request.Context(), c.Param("id"), c.Query("type"), depth)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": related, "count": len(related)})
}

// GetGraph handles GET /api/v1/entities/:id/graph
func (h *handlers) GetGraph(c *gin.Context) {
	radius, _ := strconv.Atoi(c.DefaultQuery("radius", "2"))
	kg, err := h.kb.GetKnowledgeGraph(c.Request.Context(), c.Param("id"), radius)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, kg)
}

// --- Memory ---

type retentionRequest struct {
	Policy string `json:"retention_policy"`
}

// SetRetention handles PUT /api/v1/entities/:id/retention
func (h *handlers) SetRetention(c *gin.Context) {
	var req retentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	policy := types.RetentionPolicy(req.Policy)
	if !policy.Valid() {
		badRequest(c, "unknown retention policy: "+req.Policy)
		return
	}
	if err := h.kb.SetRetentionPolicy(c.Request.Context(), c.Param("id"), policy); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MemoryStats handles GET /api/v1/memory/stats
func (h *handlers) MemoryStats(c *gin.Context) {
	stats, err := h.kb.GetMemoryStatistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Cleanup handles POST /api/v1/memory/cleanup
func (h *handlers) Cleanup(c *gin.Context) {
	removed := h.kb.CleanupExpired(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// --- Learning ---

// RecordInteraction handles POST /api/v1/learning/interactions
func (h *handlers) RecordInteraction(c *gin.Context) {
	var interaction types.Interaction
	if err := c.ShouldBindJSON(&interaction); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.kb.RecordInteraction(c.Request.Context(), interaction); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type reinforceRequest struct {
	EntityIDs []string `json:"entity_ids"`
}

// Reinforce handles POST /api/v1/learning/reinforce
func (h *handlers) Reinforce(c *gin.Context) {
	var req reinforceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.EntityIDs) == 0 {
		badRequest(c, "entity_ids is required")
		return
	}
	if err := h.kb.ReinforceEntities(c.Request.Context(), req.EntityIDs); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Recommendations handles GET /api/v1/learning/recommendations
func (h *handlers) Recommendations(c *gin.Context) {
	domain := types.Domain(c.Query("domain"))
	recs := h.kb.GetRecommendations(c.Request.Context(), domain)
	c.JSON(http.StatusOK, gin.H{"entities": recs, "count": len(recs)})
}

// --- Analytics ---

// DomainStats handles GET /api/v1/analytics/domains/:domain
func (h *handlers) DomainStats(c *gin.Context) {
	domain := types.Domain(c.Param("domain"))
	if !domain.Valid() {
		badRequest(c, "unknown domain: "+c.Param("domain"))
		return
	}
	c.JSON(http.StatusOK, h.kb.GetDomainStatistics(domain))
}

// PopularEntities handles GET /api/v1/analytics/popular
func (h *handlers) PopularEntities(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	domain := types.Domain(c.Query("domain"))
	entities := h.kb.GetPopularEntities(domain, limit)
	c.JSON(http.StatusOK, gin.H{"entities": entities, "count": len(entities)})
}

// ConfidenceDistribution handles GET /api/v1/analytics/confidence
func (h *handlers) ConfidenceDistribution(c *gin.Context) {
	domain := types.Domain(c.Query("domain"))
	c.JSON(http.StatusOK, gin.H{"buckets": h.kb.GetConfidenceDistribution(domain)})
}

// --- Snapshot / Admin ---

// ExportSnapshot handles GET /api/v1/snapshot
func (h *handlers) ExportSnapshot(c *gin.Context) {
	snapshot, err := h.kb.Export(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ImportSnapshot handles POST /api/v1/snapshot. Raw body, not bound JSON:
// the importer runs its own repair pass on malformed payloads.
func (h *handlers) ImportSnapshot(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.kb.ImportJSON(c.Request.Context(), data); err != nil {
		if errors.Is(err, store.ErrConnection) {
			writeError(c, err)
			return
		}
		badRequest(c, err.Error())
		return
	}
	c.Status(http.StatusCreated)
}

// Optimize handles POST /api/v1/admin/optimize
func (h *handlers) Optimize(c *gin.Context) {
	if err := h.kb.OptimizeStorage(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
