package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/logging"
	"github.com/mbd888/agentdex/internal/metacache"
	"github.com/mbd888/agentdex/internal/validation"
)

// MetadataStore is the part of the metadata cache the admin handlers use.
type MetadataStore interface {
	Clear(ctx context.Context, agentID string) (int, error)
	Stats(ctx context.Context) (metacache.Stats, error)
}

// ListingCache drops a chain's cached listing.
type ListingCache interface {
	Invalidate(id chain.ID)
}

// Events is notified after a metadata clear.
type Events interface {
	BroadcastMetadataCleared(agentID string, removed int)
}

// Handler serves the cache admin routes.
type Handler struct {
	metadata MetadataStore
	listings ListingCache
	events   Events
	secret   string
	logger   *slog.Logger
}

// NewHandler creates a new admin handler. secret guards the destructive routes.
func NewHandler(metadata MetadataStore, secret string) *Handler {
	return &Handler{
		metadata: metadata,
		secret:   secret,
		logger:   logging.Component(nil, "admin"),
	}
}

// WithListingCache enables listing invalidation.
func (h *Handler) WithListingCache(lc ListingCache) *Handler {
	h.listings = lc
	return h
}

// WithEvents sets the sink notified after a clear.
func (h *Handler) WithEvents(e Events) *Handler {
	h.events = e
	return h
}

// WithLogger sets the handler logger.
func (h *Handler) WithLogger(l *slog.Logger) *Handler {
	h.logger = logging.Component(l, "admin")
	return h
}

// RegisterRoutes sets up the cache routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/cache/metadata", h.metadataStats)

	protected := r.Group("/cache", RequireAdmin(h.secret))
	protected.DELETE("/metadata", h.clearMetadata)
	protected.DELETE("/metadata/:id", validation.AgentIDParamMiddleware(), h.clearMetadata)
	protected.DELETE("/listings/:chain", h.invalidateListing)
}

// metadataStats lists the cached metadata keys.
func (h *Handler) metadataStats(c *gin.Context) {
	stats, err := h.metadata.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("metadata stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to read metadata cache"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// clearMetadata removes one agent's documents, or all of them without an id.
// Cached listings still hold records assembled from the removed documents,
// so every chain's listing is dropped as well.
func (h *Handler) clearMetadata(c *gin.Context) {
	agentID := c.Param("id")

	removed, err := h.metadata.Clear(c.Request.Context(), agentID)
	if err != nil {
		h.logger.Error("metadata clear failed", "agent_id", agentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to clear metadata cache"})
		return
	}

	h.logger.Info("metadata cache cleared", "agent_id", agentID, "removed", removed)
	if h.listings != nil {
		for _, id := range chain.All() {
			h.listings.Invalidate(id)
		}
	}
	if h.events != nil {
		h.events.BroadcastMetadataCleared(agentID, removed)
	}
	c.JSON(http.StatusOK, ClearResult{Removed: removed, AgentID: agentID})
}

// invalidateListing drops the cached listing so the next request reads live.
func (h *Handler) invalidateListing(c *gin.Context) {
	if h.listings == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured", "message": "Listing cache not configured"})
		return
	}

	id, err := chain.Parse(c.Param("chain"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_chain", "message": err.Error()})
		return
	}

	h.listings.Invalidate(id)
	h.logger.Info("listing cache invalidated", "chain", id.String())
	c.JSON(http.StatusOK, gin.H{"invalidated": id.String()})
}
