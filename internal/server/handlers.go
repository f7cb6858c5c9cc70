package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/listing"
	"github.com/mbd888/agentdex/internal/logging"
	"github.com/mbd888/agentdex/internal/validation"
)

// chainInfo is one entry of GET /v1/chains.
type chainInfo struct {
	Slug               string `json:"slug"`
	Name               string `json:"name"`
	ChainID            int64  `json:"chainId"`
	IdentityRegistry   string `json:"identityRegistry"`
	ReputationRegistry string `json:"reputationRegistry"`
	Default            bool   `json:"default"`
}

func (s *Server) listChains(c *gin.Context) {
	ids := chain.All()
	chains := make([]chainInfo, 0, len(ids))
	for _, id := range ids {
		spec := id.Spec()
		chains = append(chains, chainInfo{
			Slug:               spec.Slug,
			Name:               spec.Name,
			ChainID:            spec.ChainID,
			IdentityRegistry:   spec.IdentityRegistry.Hex(),
			ReputationRegistry: spec.ReputationRegistry.Hex(),
			Default:            id == s.cfg.DefaultChain,
		})
	}
	c.JSON(http.StatusOK, gin.H{"chains": chains})
}

// listAgents serves GET /v1/agents. Upstream failures still answer 200 with
// sample data; the source field says which path was taken.
func (s *Server) listAgents(c *gin.Context) {
	req, err := validation.ParseListRequest(c.Request.URL.Query(), s.cfg.DefaultChain)
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.controller.List(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) searchAgents(c *gin.Context) {
	q, err := validation.ParseSearchQuery(c.Request.URL.Query(), s.cfg.DefaultChain)
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.controller.Search(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getAgent(c *gin.Context) {
	req, err := validation.ParseListRequest(c.Request.URL.Query(), s.cfg.DefaultChain)
	if err != nil {
		s.writeError(c, err)
		return
	}

	rec, err := s.controller.Get(c.Request.Context(), req.Chain, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) compareAgents(c *gin.Context) {
	req, err := validation.ParseListRequest(c.Request.URL.Query(), s.cfg.DefaultChain)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ids, err := validation.ParseAgentIDs(c.Query("ids"), listing.MaxCompare)
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.controller.Compare(c.Request.Context(), req.Chain, ids)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// writeError maps pipeline errors to JSON error responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": verrs.Error(),
			"details": verrs,
		})
	case errors.Is(err, chain.ErrUnknownChain):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_chain", "message": err.Error()})
	case errors.Is(err, listing.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "agent_not_found", "message": "Agent " + c.Param("id") + " is not registered"})
	case errors.Is(err, listing.ErrTooManyAgents), errors.Is(err, listing.ErrNoAgentIDs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("upstream read failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "message": "The registry could not be read"})
	}
}
