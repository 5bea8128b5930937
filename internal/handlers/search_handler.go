package handlers

import (
	"net/http"

	"hadiscover/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SearchHandler serves search, facets and statistics.
type SearchHandler struct {
	search *services.SearchService
	logger *logrus.Logger
}

func NewSearchHandler(search *services.SearchService, logger *logrus.Logger) *SearchHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SearchHandler{search: search, logger: logger}
}

// SearchResult is the /search body.
type SearchResult struct {
	Query   string                      `json:"query"`
	Results []services.AutomationResult `json:"results"`
	Count   int                         `json:"count"`
	Total   int64                       `json:"total"`
	Page    int                         `json:"page"`
	PerPage int                         `json:"per_page"`
}

// Search GET /search
func (h *SearchHandler) Search(c *gin.Context) {
	var req services.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Detail: "invalid query parameters: " + err.Error(),
			Error:  "INVALID_REQUEST",
		})
		return
	}

	resp := h.search.Search(c.Request.Context(), &req)
	c.JSON(http.StatusOK, SearchResult{
		Query:   req.Query,
		Results: resp.Results,
		Count:   len(resp.Results),
		Total:   resp.Total,
		Page:    resp.Page,
		PerPage: resp.PerPage,
	})
}

// Facets GET /facets
func (h *SearchHandler) Facets(c *gin.Context) {
	var req services.FacetRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Detail: "invalid query parameters: " + err.Error(),
			Error:  "INVALID_REQUEST",
		})
		return
	}
	c.JSON(http.StatusOK, h.search.Facets(c.Request.Context(), &req))
}

// Statistics GET /statistics
func (h *SearchHandler) Statistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.search.Statistics(c.Request.Context()))
}

func RegisterSearchRoutes(r *gin.RouterGroup, h *SearchHandler) {
	r.GET("/search", h.Search)
	r.GET("/facets", h.Facets)
	r.GET("/statistics", h.Statistics)
}
