// Package api exposes pulse records and items over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/ventricle/feed"
	"github.com/pevans/ventricle/records"
	"github.com/pevans/ventricle/ventricle"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// RecordReader lists and loads pulse records.
type RecordReader interface {
	GetRecord(id string) (*records.Record, error)
	ListRecords() ([]records.Record, error)
}

// ItemStore lists, loads and marks pulse items.
type ItemStore interface {
	List(filter feed.Filter) ([]feed.Item, error)
	Get(id uuid.UUID) (*feed.Item, error)
	MarkSeen(id uuid.UUID) (*feed.Item, error)
}

// Executor runs a pulse on demand.
type Executor interface {
	ExecutePulse(ctx context.Context, id string) ventricle.Outcome
}

// Server serves the HTTP API.
type Server struct {
	records RecordReader
	items   ItemStore
	exec    Executor
}

// NewServer creates a Server. exec may be nil, in which case the run route
// reports that execution is unavailable.
func NewServer(recs RecordReader, items ItemStore, exec Executor) *Server {
	return &Server{records: recs, items: items, exec: exec}
}

// SetupRouter configures the gin router with every API route.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	pulses := router.Group("/api/v1/pulses")
	pulses.GET("", s.HandleListPulses)
	pulses.GET("/:id", s.HandleGetPulse)
	pulses.POST("/:id/run", s.HandleRunPulse)

	items := router.Group("/api/v1/items")
	items.GET("", s.HandleListItems)
	items.GET("/:id", s.HandleGetItem)
	items.POST("/:id/seen", s.HandleMarkSeen)

	return router
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListPulsesResponse is the body of GET /api/v1/pulses.
type ListPulsesResponse struct {
	Pulses []records.Record `json:"pulses"`
	Total  int              `json:"total"`
}

// ListItemsResponse is the body of GET /api/v1/items.
type ListItemsResponse struct {
	Items  []feed.Item `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// RunResponse is the body of POST /api/v1/pulses/:id/run.
type RunResponse struct {
	Status ventricle.Status `json:"status"`
	Item   *feed.Item       `json:"item,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// HandleListPulses handles GET /api/v1/pulses.
func (s *Server) HandleListPulses(c *gin.Context) {
	recs, err := s.records.ListRecords()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to list pulses: "+err.Error())
		return
	}

	if enabled := c.Query("enabled"); enabled != "" {
		want, err := strconv.ParseBool(enabled)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid enabled parameter")
			return
		}
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.Enabled == want {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}

	if recs == nil {
		recs = []records.Record{}
	}
	c.JSON(http.StatusOK, ListPulsesResponse{Pulses: recs, Total: len(recs)})
}

// HandleGetPulse handles GET /api/v1/pulses/:id.
func (s *Server) HandleGetPulse(c *gin.Context) {
	rec, err := s.records.GetRecord(c.Param("id"))
	if errors.Is(err, records.ErrRecordNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Pulse not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to get pulse: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, rec)
}

// HandleRunPulse handles POST /api/v1/pulses/:id/run.
func (s *Server) HandleRunPulse(c *gin.Context) {
	if s.exec == nil {
		writeError(c, http.StatusServiceUnavailable, "unavailable", "Pulse execution is not available")
		return
	}

	id := c.Param("id")
	if _, err := s.records.GetRecord(id); errors.Is(err, records.ErrRecordNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Pulse not found")
		return
	}

	out := s.exec.ExecutePulse(c.Request.Context(), id)
	resp := RunResponse{Status: out.Status, Item: out.Item}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}

	status := http.StatusOK
	switch out.Status {
	case ventricle.StatusCreated:
		status = http.StatusCreated
	case ventricle.StatusInFlight:
		status = http.StatusConflict
	}
	c.JSON(status, resp)
}

// HandleListItems handles GET /api/v1/items.
func (s *Server) HandleListItems(c *gin.Context) {
	filter := feed.Filter{
		PulseID: c.Query("pulse_id"),
		Limit:   defaultLimit,
	}

	if unseen := c.Query("unseen"); unseen != "" {
		v, err := strconv.ParseBool(unseen)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid unseen parameter")
			return
		}
		filter.Unseen = v
	}

	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid limit parameter")
			return
		}
		filter.Limit = min(limit, maxLimit)
	}

	if offsetParam := c.Query("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid offset parameter")
			return
		}
		filter.Offset = offset
	}

	items, err := s.items.List(filter)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to list items: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, ListItemsResponse{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

func parseItemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_id", "Invalid item ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleGetItem handles GET /api/v1/items/:id.
func (s *Server) HandleGetItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	item, err := s.items.Get(id)
	if errors.Is(err, feed.ErrItemNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Item not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to get item: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, item)
}

// HandleMarkSeen handles POST /api/v1/items/:id/seen.
func (s *Server) HandleMarkSeen(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	item, err := s.items.MarkSeen(id)
	if errors.Is(err, feed.ErrItemNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Item not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal_error", "Failed to mark item seen: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, item)
}
