package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/roamly/roamly-backend/internal/api/middleware"
	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/repository"
	"github.com/roamly/roamly-backend/internal/service"
)

// TripHandler handles trip CRUD, listing and permission probes.
type TripHandler struct {
	tripSvc     service.TripService
	permSvc     service.PermissionService
	activitySvc service.ActivityService
}

func NewTripHandler(tripSvc service.TripService, permSvc service.PermissionService, activitySvc service.ActivityService) *TripHandler {
	return &TripHandler{tripSvc: tripSvc, permSvc: permSvc, activitySvc: activitySvc}
}

type createTripRequest struct {
	Title       string           `json:"title" binding:"required"`
	Destination string           `json:"destination" binding:"required"`
	Description *string          `json:"description"`
	StartDate   *time.Time       `json:"startDate"`
	EndDate     *time.Time       `json:"endDate"`
	Budget      *decimal.Decimal `json:"budget"`
	Tags        []string         `json:"tags"`
}

type updateTripRequest struct {
	Title           *string            `json:"title"`
	Destination     *string            `json:"destination"`
	Description     *string            `json:"description"`
	StartDate       *time.Time         `json:"startDate"`
	EndDate         *time.Time         `json:"endDate"`
	Budget          *decimal.Decimal   `json:"budget"`
	Tags            []string           `json:"tags"`
	Status          *models.TripStatus `json:"status"`
	ExpectedVersion *int64             `json:"expectedVersion"`
}

// Create handles POST /api/trips
func (h *TripHandler) Create(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req createTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.tripSvc.Create(c.Request.Context(), userID, &service.CreateTripInput{
		Title:       req.Title,
		Destination: req.Destination,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Budget:      req.Budget,
		Tags:        req.Tags,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, trip)
}

// Get handles GET /api/trips/:id
func (h *TripHandler) Get(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	trip, err := h.tripSvc.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// Update handles PUT /api/trips/:id
func (h *TripHandler) Update(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req updateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.tripSvc.Update(c.Request.Context(), c.Param("id"), userID, &service.UpdateTripInput{
		Title:           req.Title,
		Destination:     req.Destination,
		Description:     req.Description,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Budget:          req.Budget,
		Tags:            req.Tags,
		Status:          req.Status,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// Delete handles DELETE /api/trips/:id
func (h *TripHandler) Delete(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.tripSvc.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Trip deleted"})
}

// List handles GET /api/trips
func (h *TripHandler) List(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	filters, err := parseTripFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trips, pageInfo, err := h.tripSvc.ListForUser(c.Request.Context(), userID, filters)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trips": trips, "pageInfo": pageInfo})
}

// Search handles GET /api/trips/search
func (h *TripHandler) Search(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trips, pageInfo, err := h.tripSvc.Search(c.Request.Context(), userID, c.Query("q"), limit, offset)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trips": trips, "pageInfo": pageInfo})
}

// CheckPermission handles GET /api/trips/:id/permissions/:permission
func (h *TripHandler) CheckPermission(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	decision, err := h.permSvc.Check(c.Request.Context(), c.Param("id"), userID,
		models.Permission(c.Param("permission")))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// GetActivity handles GET /api/trips/:id/activity
func (h *TripHandler) GetActivity(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.activitySvc.ListByTrip(c.Request.Context(), c.Param("id"), userID, limit, offset)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": records})
}

func parseTripFilters(c *gin.Context) (*repository.TripFilters, error) {
	filters := &repository.TripFilters{}

	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filters.Status = append(filters.Status, models.TripStatus(strings.TrimSpace(s)))
		}
	}
	filters.Destination = c.Query("destination")
	if tags := c.Query("tags"); tags != "" {
		filters.Tags = strings.Split(tags, ",")
	}

	if v := c.Query("startAfter"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		filters.StartAfter = &t
	}
	if v := c.Query("endBefore"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		filters.EndBefore = &t
	}
	if v := c.Query("minBudget"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		filters.MinBudget = &d
	}
	if v := c.Query("maxBudget"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		filters.MaxBudget = &d
	}

	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filters.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return filters, nil
}
