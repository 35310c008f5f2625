package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"housebot/server/internal/geometry"
	"housebot/server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
	pingTimeout     = 2 * time.Second
)

// BuildingStore is the read-only building data the API exposes.
type BuildingStore interface {
	FindNearestBuilding(ctx context.Context, lat, lon, radius float64) (*models.BuildingReport, error)
	TopBuildings(ctx context.Context, limit int) ([]models.RatedAddress, error)
	Ping(ctx context.Context) error
}

type HistoryReader interface {
	List(userID int64) []models.HistoryEntry
}

type Handler struct {
	store   BuildingStore
	history HistoryReader
	logger  *logrus.Logger
}

// NearestResponse is the nearest building plus how far its geometry lies
// from the requested point.
type NearestResponse struct {
	*models.BuildingReport
	DistanceMeters float64 `json:"distance_m"`
}

func NewHandler(store BuildingStore, history HistoryReader, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		store:   store,
		history: history,
		logger:  logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetNearestBuilding(c *gin.Context) {
	lat, errLat := parseFinite(c.Query("lat"))
	lon, errLon := parseFinite(c.Query("lon"))
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon must be numbers"})
		return
	}

	radius := geometry.DefaultRadius
	if raw := c.Query("radius"); raw != "" {
		r, err := parseFinite(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius must be a number"})
			return
		}
		radius = r
	}

	report, err := h.store.FindNearestBuilding(c.Request.Context(), lat, lon, radius)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"latitude":  lat,
			"longitude": lon,
		}).Error("Failed to find nearest building")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find nearest building"})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No rated building found"})
		return
	}

	c.JSON(http.StatusOK, NearestResponse{
		BuildingReport: report,
		DistanceMeters: geometry.DistanceMeters(geometry.NewPoint(lat, lon), report.Building.Geometry),
	})
}

func (h *Handler) GetTopBuildings(c *gin.Context) {
	limit := defaultTopLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	top, err := h.store.TopBuildings(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get top buildings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get top buildings"})
		return
	}
	c.JSON(http.StatusOK, top)
}

func (h *Handler) GetUserHistory(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	c.JSON(http.StatusOK, h.history.List(userID))
}

// parseFinite parses a float, rejecting NaN and infinities.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", raw)
	}
	return v, nil
}
