package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/video-gateway/internal/http/response"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/services/analytics"
)

type AnalyticsHandler struct {
	svc     analytics.Service
	enabled bool
}

// NewAnalyticsHandler serves session creation even when analytics is disabled;
// every other route answers 503 in that case.
func NewAnalyticsHandler(svc analytics.Service, enabled bool) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, enabled: enabled}
}

func (h *AnalyticsHandler) guard(c *gin.Context) bool {
	if h.enabled {
		return true
	}
	response.RespondErr(c, apierr.FeatureDisabled("analytics"))
	return false
}

type sessionRequest struct {
	UserID     string `json:"userId"`
	DeviceType string `json:"deviceType"`
	Platform   string `json:"platform"`
}

// POST /sessions/create
func (h *AnalyticsHandler) CreateSession(c *gin.Context) {
	var req sessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	res, err := h.svc.CreateSession(c.Request.Context(), analytics.SessionInput{
		UserID:     req.UserID,
		DeviceType: req.DeviceType,
		Platform:   req.Platform,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /sessions/:id/end
func (h *AnalyticsHandler) EndSession(c *gin.Context) {
	if !h.guard(c) {
		return
	}
	if err := h.svc.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessionId": c.Param("id"), "ended": true})
}

type trackRequest struct {
	FileID    string                 `json:"fileId"`
	FileKey   string                 `json:"fileKey"`
	SessionID string                 `json:"sessionId"`
	EventType string                 `json:"eventType"`
	VideoTime *float64               `json:"videoTime"`
	Quality   string                 `json:"quality"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp *time.Time             `json:"timestamp"`
}

// POST /analytics/track
func (h *AnalyticsHandler) Track(c *gin.Context) {
	if !h.guard(c) {
		return
	}
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Track(c.Request.Context(), analytics.TrackInput{
		FileID:    req.FileID,
		FileKey:   req.FileKey,
		SessionID: req.SessionID,
		EventType: req.EventType,
		VideoTime: req.VideoTime,
		Quality:   req.Quality,
		Metadata:  req.Metadata,
		Timestamp: req.Timestamp,
		UserAgent: c.Request.UserAgent(),
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /analytics/files/:id/stats
func (h *AnalyticsHandler) FileStats(c *gin.Context) {
	if !h.guard(c) {
		return
	}
	res, err := h.svc.FileStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	if !h.guard(c) {
		return
	}
	res, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
