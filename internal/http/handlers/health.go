package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Check reports the health of one dependency; nil means healthy.
type Check func(ctx context.Context) error

type HealthConfig struct {
	Features Features
	Version  string
	Bucket   string
	// DBDriver is empty when no metadata database is configured.
	DBDriver string
	DB       Check
	Redis    Check
	Tools    Check
	WorkDir  string
}

type HealthHandler struct {
	cfg HealthConfig
}

func NewHealthHandler(cfg HealthConfig) *HealthHandler { return &HealthHandler{cfg: cfg} }

type dependencyState struct {
	Configured bool   `json:"configured"`
	Connected  bool   `json:"connected"`
	Driver     string `json:"driver,omitempty"`
	Error      string `json:"error,omitempty"`
}

type hostState struct {
	WorkDir          string  `json:"workDir,omitempty"`
	DiskFreeBytes    uint64  `json:"diskFreeBytes,omitempty"`
	DiskUsedPercent  float64 `json:"diskUsedPercent,omitempty"`
	MemUsedPercent   float64 `json:"memUsedPercent,omitempty"`
	MemAvailableByte uint64  `json:"memAvailableBytes,omitempty"`
}

type healthBody struct {
	Status     string          `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	Version    string          `json:"version,omitempty"`
	Bucket     string          `json:"bucket,omitempty"`
	Features   Features        `json:"features"`
	Repository dependencyState `json:"repository"`
	Redis      dependencyState `json:"redis"`
	MediaTools dependencyState `json:"mediaTools"`
	Host       hostState       `json:"host"`
}

// HealthCheck always answers 200; a failing optional dependency only
// downgrades the status to "degraded".
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	body := healthBody{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.cfg.Version,
		Bucket:    h.cfg.Bucket,
		Features:  h.cfg.Features,
	}
	body.Repository = probe(ctx, h.cfg.DB)
	body.Repository.Driver = h.cfg.DBDriver
	body.Redis = probe(ctx, h.cfg.Redis)
	body.MediaTools = probe(ctx, h.cfg.Tools)
	for _, d := range []dependencyState{body.Repository, body.Redis, body.MediaTools} {
		if d.Configured && !d.Connected {
			body.Status = "degraded"
		}
	}

	if h.cfg.WorkDir != "" {
		body.Host.WorkDir = h.cfg.WorkDir
		if u, err := disk.UsageWithContext(ctx, h.cfg.WorkDir); err == nil {
			body.Host.DiskFreeBytes = u.Free
			body.Host.DiskUsedPercent = u.UsedPercent
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		body.Host.MemUsedPercent = vm.UsedPercent
		body.Host.MemAvailableByte = vm.Available
	}
	c.JSON(http.StatusOK, body)
}

func probe(ctx context.Context, check Check) dependencyState {
	if check == nil {
		return dependencyState{}
	}
	if err := check(ctx); err != nil {
		return dependencyState{Configured: true, Error: err.Error()}
	}
	return dependencyState{Configured: true, Connected: true}
}
