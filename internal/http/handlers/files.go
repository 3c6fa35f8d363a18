package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/video-gateway/internal/http/response"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
	"github.com/yungbote/video-gateway/internal/platform/logger"
	"github.com/yungbote/video-gateway/internal/services/media"
)

const (
	minURLMinutes = 1
	maxURLMinutes = 7 * 24 * 60
	// multipart framing allowance on top of the file size ceiling
	multipartSlack = 1 << 20
)

type FileHandler struct {
	log            *logger.Logger
	media          *media.Services
	features       Features
	maxUploadBytes int64
}

func NewFileHandler(log *logger.Logger, svc *media.Services, features Features, maxUploadBytes int64) *FileHandler {
	return &FileHandler{
		log:            log.With("handler", "FileHandler"),
		media:          svc,
		features:       features,
		maxUploadBytes: maxUploadBytes,
	}
}

// GET /files
func (h *FileHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	res, err := h.media.Catalog.List(c.Request.Context(), media.ListInput{
		Prefix:    c.Query("prefix"),
		Limit:     limit,
		PageToken: c.Query("pageToken"),
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /files/upload
func (h *FileHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartSlack)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			response.RespondError(c, http.StatusBadRequest, "file_too_large", fmt.Errorf("Upload exceeds the maximum of %d bytes", h.maxUploadBytes))
			return
		}
		response.RespondError(c, http.StatusBadRequest, "missing_file", errors.New("No file provided"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return
	}
	defer f.Close()

	// Browsers and curl often send octet-stream for video parts.
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = gcp.ContentTypeForKey(fh.Filename)
	}
	res, err := h.media.Uploads.UploadDirect(c.Request.Context(), media.UploadInput{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Reader:      f,
		Quality:     c.PostForm("quality"),
		UploaderID:  c.PostForm("uploaderId"),
		Tags:        formTags(c),
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

func formTags(c *gin.Context) []string {
	var out []string
	for _, v := range c.PostFormArray("tags") {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

type presignRequest struct {
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	FileSize   int64  `json:"fileSize"`
	UploaderID string `json:"uploaderId"`
}

// POST /files/generate-upload-url
func (h *FileHandler) GenerateUploadURL(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.media.Uploads.PresignUpload(c.Request.Context(), media.PresignInput{
		Name:        req.FileName,
		ContentType: req.FileType,
		Size:        req.FileSize,
		UploaderID:  req.UploaderID,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

type completeRequest struct {
	Key string `json:"key"`
}

// POST /files/complete-upload
func (h *FileHandler) CompleteUpload(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.media.Uploads.CompleteUpload(c.Request.Context(), req.Key)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /files/:key/signed-url
func (h *FileHandler) SignedURL(c *gin.Context) {
	ttl, err := urlTTL(c.Query("expiresInMinutes"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	action := gcp.SignedAction(strings.ToLower(c.DefaultQuery("action", string(gcp.SignedActionRead))))
	res, err := h.media.Streams.SignedURL(c.Request.Context(), media.SignedURLInput{
		Key:         c.Param("key"),
		Quality:     c.Query("quality"),
		Action:      action,
		TTL:         ttl,
		ContentType: c.Query("contentType"),
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// urlTTL clamps expiresInMinutes to one minute .. seven days.
func urlTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.Validation("invalid_expiry", errors.New("expiresInMinutes must be an integer"))
	}
	if n < minURLMinutes {
		n = minURLMinutes
	}
	if n > maxURLMinutes {
		n = maxURLMinutes
	}
	return time.Duration(n) * time.Minute, nil
}

// GET /files/:key/stream
func (h *FileHandler) Stream(c *gin.Context) {
	if !h.features.Streaming {
		response.RespondErr(c, apierr.FeatureDisabled("streaming"))
		return
	}
	ctx := c.Request.Context()
	key := c.Param("key")
	quality := c.Query("quality")
	resolved := h.media.Streams.ResolveKey(ctx, key, quality)

	st, err := h.media.Streams.Open(ctx, resolved, c.GetHeader("Range"))
	if err != nil {
		if errors.Is(err, media.ErrRangeNotSatisfiable) && st != nil {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", st.Size))
		}
		response.RespondErr(c, err)
		return
	}
	defer st.Body.Close()

	// Players issue many range requests per view; only the first byte counts.
	if !st.Partial || st.Range.Start == 0 {
		sessionID := c.GetHeader("X-Session-Id")
		if sessionID == "" {
			sessionID = c.Query("sessionId")
		}
		h.media.Streams.RecordView(ctx, media.ViewInput{
			Key:       key,
			SessionID: sessionID,
			Quality:   quality,
			UserAgent: c.Request.UserAgent(),
			ClientIP:  c.ClientIP(),
		})
	}

	headers := map[string]string{
		"Accept-Ranges": "bytes",
		"Cache-Control": "private, max-age=3600",
	}
	if st.ETag != "" {
		headers["ETag"] = strconv.Quote(st.ETag)
	}
	if !st.Updated.IsZero() {
		headers["Last-Modified"] = st.Updated.UTC().Format(http.TimeFormat)
	}
	status := http.StatusOK
	if st.Partial {
		status = http.StatusPartialContent
		headers["Content-Range"] = fmt.Sprintf("bytes %d-%d/%d", st.Range.Start, st.Range.End, st.Size)
	}
	c.DataFromReader(status, st.Length(), st.ContentType, st.Body, headers)
}

// GET /files/:key/metadata
func (h *FileHandler) Metadata(c *gin.Context) {
	res, err := h.media.Catalog.Metadata(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

type transcodeRequest struct {
	Quality string `json:"quality"`
}

// POST /files/:key/transcode
func (h *FileHandler) Transcode(c *gin.Context) {
	if !h.features.Transcoding {
		response.RespondErr(c, apierr.FeatureDisabled("transcoding"))
		return
	}
	var req transcodeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	res, err := h.media.Transcodes.Request(c.Request.Context(), c.Param("key"), req.Quality)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /files/:key/transcodes
func (h *FileHandler) TranscodeJobs(c *gin.Context) {
	jobs, err := h.media.Transcodes.Jobs(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

type thumbnailRequest struct {
	TimeOffset *float64 `json:"timeOffset"`
}

// POST /files/:key/thumbnail
func (h *FileHandler) Thumbnail(c *gin.Context) {
	if !h.features.Thumbnails {
		response.RespondErr(c, apierr.FeatureDisabled("thumbnails"))
		return
	}
	var req thumbnailRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	offset := 1.0
	if req.TimeOffset != nil {
		offset = *req.TimeOffset
	}
	res, err := h.media.Thumbnails.Generate(c.Request.Context(), c.Param("key"), offset)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// DELETE /files/:key
func (h *FileHandler) Delete(c *gin.Context) {
	res, err := h.media.Catalog.Delete(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
