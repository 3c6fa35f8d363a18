package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
	"github.com/yungbote/video-gateway/internal/platform/gcp"
)

type ListInput struct {
	Prefix    string
	Limit     int
	PageToken string
}

// FileEntry is a stored object, enriched with its record when one exists.
type FileEntry struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	ContentType string            `json:"contentType"`
	Updated     time.Time         `json:"updated"`
	URL         string            `json:"url,omitempty"`
	Record      *types.FileRecord `json:"metadata,omitempty"`
	Qualities   map[string]string `json:"qualities,omitempty"`
}

type ListSummary struct {
	TotalFiles     int    `json:"totalFiles"`
	TotalSize      int64  `json:"totalSize"`
	TotalSizeHuman string `json:"totalSizeHuman"`
	Processed      int    `json:"processed"`
}

type ListResult struct {
	Files         []FileEntry `json:"files"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	Summary       ListSummary `json:"summary"`
}

type MetadataResult struct {
	Key         string                  `json:"key"`
	Size        int64                   `json:"size"`
	ContentType string                  `json:"contentType"`
	Updated     time.Time               `json:"updated"`
	ETag        string                  `json:"etag,omitempty"`
	Storage     map[string]string       `json:"storageMetadata,omitempty"`
	Record      *types.FileRecord       `json:"metadata,omitempty"`
	Qualities   map[string]string       `json:"qualities,omitempty"`
	Jobs        []*types.TranscodingJob `json:"transcodingJobs,omitempty"`
}

type DeleteResult struct {
	Key     string   `json:"key"`
	Deleted []string `json:"deleted"`
	Record  bool     `json:"recordDeleted"`
}

type CatalogService interface {
	List(ctx context.Context, in ListInput) (*ListResult, error)
	Metadata(ctx context.Context, key string) (*MetadataResult, error)
	Delete(ctx context.Context, key string) (*DeleteResult, error)
}

type catalogService struct {
	*core
}

func NewCatalogService(deps Deps, cfg Config) CatalogService {
	return &catalogService{core: newCore(deps, cfg, "CatalogService")}
}

func (s *catalogService) List(ctx context.Context, in ListInput) (*ListResult, error) {
	prefix := strings.TrimSpace(in.Prefix)
	if prefix == "" {
		prefix = s.cfg.UploadPrefix + "/"
	}
	limit := in.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	page, err := s.store.List(ctx, prefix, limit, in.PageToken)
	if err != nil {
		return nil, apierr.Upstream("list_failed", err)
	}

	byKey := map[string]*types.FileRecord{}
	if s.repos != nil && len(page.Objects) > 0 {
		keys := make([]string, 0, len(page.Objects))
		for _, o := range page.Objects {
			keys = append(keys, o.Key)
		}
		dbc := dbctx.From(ctx)
		recs, err := s.repos.Files.GetByStoredKeys(dbc, keys)
		if err != nil {
			s.log.Warn("Listing without records", "prefix", prefix, "error", err)
		}
		byID := make(map[uuid.UUID]*types.FileRecord, len(recs))
		ids := make([]uuid.UUID, 0, len(recs))
		for _, r := range recs {
			byKey[r.StoredKey] = r
			byID[r.ID] = r
			ids = append(ids, r.ID)
		}
		renditions, err := s.repos.Renditions.ListByFileIDs(dbc, ids)
		if err != nil {
			s.log.Warn("Listing without renditions", "prefix", prefix, "error", err)
		}
		for _, rd := range renditions {
			if rec, ok := byID[rd.FileID]; ok {
				rec.Renditions = append(rec.Renditions, *rd)
			}
		}
	}

	res := &ListResult{Files: make([]FileEntry, 0, len(page.Objects)), NextPageToken: page.NextPageToken}
	for _, o := range page.Objects {
		entry := FileEntry{
			Key:         o.Key,
			Name:        displayName(o),
			Size:        o.Size,
			ContentType: o.ContentType,
			Updated:     o.Updated,
		}
		if rec, ok := byKey[o.Key]; ok {
			entry.Record = rec
			entry.Name = rec.OriginalName
			if q := rec.QualityMap(); len(q) > 0 {
				entry.Qualities = q
			}
			if rec.ProcessingStatus == types.StatusCompleted {
				res.Summary.Processed++
			}
		}
		res.Summary.TotalFiles++
		res.Summary.TotalSize += o.Size
		res.Files = append(res.Files, entry)
	}
	res.Summary.TotalSizeHuman = FormatBytes(res.Summary.TotalSize)
	return res, nil
}

func (s *catalogService) Metadata(ctx context.Context, key string) (*MetadataResult, error) {
	attrs, err := s.store.Attrs(ctx, key)
	if err != nil {
		return nil, storeErr("attrs_failed", err)
	}
	res := &MetadataResult{
		Key:         attrs.Key,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.ETag,
		Storage:     attrs.Metadata,
	}
	if s.repos == nil {
		return res, nil
	}
	dbc := dbctx.From(ctx)
	rec, err := s.repos.Files.GetByStoredKey(dbc, key)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			s.log.Warn("Metadata without record", "key", key, "error", err)
		}
		return res, nil
	}
	res.Record = rec
	if q := rec.QualityMap(); len(q) > 0 {
		res.Qualities = q
	}
	if jobs, err := s.repos.Jobs.ListByFile(dbc, rec.ID); err == nil && len(jobs) > 0 {
		res.Jobs = jobs
	}
	return res, nil
}

// Delete removes the original, its renditions and thumbnail, then the record.
// Objects that are already gone do not fail the call.
func (s *catalogService) Delete(ctx context.Context, key string) (*DeleteResult, error) {
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, storeErr("exists_failed", err)
	}

	var rec *types.FileRecord
	if s.repos != nil {
		rec, err = s.repos.Files.GetByStoredKey(dbctx.From(ctx), key)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("load record: %w", err)
		}
	}
	if !exists && rec == nil {
		return nil, fileNotFound()
	}

	targets := []string{key}
	if rec != nil {
		for _, r := range rec.Renditions {
			targets = append(targets, r.StoredKey)
		}
		if rec.ThumbnailKey != nil && *rec.ThumbnailKey != "" {
			targets = append(targets, *rec.ThumbnailKey)
		}
	}

	res := &DeleteResult{Key: key, Deleted: []string{}}
	for _, k := range targets {
		if err := s.store.Delete(ctx, k); err != nil && !errors.Is(err, gcp.ErrObjectNotFound) {
			return nil, apierr.Upstream("delete_failed", fmt.Errorf("delete %s: %w", k, err))
		}
		res.Deleted = append(res.Deleted, k)
	}
	if rec != nil {
		if err := s.deleteRecord(ctx, rec.ID); err != nil {
			return nil, err
		}
		res.Record = true
	}
	s.log.Info("File deleted", "key", key, "objects", len(res.Deleted), "record", res.Record)
	return res, nil
}

func (s *catalogService) deleteRecord(ctx context.Context, id uuid.UUID) error {
	if err := s.repos.Files.Delete(dbctx.From(ctx), id); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func displayName(o gcp.ObjectAttrs) string {
	if n := o.Metadata["originalName"]; n != "" {
		return n
	}
	base := o.Key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return base
}

// FormatBytes renders n with binary units, e.g. "1.5 GB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
