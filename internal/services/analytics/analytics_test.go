package analytics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/video-gateway/internal/data/repos"
	"github.com/yungbote/video-gateway/internal/data/repos/testutil"
	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/apierr"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
)

func newRepoService(t *testing.T) (*service, *repos.Set) {
	t.Helper()
	rs := repos.NewSet(testutil.DB(t), testutil.Logger(t))
	return New(testutil.Logger(t), rs, 30*time.Minute).(*service), rs
}

func seedFile(t *testing.T, rs *repos.Set, key string) *types.FileRecord {
	t.Helper()
	f := &types.FileRecord{StoredKey: key, OriginalName: "clip.mp4", SizeBytes: 1000, MimeType: "video/mp4"}
	require.NoError(t, rs.Files.Create(dbctx.From(context.Background()), f))
	return f
}

func TestCreateSessionWithoutRepositoryIsEphemeral(t *testing.T) {
	svc := New(testutil.Logger(t), nil, 0)
	a, err := svc.CreateSession(context.Background(), SessionInput{DeviceType: "headset"})
	require.NoError(t, err)
	b, err := svc.CreateSession(context.Background(), SessionInput{})
	require.NoError(t, err)

	assert.False(t, a.Persisted)
	assert.NotEmpty(t, a.SessionID)
	assert.NotEqual(t, a.SessionID, b.SessionID)
}

func TestRepositoryOnlyOperationsWithoutRepository(t *testing.T) {
	svc := New(testutil.Logger(t), nil, 0)
	ctx := context.Background()

	_, err := svc.Track(ctx, TrackInput{FileKey: "k", SessionID: "s", EventType: "pause"})
	assert.Equal(t, http.StatusServiceUnavailable, apierr.StatusOf(err))
	_, err = svc.Dashboard(ctx)
	assert.Equal(t, http.StatusServiceUnavailable, apierr.StatusOf(err))
	_, err = svc.FileStats(ctx, "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, http.StatusServiceUnavailable, apierr.StatusOf(err))

	n, err := svc.ExpireIdle(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionLifecycle(t *testing.T) {
	svc, rs := newRepoService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, SessionInput{UserID: "u-1", DeviceType: "headset", Platform: "quest"})
	require.NoError(t, err)
	assert.True(t, res.Persisted)

	sess, err := rs.Sessions.GetBySessionID(dbctx.From(ctx), res.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsActive)
	require.NotNil(t, sess.UserID)
	assert.Equal(t, "u-1", *sess.UserID)

	require.NoError(t, svc.EndSession(ctx, res.SessionID))
	require.NoError(t, svc.EndSession(ctx, res.SessionID), "ending twice is harmless")

	err = svc.EndSession(ctx, "does-not-exist")
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
}

func TestExpireIdleSessions(t *testing.T) {
	svc, rs := newRepoService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, SessionInput{})
	require.NoError(t, err)

	n, err := svc.ExpireIdle(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh session stays active")

	later := time.Now().UTC().Add(31 * time.Minute)
	svc.now = func() time.Time { return later }
	n, err = svc.ExpireIdle(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	sess, err := rs.Sessions.GetBySessionID(dbctx.From(ctx), res.SessionID)
	require.NoError(t, err)
	assert.False(t, sess.IsActive)
	assert.NotNil(t, sess.EndedAt)
}

func TestTrackValidatesAndResolvesFile(t *testing.T) {
	svc, rs := newRepoService(t)
	ctx := context.Background()
	f := seedFile(t, rs, "360-videos/1-aa-clip.mp4")

	_, err := svc.Track(ctx, TrackInput{FileKey: f.StoredKey, SessionID: "s-1", EventType: "rewind"})
	assert.Equal(t, "invalid_event_type", apierr.CodeOf(err))

	_, err = svc.Track(ctx, TrackInput{FileKey: "360-videos/unknown.mp4", SessionID: "s-1", EventType: "pause"})
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))

	_, err = svc.Track(ctx, TrackInput{FileID: "not-a-uuid", SessionID: "s-1", EventType: "pause"})
	assert.Equal(t, "invalid_file_id", apierr.CodeOf(err))

	vt := 12.5
	byKey, err := svc.Track(ctx, TrackInput{FileKey: f.StoredKey, SessionID: "s-1", EventType: "pause", VideoTime: &vt})
	require.NoError(t, err)
	assert.Equal(t, f.ID, byKey.FileID)

	vt2 := 30.0
	_, err = svc.Track(ctx, TrackInput{FileID: f.ID.String(), SessionID: "s-2", EventType: "seek", VideoTime: &vt2, Metadata: map[string]interface{}{"from": 12.5}})
	require.NoError(t, err)

	stats, err := svc.FileStats(ctx, f.ID.String())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Events.TotalEvents)
	assert.EqualValues(t, 2, stats.Events.UniqueSessions)
	require.NotNil(t, stats.Events.MaxVideoTime)
	assert.InDelta(t, 30.0, *stats.Events.MaxVideoTime, 0.001)
}

func TestDashboardAggregates(t *testing.T) {
	svc, rs := newRepoService(t)
	ctx := context.Background()
	dbc := dbctx.From(ctx)

	a := seedFile(t, rs, "360-videos/a.mp4")
	seedFile(t, rs, "360-videos/b.mp4")
	require.NoError(t, rs.Files.IncrementViews(dbc, a.ID, time.Now().UTC()))
	_, err := svc.CreateSession(ctx, SessionInput{})
	require.NoError(t, err)
	_, err = svc.Track(ctx, TrackInput{FileID: a.ID.String(), SessionID: "s-1", EventType: "view_start"})
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, d.TotalFiles)
	assert.EqualValues(t, 2000, d.TotalBytes)
	assert.EqualValues(t, 1, d.TotalViews)
	assert.EqualValues(t, 2, d.ByStatus[types.StatusPending])
	require.Len(t, d.TopViewed, 1)
	assert.Equal(t, a.ID, d.TopViewed[0].ID)
	assert.EqualValues(t, 1, d.EventsLast24h["view_start"])
	assert.EqualValues(t, 1, d.ActiveSessions)
}
