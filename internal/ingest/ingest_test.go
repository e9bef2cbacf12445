package ingest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carnegiemellonracing/PiDAQ/internal/model"
	"github.com/carnegiemellonracing/PiDAQ/internal/session"
)

func TestParsePoint(t *testing.T) {
	pt, err := ParsePoint([]byte("rpi-7|lap1---100|2026-08-01T12:00:00Z|ride_height|42.5"))
	require.NoError(t, err)
	assert.Equal(t, "rpi-7", pt.DeviceID)
	assert.Equal(t, "lap1---100", pt.SessionID)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), pt.Timestamp)
	assert.Equal(t, "ride_height", pt.Channel)
	assert.Equal(t, 42.5, pt.Value)
}

func TestParsePointNaiveTimestamp(t *testing.T) {
	// Older firmware emits isoformat() stamps without a zone designator.
	pt, err := ParsePoint([]byte("rpi-7|lap1---100|2026-08-01T12:00:00.250000|ride_height|1"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 250_000_000, time.UTC), pt.Timestamp)
}

func TestParsePointRejectsMalformedLines(t *testing.T) {
	cases := map[string]string{
		"too few fields":  "rpi-7|lap1---100|2026-08-01T12:00:00Z|ride_height",
		"bad timestamp":   "rpi-7|lap1---100|yesterday|ride_height|1",
		"empty device":    " |lap1---100|2026-08-01T12:00:00Z|ride_height|1",
		"empty session":   "rpi-7| |2026-08-01T12:00:00Z|ride_height|1",
		"empty channel":   "rpi-7|lap1---100|2026-08-01T12:00:00Z| |1",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePoint([]byte(line))
			assert.Error(t, err)
		})
	}
}

func TestDecodeValueCoercion(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"12.5", 12.5},
		{`"12.5"`, 12.5},          // number encoded as JSON string
		{"17", 17.0},              // bare numeric text
		{`"calibrating"`, "calibrating"},
		{"not json at all", "not json at all"},
		{"[1, 2, 3]", []any{1.0, 2.0, 3.0}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, decodeValue(tc.in), "input %q", tc.in)
	}
}

func newActiveSession(t *testing.T) (*session.Store, *session.Session) {
	t.Helper()
	store := session.NewStore()
	sess, err := store.Start("lap1")
	require.NoError(t, err)
	return store, sess
}

func point(sessionID, channel string, value any) model.DataPoint {
	return model.DataPoint{
		DeviceID:  "rpi-7",
		SessionID: sessionID,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Channel:   channel,
		Value:     value,
	}
}

func TestIngestBuffersPoint(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	require.True(t, p.Ingest(point(sess.ID, "ride_height", 42.0)))

	require.Equal(t, []string{"rpi-7"}, sess.Roster)
	buf := sess.Data["rpi-7"]["ride_height"]
	require.NotNil(t, buf)
	require.Equal(t, 1, buf.Len())
	assert.Equal(t, 42.0, buf.Samples()[0].Value)
}

func TestIngestUnknownSessionIsDropped(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	assert.False(t, p.Ingest(point("ghost---1", "ride_height", 42.0)))
	assert.Empty(t, sess.Data)
	assert.Empty(t, sess.Roster)
}

func TestIngestAcceptsLatePointsForEndedSession(t *testing.T) {
	store, sess := newActiveSession(t)
	_, err := store.Stop(sess.ID)
	require.NoError(t, err)

	p := NewPipeline(store)
	require.True(t, p.Ingest(point(sess.ID, "ride_height", 42.0)))
	assert.Equal(t, 1, sess.Data["rpi-7"]["ride_height"].Len())
}

func TestFrameDerivesAverageChannel(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	frame := []any{20.0, 30.0, 40.0, 50.0}
	require.True(t, p.Ingest(point(sess.ID, "tire_temp_frame", frame)))

	channels := sess.Data["rpi-7"]
	require.Contains(t, channels, "tire_temp_frame")
	require.Contains(t, channels, "tire_temp_frame_avg")

	avg := channels["tire_temp_frame_avg"].Samples()
	require.Len(t, avg, 1)
	assert.Equal(t, 35.0, avg[0].Value)
	assert.Equal(t, point(sess.ID, "", nil).Timestamp, avg[0].Timestamp, "derived point reuses the frame timestamp")
}

func TestFrameWithTextElements(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	frame := []any{"20", "30", "40", "50"}
	require.True(t, p.Ingest(point(sess.ID, "tire_temp_frame", frame)))
	avg := sess.Data["rpi-7"]["tire_temp_frame_avg"].Samples()
	require.Len(t, avg, 1)
	assert.Equal(t, 35.0, avg[0].Value)
}

func TestEmptyOrBadFrameProducesNoDerivedPoint(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	require.True(t, p.Ingest(point(sess.ID, "tire_temp_frame", []any{})))
	require.True(t, p.Ingest(point(sess.ID, "tire_temp_frame", []any{1.0, "warm"})))
	require.True(t, p.Ingest(point(sess.ID, "tire_temp_frame", "not an array")))

	assert.NotContains(t, sess.Data["rpi-7"], "tire_temp_frame_avg")
	assert.Equal(t, 3, sess.Data["rpi-7"]["tire_temp_frame"].Len())
}

func TestOnPointSeesDerivedPoints(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	var seen []string
	p.OnPoint(func(pt model.DataPoint) { seen = append(seen, pt.Channel) })

	require.True(t, p.Ingest(point(sess.ID, "tire_temp_frame", []any{20.0, 30.0, 40.0, 50.0})))
	assert.Equal(t, []string{"tire_temp_frame", "tire_temp_frame_avg"}, seen)
}

func TestIngestEvictsBeyondCapacity(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		pt := point(sess.ID, "ride_height", float64(i))
		pt.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.True(t, p.Ingest(pt))
	}

	buf := sess.Data["rpi-7"]["ride_height"]
	require.Equal(t, session.BufferCapacity, buf.Len())
	assert.Equal(t, 50.0, buf.Samples()[0].Value)
	assert.Equal(t, 149.0, buf.Samples()[buf.Len()-1].Value)
}

func TestIngestWireLineEndToEnd(t *testing.T) {
	store, sess := newActiveSession(t)
	p := NewPipeline(store)

	line := fmt.Sprintf("rpi-7|%s|2026-08-01T12:00:00Z|tire_temp_frame|[20, 30, 40, 50]", sess.ID)
	pt, err := ParsePoint([]byte(line))
	require.NoError(t, err)
	require.True(t, p.Ingest(pt))

	avg := sess.Data["rpi-7"]["tire_temp_frame_avg"].Samples()
	require.Len(t, avg, 1)
	assert.Equal(t, 35.0, avg[0].Value)
}
