package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func vehicleFeed(t *testing.T) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1710000100),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("1"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle:   &gtfs.VehicleDescriptor{Id: proto.String("bus-12"), Label: proto.String("12")},
					Position:  &gtfs.Position{Latitude: proto.Float32(43.263), Longitude: proto.Float32(-2.935), Bearing: proto.Float32(90), Speed: proto.Float32(10)},
					Timestamp: proto.Uint64(1710000000),
				},
			},
			{
				Id: proto.String("2"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle:  &gtfs.VehicleDescriptor{Label: proto.String("tram-3")},
					Position: &gtfs.Position{Latitude: proto.Float32(43.26), Longitude: proto.Float32(-2.93)},
				},
			},
			{
				Id: proto.String("3"),
				Vehicle: &gtfs.VehiclePosition{
					Position: &gtfs.Position{Latitude: proto.Float32(43.25), Longitude: proto.Float32(-2.92)},
				},
			},
			{
				Id:        proto.String("gone"),
				IsDeleted: proto.Bool(true),
				Vehicle: &gtfs.VehiclePosition{
					Position: &gtfs.Position{Latitude: proto.Float32(1), Longitude: proto.Float32(1)},
				},
			},
			{
				Id:      proto.String("no-fix"),
				Vehicle: &gtfs.VehiclePosition{Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("bus-99")}},
			},
		},
	}
	body, err := proto.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestDecodeGTFSRT_VehiclePositions(t *testing.T) {
	updates, err := DecodeGTFSRT(vehicleFeed(t))
	require.NoError(t, err)
	require.Len(t, updates, 3)

	bus := updates[0]
	assert.Equal(t, "bus-12", bus.EntityID)
	assert.Equal(t, "vehicle", bus.Kind)
	assert.InDelta(t, 43.263, bus.Lat, 1e-5)
	assert.InDelta(t, -2.935, bus.Lng, 1e-5)
	assert.Equal(t, 90.0, bus.Heading)
	assert.Equal(t, 36.0, bus.Speed, "speed is reported in km/h")
	assert.Equal(t, time.Unix(1710000000, 0).UTC(), bus.Timestamp)

	assert.Equal(t, "tram-3", updates[1].EntityID, "label stands in for a missing vehicle id")
	assert.Equal(t, time.Unix(1710000100, 0).UTC(), updates[1].Timestamp, "header time stands in for a missing vehicle time")
	assert.Equal(t, "3", updates[2].EntityID, "entity id is the last fallback")
}

func TestDecodeGTFSRT_Invalid(t *testing.T) {
	_, err := DecodeGTFSRT([]byte{0xff})
	assert.ErrorContains(t, err, "unmarshal protobuf")
}

func TestClient_FetchGTFSRT(t *testing.T) {
	body := vehicleFeed(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	updates, err := NewClient(5*time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, updates, 3)

	_, err = NewClient(5*time.Second).WithFormat(FormatJSON).Fetch(context.Background(), srv.URL)
	assert.Error(t, err, "a forced JSON decoder cannot read protobuf")
}

func TestClient_ForcedGTFSRT(t *testing.T) {
	body := vehicleFeed(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	updates, err := NewClient(5*time.Second).WithFormat(FormatGTFSRT).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.Equal(t, "bus-12", updates[0].EntityID)
}
