package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Shapes(t *testing.T) {
	arr, err := Decode([]byte(` [{"entity_id":"a","lat":1,"lng":2}]`))
	require.NoError(t, err)
	require.Len(t, arr, 1)
	assert.Equal(t, "a", arr[0].EntityID)

	obj, err := Decode([]byte(`{"positions":[{"entity_id":"b","lat":3,"lng":4},{"entity_id":"c","lat":5,"lng":6}]}`))
	require.NoError(t, err)
	assert.Len(t, obj, 2)

	empty, err := Decode([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = Decode([]byte(`{"positions":`))
	assert.Error(t, err)
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "application/json")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"entity_id":"car-7","lat":33.57,"lng":-7.58,"timestamp":"2024-03-09T10:00:00Z"},{"entity_id":"car-8","lat":33.6,"lng":-7.6}]`))
	}))
	defer srv.Close()

	updates, err := NewClient(5*time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), updates[0].Timestamp.UTC())
	assert.False(t, updates[1].Timestamp.IsZero(), "missing timestamps are stamped")
}

func TestClient_FetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(time.Second).Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "HTTP 502")
}
