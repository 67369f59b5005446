package natsadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

func TestPositionSubject(t *testing.T) {
	tests := map[string]string{
		"car-7":       "fleet.position.car-7",
		"fleet.car.7": "fleet.position.fleet_car_7",
		"a b*c>":      "fleet.position.a_b_c_",
		"":            "fleet.position._",
	}
	for id, want := range tests {
		if got := PositionSubject(id); got != want {
			t.Errorf("PositionSubject(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestDecodePosition(t *testing.T) {
	if _, ok := decodePosition([]byte("{not json"), "car-7"); ok {
		t.Error("malformed payload should be skipped")
	}
	if _, ok := decodePosition([]byte(`{"entity_id":"other","lat":1,"lng":2}`), "car-7"); ok {
		t.Error("foreign entity should be skipped")
	}
	u, ok := decodePosition([]byte(`{"entity_id":"car-7","lat":33.5,"lng":-7.5}`), "car-7")
	if !ok || u.Lat != 33.5 || u.Lng != -7.5 {
		t.Errorf("unexpected decode result %+v %v", u, ok)
	}
}

func TestPositionSource_NoConnectionIsUnsupported(t *testing.T) {
	_, err := NewPositionSource(nil, "car-7").Watch(context.Background())
	if !errors.Is(err, domain.ErrUnsupportedCapability) {
		t.Errorf("expected ErrUnsupportedCapability, got %v", err)
	}
	if _, err := SourceFactory(nil)("car-7").Watch(context.Background()); !errors.Is(err, domain.ErrUnsupportedCapability) {
		t.Errorf("factory source should also be unsupported, got %v", err)
	}
}
