package feed

import (
	"fmt"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/samirrijal/fleetmap/internal/core/domain"
)

// gtfsVehicleKind is the entity kind given to GTFS-Realtime vehicles.
const gtfsVehicleKind = "vehicle"

// DecodeGTFSRT maps the vehicle positions of a GTFS-Realtime FeedMessage.
// Entities without a position, and deleted entities, are skipped. A vehicle
// without its own timestamp takes the feed header's.
func DecodeGTFSRT(body []byte) ([]domain.PositionUpdate, error) {
	msg := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("unmarshal protobuf: %w", err)
	}

	headerTime := msg.GetHeader().GetTimestamp()
	updates := make([]domain.PositionUpdate, 0, len(msg.GetEntity()))
	for _, entity := range msg.GetEntity() {
		if entity.GetIsDeleted() {
			continue
		}
		vp := entity.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}
		pos := vp.GetPosition()

		vehicleID := vp.GetVehicle().GetId()
		if vehicleID == "" {
			vehicleID = vp.GetVehicle().GetLabel()
		}
		if vehicleID == "" {
			vehicleID = entity.GetId()
		}

		u := domain.PositionUpdate{
			EntityID: vehicleID,
			Kind:     gtfsVehicleKind,
			Lat:      float64(pos.GetLatitude()),
			Lng:      float64(pos.GetLongitude()),
			Heading:  float64(pos.GetBearing()),
			Speed:    float64(pos.GetSpeed()) * 3.6, // m/s to km/h
		}
		switch {
		case vp.Timestamp != nil:
			u.Timestamp = time.Unix(int64(vp.GetTimestamp()), 0).UTC()
		case headerTime > 0:
			u.Timestamp = time.Unix(int64(headerTime), 0).UTC()
		}
		updates = append(updates, u)
	}
	return updates, nil
}
