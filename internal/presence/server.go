package presence

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridedispatch/internal/booking/domain"
)

// Server ingests driver presence streams and keeps the dispatch directory
// current. Malformed updates are skipped, not fatal to the stream.
type Server struct {
	tracker   *Tracker
	directory domain.DriverDirectory
	geo       *RedisGeoIndex
	logger    *zap.Logger
}

// NewServer constructs a server. The geo index is optional.
func NewServer(tracker *Tracker, directory domain.DriverDirectory, geo *RedisGeoIndex, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{tracker: tracker, directory: directory, geo: geo, logger: logger}
}

// StreamPresence consumes updates until the driver app closes the stream.
func (s *Server) StreamPresence(stream Presence_StreamPresenceServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		driverID, err := uuid.Parse(msg.DriverId)
		if err != nil {
			continue
		}
		status, ok := parseStatus(msg.Status)
		if !ok {
			continue
		}
		ctx := stream.Context()
		s.tracker.Update(ctx, driverID, status, domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng}, msg.Speed, msg.Accuracy)
		if err := s.directory.SetStatus(ctx, driverID, status); err != nil {
			s.logger.Warn("presence directory update failed",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
		if err := s.geo.Upsert(ctx, driverID, status, domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng}); err != nil {
			s.logger.Warn("presence geo update failed",
				zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}
}

func parseStatus(raw string) (domain.DriverStatus, bool) {
	switch domain.DriverStatus(raw) {
	case domain.DriverOnline, domain.DriverOffline, domain.DriverOnTrip:
		return domain.DriverStatus(raw), true
	default:
		return "", false
	}
}
