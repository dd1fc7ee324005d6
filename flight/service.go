// Package flight serves the rentals table and its grouped means over Arrow
// Flight, and provides a client for pulling them.
package flight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/query"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// TicketDaily streams the derived daily table.
	TicketDaily = "daily"

	meansPrefix = "means:"
)

// MeansTicket builds the ticket for the mean of value grouped by cols.
func MeansTicket(cols []string, value string) string {
	return meansPrefix + strings.Join(cols, ",") + ":" + value
}

func parseMeansTicket(t string) (cols []string, value string, err error) {
	body := strings.TrimPrefix(t, meansPrefix)
	i := strings.LastIndex(body, ":")
	if i <= 0 || i == len(body)-1 {
		return nil, "", fmt.Errorf("malformed means ticket %q", t)
	}
	return strings.Split(body[:i], ","), body[i+1:], nil
}

// Source supplies the table served by the service.
type Source interface {
	Table(ctx context.Context) (*db.Table, error)
}

// Service is a read-only Flight service over a Source.
type Service struct {
	flight.BaseFlightServer
	src    Source
	logger *zap.Logger
	mem    memory.Allocator
}

func NewService(src Source, logger *zap.Logger) *Service {
	return &Service{
		src:    src,
		logger: logger.With(zap.String("component", "flight")),
		mem:    memory.NewGoAllocator(),
	}
}

// NewServer creates a Flight server listening on addr with svc registered.
func NewServer(addr string, svc *Service) (flight.Server, error) {
	server := flight.NewServerWithMiddleware(nil)
	if err := server.Init(addr); err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	server.RegisterFlightService(svc)
	return server, nil
}

func (s *Service) ListFlights(_ *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	t, err := s.src.Table(stream.Context())
	if err != nil {
		return toStatus(err)
	}
	return stream.Send(&flight.FlightInfo{
		Schema:           flight.SerializeSchema(t.Schema(), s.mem),
		FlightDescriptor: &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{TicketDaily}},
		Endpoint:         []*flight.FlightEndpoint{{Ticket: &flight.Ticket{Ticket: []byte(TicketDaily)}}},
		TotalRecords:     int64(t.NumRows()),
		TotalBytes:       -1,
	})
}

func (s *Service) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	name := string(ticket.GetTicket())

	t, err := s.src.Table(stream.Context())
	if err != nil {
		return toStatus(err)
	}

	var rec arrow.Record
	switch {
	case name == TicketDaily:
		rec = t.Record()
		rec.Retain()
	case strings.HasPrefix(name, meansPrefix):
		cols, value, err := parseMeansTicket(name)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "invalid ticket: %v", err)
		}
		means, err := query.GroupMean(t, cols, value)
		if err != nil {
			return toStatus(err)
		}
		rec = meansRecord(s.mem, means)
	default:
		return status.Errorf(codes.InvalidArgument, "invalid ticket: %q", name)
	}
	defer rec.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	defer writer.Close()

	if err := writer.Write(rec); err != nil {
		return status.Errorf(codes.Internal, "failed to write record: %v", err)
	}
	s.logger.Debug("served ticket", zap.String("ticket", name), zap.Int64("rows", rec.NumRows()))
	return nil
}

// DoPut is rejected: the dataset is read-only.
func (s *Service) DoPut(flight.FlightService_DoPutServer) error {
	return status.Error(codes.Unimplemented, "dataset is read-only")
}

// meansRecord lays out grouped means as one int64 column per grouping
// column followed by count and mean.
func meansRecord(mem memory.Allocator, g *query.GroupedMeans) arrow.Record {
	fields := make([]arrow.Field, 0, len(g.GroupBy)+2)
	for _, col := range g.GroupBy {
		fields = append(fields, arrow.Field{Name: col, Type: arrow.PrimitiveTypes.Int64})
	}
	fields = append(fields,
		arrow.Field{Name: "count", Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: "mean", Type: arrow.PrimitiveTypes.Float64},
	)

	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()
	for _, grp := range g.Groups {
		for i, v := range grp.Key {
			b.Field(i).(*array.Int64Builder).Append(v)
		}
		b.Field(len(g.GroupBy)).(*array.Int64Builder).Append(int64(grp.Count))
		b.Field(len(g.GroupBy) + 1).(*array.Float64Builder).Append(grp.Value)
	}
	return b.NewRecord()
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, db.ErrDataUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, db.ErrColumnNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, db.ErrUnsupportedType), errors.Is(err, query.ErrNoGroupColumns):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
