package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Directory is the engine's view of the master-data it does not own.
type Directory interface {
	// CheckClient returns nil for an active client, ErrNotFound for an
	// unknown id and ErrInactive for a deactivated one.
	CheckClient(ctx context.Context, clientID string) error
	CheckSpace(ctx context.Context, spaceID string) error
	// Resources returns info for every requested id that exists, active
	// or not; absent ids are unknown.
	Resources(ctx context.Context, resourceIDs []string) (map[string]ResourceInfo, error)
}

// EventPublisher emits domain events after a booking operation commits.
type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, res *Reservation) error
	PublishReservationCanceled(ctx context.Context, res *Reservation) error
}

const (
	contentionRetries = 3
	contentionBackoff = 100 * time.Millisecond
)

// Service is the booking orchestrator: it validates referenced entities
// against the directory, delegates the atomic work to the repository, and
// retries transient contention a bounded number of times.
type Service struct {
	repo   Repository
	dir    Directory
	pub    EventPublisher // optional
	logger *log.Logger
}

func NewService(repo Repository, dir Directory, pub EventPublisher, logger *log.Logger) *Service {
	return &Service{repo: repo, dir: dir, pub: pub, logger: logger}
}

func (s *Service) Create(ctx context.Context, clientID, spaceID string, lines []ResourceLine, start, end time.Time) (*Reservation, error) {
	if clientID == "" || spaceID == "" {
		return nil, fmt.Errorf("%w: clientId and spaceId are required", ErrInvalidInput)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: startDate must be before endDate", ErrInvalidInput)
	}
	for _, ln := range lines {
		if ln.ResourceID == "" || ln.Quantity <= 0 {
			return nil, fmt.Errorf("%w: each resource line needs an id and a positive quantity", ErrInvalidInput)
		}
	}

	if err := s.dir.CheckClient(ctx, clientID); err != nil {
		return nil, err
	}
	if err := s.dir.CheckSpace(ctx, spaceID); err != nil {
		return nil, err
	}
	if err := s.checkResources(ctx, lines); err != nil {
		return nil, err
	}

	res := &Reservation{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		SpaceID:   spaceID,
		StartDate: start.UTC(),
		EndDate:   end.UTC(),
		Status:    StatusOpen,
		Resources: lines,
	}

	if err := s.withRetry(ctx, func() error { return s.repo.Create(ctx, res) }); err != nil {
		return nil, err
	}

	s.logger.Printf("reservation created id=%s space=%s client=%s lines=%d", res.ID, spaceID, clientID, len(lines))
	s.publishCreated(ctx, res)
	return res, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*Reservation, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListForSpace(ctx context.Context, spaceID string, from, to time.Time) ([]Reservation, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}
	return s.repo.ListForSpace(ctx, spaceID, from, to)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, target Status) (*Reservation, error) {
	var res *Reservation
	err := s.withRetry(ctx, func() error {
		var err error
		res, err = s.repo.UpdateStatus(ctx, id, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("reservation status updated id=%s status=%s", id, target)
	return res, nil
}

func (s *Service) UpdateWindow(ctx context.Context, id string, start, end *time.Time) (*Reservation, error) {
	if start == nil && end == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	var res *Reservation
	err := s.withRetry(ctx, func() error {
		var err error
		res, err = s.repo.UpdateWindow(ctx, id, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("reservation window updated id=%s start=%s end=%s", id, res.StartDate.Format(time.RFC3339), res.EndDate.Format(time.RFC3339))
	return res, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*Reservation, error) {
	var res *Reservation
	err := s.withRetry(ctx, func() error {
		var err error
		res, err = s.repo.Cancel(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("reservation canceled id=%s lines=%d", id, len(res.Resources))
	s.publishCanceled(ctx, res)
	return res, nil
}

func (s *Service) checkResources(ctx context.Context, lines []ResourceLine) error {
	if len(lines) == 0 {
		return nil
	}
	ids := make([]string, 0, len(lines))
	for _, ln := range lines {
		ids = append(ids, ln.ResourceID)
	}
	infos, err := s.dir.Resources(ctx, ids)
	if err != nil {
		return fmt.Errorf("check resources: %w", err)
	}
	for _, ln := range lines {
		info, ok := infos[ln.ResourceID]
		if !ok {
			return fmt.Errorf("resource %s: %w", ln.ResourceID, ErrNotFound)
		}
		if !info.Active {
			return fmt.Errorf("resource %s: %w", ln.ResourceID, ErrInactive)
		}
	}
	return nil
}

// withRetry re-runs op on ErrContention with linear backoff. The
// repository guarantees nothing was committed when it reports contention.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < contentionRetries; attempt++ {
		if err = op(); !errors.Is(err, ErrContention) {
			return err
		}
		s.logger.Printf("contention, retrying (attempt %d/%d): %v", attempt+1, contentionRetries, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * contentionBackoff):
		}
	}
	return err
}

func (s *Service) publishCreated(ctx context.Context, res *Reservation) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishReservationCreated(ctx, res); err != nil {
		s.logger.Printf("publish ReservationCreated id=%s: %v", res.ID, err)
	}
}

func (s *Service) publishCanceled(ctx context.Context, res *Reservation) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishReservationCanceled(ctx, res); err != nil {
		s.logger.Printf("publish ReservationCanceled id=%s: %v", res.ID, err)
	}
}
