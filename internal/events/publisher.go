package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/reservation"
	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/sequence"
)

const defaultProducer = "booking-service-go"

// Publisher emits reservation lifecycle events after the owning
// transaction has committed. Events for the same space share a partition
// key so consumers see them in order.
type Publisher struct {
	ch       *amqp.Channel
	seqRepo  *sequence.Repository
	producer string
}

func NewPublisher(conn *amqp.Connection, seqRepo *sequence.Repository) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	return &Publisher{
		ch:       ch,
		seqRepo:  seqRepo,
		producer: defaultProducer,
	}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishReservationCreated(ctx context.Context, res *reservation.Reservation) error {
	payload := ReservationCreatedPayload{
		ReservationID: res.ID,
		ClientID:      res.ClientID,
		SpaceID:       res.SpaceID,
		StartDate:     res.StartDate,
		EndDate:       res.EndDate,
		Resources:     toEventLines(res.Resources),
	}
	return p.publish(ctx, EventTypeReservationCreated, ReservationCreatedRoutingKey, res.SpaceID, payload)
}

func (p *Publisher) PublishReservationCanceled(ctx context.Context, res *reservation.Reservation) error {
	payload := ReservationCanceledPayload{
		ReservationID: res.ID,
		ClientID:      res.ClientID,
		SpaceID:       res.SpaceID,
		Released:      toEventLines(res.Resources),
	}
	if res.ClosedAt != nil {
		payload.ClosedAt = *res.ClosedAt
	}
	return p.publish(ctx, EventTypeReservationCanceled, ReservationCanceledRoutingKey, res.SpaceID, payload)
}

func (p *Publisher) publish(ctx context.Context, eventName, routingKey, partitionKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventName, err)
	}

	seq, err := p.seqRepo.NextSequence(ctx, partitionKey)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	env := EventEnvelope{
		EventName:    eventName,
		EventVersion: 1,
		EventID:      uuid.NewString(),
		Producer:     p.producer,
		PartitionKey: partitionKey,
		Sequence:     seq,
		OccurredAt:   time.Now().UTC(),
		Payload:      body,
	}
	envBody, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventName, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         envBody,
		},
	)
}

func toEventLines(lines []reservation.ResourceLine) []ReservationLine {
	out := make([]ReservationLine, 0, len(lines))
	for _, ln := range lines {
		out = append(out, ReservationLine{ResourceID: ln.ResourceID, Quantity: ln.Quantity})
	}
	return out
}
