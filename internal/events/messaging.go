package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange                = "booking.events"
	ReservationCreatedRoutingKey  = "reservation.created.v1"
	ReservationCanceledRoutingKey = "reservation.canceled.v1"
)

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
