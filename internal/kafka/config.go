package kafka

import (
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic names for all domain events published by the core
const (
	TopicBookingConfirmed = "hearth.booking.confirmed"
	TopicBookingCancelled = "hearth.booking.cancelled"
	TopicPaymentSucceeded = "hearth.payment.succeeded"
	TopicPaymentFailed    = "hearth.payment.failed"
	TopicPaymentRefunded  = "hearth.payment.refunded"
	TopicPayoutPaid       = "hearth.payout.paid"
	TopicPayoutFailed     = "hearth.payout.failed"

	TopicDLQ = "hearth.dlq"
)

// Event types stored in the outbox; these double as the wire event names
// delivered to the notification collaborator.
const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
	EventPayoutPaid       = "payout.paid"
	EventPayoutFailed     = "payout.failed"
)

// ConsumerGroup names for different Kafka consumers
const (
	GroupNotificationWorker = "hearth.notification.worker"
)

type Config struct {
	Brokers           []string
	ProducerTimeout   time.Duration
	RequiredAcks      kgo.Acks
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxPollRecords    int
	MaxRetries        int
	RetryBackoff      time.Duration
}

func DefaultConfig(brokers []string) *Config {
	return &Config{
		Brokers:           brokers,
		ProducerTimeout:   10 * time.Second,
		RequiredAcks:      kgo.AllISRAcks(),
		SessionTimeout:    10 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		MaxPollRecords:    100,
		MaxRetries:        5,
		RetryBackoff:      1 * time.Second,
	}
}
