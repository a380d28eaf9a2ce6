package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	applogger "github.com/kurid3v/AVinci/internal/logger"
)

// Grading event types.
const (
	EventSubmissionGraded = "submission.graded"
	EventRegradeCompleted = "regrade.completed"
	EventFeedbackEdited   = "submission.feedback_edited"
)

// GradingEvent is broadcast whenever stored grading results change.
type GradingEvent struct {
	Type          string         `json:"type"`
	Source        string         `json:"source"`
	ProblemID     string         `json:"problemId"`
	SubmissionID  string         `json:"submissionId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	SentAt        time.Time      `json:"sentAt"`
}

// EventPublisher broadcasts grading events.
type EventPublisher interface {
	Publish(ctx context.Context, event GradingEvent) error
}

type eventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string
	now          func() time.Time
}

// NewEventPublisher fans events out to a Redis channel and a NATS subject.
// Either transport may be nil.
func NewEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &eventPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_publisher").Logger(),
		nodeID:       uuid.NewString(),
		now:          time.Now,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event GradingEvent) error {
	event.Source = p.nodeID
	if event.CorrelationID == "" {
		event.CorrelationID = applogger.CorrelationID(ctx)
	}
	if event.SentAt.IsZero() {
		event.SentAt = p.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// publishEvent logs publish failures without failing the caller.
func publishEvent(ctx context.Context, publisher EventPublisher, logger zerolog.Logger, event GradingEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		ctxLogger := applogger.ForContext(ctx, logger)
		ctxLogger.Warn().Err(err).Str("event", event.Type).Str("problem_id", event.ProblemID).Msg("grading event not published")
	}
}
