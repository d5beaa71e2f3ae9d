package events

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/session"
	ws "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/ws"
)

const publishTimeout = 2 * time.Second

// ToMessage converts a session event into its stream message.
func ToMessage(ev session.Event) (ws.Message, error) {
	switch ev.Type {
	case session.EventTick:
		return ws.NewMessage(ws.TypeSessionTick, ws.SessionTickPayload{
			QuizID:           ev.QuizID,
			AttemptID:        ev.AttemptID,
			RemainingSeconds: int(math.Ceil(ev.TimeLeft.Seconds())),
		})
	case session.EventExpired:
		return ws.NewMessage(ws.TypeSessionExpired, resultPayload(ev))
	case session.EventSubmitted:
		return ws.NewMessage(ws.TypeSessionSubmitted, resultPayload(ev))
	case session.EventAbandoned:
		return ws.NewMessage(ws.TypeSessionAbandoned, resultPayload(ev))
	default:
		return ws.NewMessage(ws.TypeSessionSubmitFailed, resultPayload(ev))
	}
}

func resultPayload(ev session.Event) ws.SessionResultPayload {
	p := ws.SessionResultPayload{QuizID: ev.QuizID, AttemptID: ev.AttemptID}
	if ev.Result != nil {
		p.Score = ev.Result.Score
		if ev.Result.TimeSpent != nil {
			p.TimeSpent = *ev.Result.TimeSpent
		}
	}
	if ev.Err != nil {
		p.Reason = ev.Err.Error()
	}
	return p
}

// Relay returns a session event handler that publishes every event. Publish
// failures are logged and dropped; the stream is advisory.
func Relay(pub Publisher, logger zerolog.Logger) func(session.Event) {
	logger = logger.With().Str("component", "session_relay").Logger()
	return func(ev session.Event) {
		msg, err := ToMessage(ev)
		if err != nil {
			logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("encode session event failed")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := pub.Publish(ctx, ev.Key, msg); err != nil {
			logger.Debug().Err(err).Str("key", ev.Key).Str("event", string(ev.Type)).Msg("publish session event failed")
		}
	}
}
