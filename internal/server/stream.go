package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/logging"
	httperrors "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/errors"
	ws "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/ws"
)

// WSUpgrader handles WebSocket upgrades for the session stream.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// sessionStream pushes tick, expiry and submission events of the caller's
// session. The first frame is the current session state.
func (h *Handlers) sessionStream(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	quizID := r.PathValue("quizID")
	s, ok := h.current(w, r)
	if !ok {
		return
	}

	log := logging.FromContext(r.Context())
	raw, err := WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConnection(raw, log)
	key := s.Key()
	h.deps.Hub.Register(key, conn)
	defer h.deps.Hub.Unregister(key, conn)
	go conn.WritePump()

	sendState := func(requestID string) error {
		current, ok := h.deps.Sessions.Get(quizID, own.Key)
		if !ok {
			return sendError(conn, requestID, httperrors.ErrCodeSessionNotFound, "No open session for this quiz")
		}
		msg, err := ws.NewMessage(ws.TypeSessionState, current.View())
		if err != nil {
			return err
		}
		msg.RequestID = requestID
		return conn.Send(msg)
	}

	if err := sendState(""); err != nil {
		log.Warn().Err(err).Msg("initial session state not sent")
	}

	conn.ReadPump(func(msg ws.Message) error {
		switch msg.Type {
		case ws.TypeRequestState:
			return sendState(msg.RequestID)
		case ws.TypePing:
			return conn.Send(ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})
		default:
			return sendError(conn, msg.RequestID, httperrors.ErrCodeUnknownMessageType, "Unknown message type: "+msg.Type)
		}
	})
}

func sendError(conn *ws.Connection, requestID, code, message string) error {
	msg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return conn.Send(msg)
}
