package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"academy-of-heroes/internal/app"
	"academy-of-heroes/internal/auth"
	"academy-of-heroes/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const presenceRefresh = 20 * time.Second

type WSHandler struct {
	battles  *app.BattleService
	students *app.StudentService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(battles *app.BattleService, students *app.StudentService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		battles:  battles,
		students: students,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS streams a teacher's live battle. Students also send join, answer
// and power messages over the socket and are marked online while connected.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// subscribe before reading the current state so no commit is missed
	updates, cancel, err := h.battles.Subscribe(ctx, p.TeacherID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: app.PublicMessage(err)}})
		return
	}
	defer cancel()

	if p.Role == auth.RoleStudent {
		h.setOnline(ctx, p, true)
		defer h.setOnline(context.WithoutCancel(ctx), p, false)
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				// unblock ReadJSON in the handler loop
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		ticker := time.NewTicker(presenceRefresh)
		defer ticker.Stop()
		for {
			select {
			case state, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- h.liveMessage(p, state):
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-ticker.C:
				if p.Role == auth.RoleStudent {
					h.setOnline(ctx, p, true)
				}
			case <-closeSignals:
				return
			}
		}
	}()

	var initial outboundMessage[any]
	state, err := h.battles.GetLiveBattle(ctx, p.TeacherID)
	switch {
	case err == nil:
		initial = h.liveMessage(p, state)
	case errors.Is(err, domain.ErrNoActiveBattle):
		initial = outboundMessage[any]{Type: "idle", Payload: nil}
	default:
		initial = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: app.PublicMessage(err)}}
	}

	if enqueue(send, writerDone, initial) {
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				break
			}
			reply := outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
			if p.Role == auth.RoleStudent {
				if res, handled := h.dispatch(ctx, p, inbound); handled {
					reply = outboundMessage[any]{Type: "result", Payload: res}
				}
			}
			if !enqueue(send, writerDone, reply) {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer. It reports false once the writer has
// stopped, so callers never block on a full buffer nobody drains.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) dispatch(ctx context.Context, p auth.Principal, in inboundMessage) (app.Result, bool) {
	switch in.Type {
	case "join":
		return h.battles.JoinBattle(ctx, p.TeacherID, p.StudentID), true
	case "answer":
		var payload answerRequest
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return app.Fail(domain.ErrInvalidInput), true
		}
		return h.battles.SubmitAnswer(ctx, p.TeacherID, p.StudentID, payload.AnswerIndex), true
	case "power":
		var payload powerRequest
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return app.Fail(domain.ErrInvalidInput), true
		}
		return h.battles.ActivatePower(ctx, app.PowerRequest{
			TeacherID: p.TeacherID,
			StudentID: p.StudentID,
			BattleID:  payload.BattleID,
			Power:     payload.Power,
			TargetID:  payload.TargetID,
		}), true
	default:
		return app.Result{}, false
	}
}

func (h *WSHandler) liveMessage(p auth.Principal, state domain.LiveBattleState) outboundMessage[any] {
	if p.Role == auth.RoleStudent {
		state = studentView(state, p.StudentID)
	}
	return outboundMessage[any]{Type: "live", Payload: state}
}

func (h *WSHandler) setOnline(ctx context.Context, p auth.Principal, online bool) {
	if err := h.students.SetOnline(ctx, p.TeacherID, p.StudentID, online); err != nil {
		h.logger.Warn("presence update failed",
			zap.String("teacher", p.TeacherID),
			zap.String("student", p.StudentID),
			zap.Error(err))
	}
}
