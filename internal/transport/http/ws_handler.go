package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/logging"
	"trivia-quiz-service/internal/validation"
)

type WSHandler struct {
	service  *app.QuizService
	validate *validation.Validator
	logger   logging.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger logging.Logger) *WSHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &WSHandler{
		service:  service,
		validate: validation.New(),
		logger:   logger.With("component", "ws_handler"),
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

type categoryPayload struct {
	CategoryID int `json:"categoryId" validate:"gte=0"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex" validate:"gte=0"`
	Answer        string `json:"answer" validate:"required"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// questionView is a question as shown to the player. The correct answer is only
// revealed once the question has been answered.
type questionView struct {
	Text           string   `json:"text"`
	AllAnswers     []string `json:"allAnswers"`
	Completed      bool     `json:"completed"`
	SelectedAnswer string   `json:"selectedAnswer,omitempty"`
	CorrectAnswer  string   `json:"correctAnswer,omitempty"`
	Difficulty     string   `json:"difficulty,omitempty"`
	Category       string   `json:"category,omitempty"`
}

type sessionPayload struct {
	SessionID    string         `json:"sessionId"`
	CategoryID   int            `json:"categoryId"`
	Phase        domain.Phase   `json:"phase"`
	CurrentIndex int            `json:"currentIndex"`
	Questions    []questionView `json:"questions"`
}

func toSessionPayload(view domain.SessionView) sessionPayload {
	questions := make([]questionView, 0, len(view.Questions))
	for _, q := range view.Questions {
		qv := questionView{
			Text:           q.Text,
			AllAnswers:     q.AllAnswers,
			Completed:      q.Completed,
			SelectedAnswer: q.SelectedAnswer,
			Difficulty:     q.Difficulty,
			Category:       q.Category,
		}
		if q.Completed {
			qv.CorrectAnswer = q.CorrectAnswer
		}
		questions = append(questions, qv)
	}
	return sessionPayload{
		SessionID:    view.SessionID,
		CategoryID:   view.CategoryID,
		Phase:        view.Phase,
		CurrentIndex: view.CurrentIndex,
		Questions:    questions,
	}
}

// ServeWS upgrades the request and binds the connection to the quiz view. Commands are
// handled in order by a worker so the read loop notices a disconnect while a fetch is
// still running. Leaving the view tears the session down and drops queued commands.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancelConn := context.WithCancel(context.Background())
	defer cancelConn()

	events, cancelEvents := h.service.Subscribe()
	defer cancelEvents()

	send := make(chan outboundMessage[any], 16)
	commands := make(chan inboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})
	workerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	go func() {
		defer close(workerDone)
		for cmd := range commands {
			if ctx.Err() != nil {
				h.logger.Debug("dropping ws command after disconnect", "type", cmd.Type)
				continue
			}
			for _, msg := range h.handle(ctx, cmd) {
				select {
				case send <- msg:
				case <-closeSignals:
				}
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: toSessionPayload(h.service.View())}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		select {
		case commands <- inbound:
		default:
			// Keep reading so a disconnect is noticed even behind a slow command.
			h.logger.Warn("ws command queue full, dropping command", "type", inbound.Type)
			select {
			case send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: "busy", Message: "too many pending commands"}}:
			default:
			}
		}
	}

	// The quiz view is gone: cancel timers and any in-flight load.
	cancelConn()
	h.service.Close()
	close(commands)
	close(closeSignals)
	<-workerDone
	<-eventsDone
	close(send)
	<-writerDone
	h.logger.Debug("ws connection closed")
}

func (h *WSHandler) handle(ctx context.Context, in inboundMessage) []outboundMessage[any] {
	switch in.Type {
	case "start", "resume":
		var payload categoryPayload
		if err := h.decode(in.Payload, &payload); err != nil {
			return []outboundMessage[any]{invalidRequest(err)}
		}
		var (
			view domain.SessionView
			err  error
		)
		if in.Type == "start" {
			view, err = h.service.Start(ctx, payload.CategoryID)
		} else {
			view, err = h.service.Resume(ctx, payload.CategoryID)
		}
		if err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{{Type: "session", Payload: toSessionPayload(view)}}

	case "answer":
		var payload answerPayload
		if err := h.decode(in.Payload, &payload); err != nil {
			return []outboundMessage[any]{invalidRequest(err)}
		}
		outcome, err := h.service.SelectAnswer(ctx, payload.QuestionIndex, payload.Answer)
		if err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{{Type: "answerResult", Payload: outcome}}

	case "advance":
		result, err := h.service.Advance(ctx)
		if err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		return []outboundMessage[any]{{Type: "advanced", Payload: result}}

	case "state":
		return []outboundMessage[any]{{Type: "session", Payload: toSessionPayload(h.service.View())}}

	default:
		return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Kind: "invalid_request", Message: "unsupported message type"}}}
	}
}

func (h *WSHandler) decode(raw json.RawMessage, dst any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return err
		}
	}
	return h.validate.Struct(dst)
}

func invalidRequest(err error) outboundMessage[any] {
	msg := "invalid payload"
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		msg = verrs.Error()
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: "invalid_request", Message: msg}}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{
		Kind:    domain.ErrorKind(err),
		Message: domain.UserMessage(err),
	}}
}
