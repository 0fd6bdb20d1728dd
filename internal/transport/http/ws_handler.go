package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"quizpack/internal/app"
	"quizpack/internal/domain"
)

// WSHandler runs one quiz session per connection. The session autosaves after every
// step, so a dropped connection can be continued with a "resume" message.
type WSHandler struct {
	resolver *app.PackResolver
	tracker  *app.Tracker
	auth     app.Authenticator
	logger   *slog.Logger
	upgrader websocket.Upgrader
	// newEngine is swapped in tests for a deterministic engine.
	newEngine func() *app.Engine
}

func NewWSHandler(resolver *app.PackResolver, tracker *app.Tracker, auth app.Authenticator, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		resolver: resolver,
		tracker:  tracker,
		auth:     auth,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newEngine: app.NewEngine,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Index *int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type warningPayload struct {
	Message string `json:"message"`
}

// questionView is what the player sees: no correct index, no explanations.
type questionView struct {
	Index       int               `json:"index"`
	Total       int               `json:"total"`
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Options     []string          `json:"options"`
	Category    string            `json:"category"`
	Difficulty  domain.Difficulty `json:"difficulty"`
	Points      int               `json:"points"`
	HintCount   int               `json:"hintCount"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	CodeSnippet string            `json:"codeSnippet,omitempty"`
}

type hintPayload struct {
	Hint      string `json:"hint,omitempty"`
	Revealed  bool   `json:"revealed"`
	Remaining int    `json:"remaining"`
}

type resultsPayload struct {
	Results domain.Results `json:"results"`
	NewBest bool           `json:"newBest"`
}

// ServeWS upgrades HTTP requests to websockets and plays a quiz over them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// A single writer goroutine owns conn writes. After a failed write it keeps draining
	// send so the read loop never blocks; closing conn ends that loop.
	go func() {
		defer close(writerDone)
		broken := false
		for msg := range send {
			if broken {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				broken = true
				conn.Close()
			}
		}
	}()

	ctx := r.Context()
	player := app.NewPlayer(h.newEngine(), h.resolver, h.tracker, h.auth, app.PlayerOptions{
		Logger: h.logger,
		Warn: func(msg string) {
			send <- outboundMessage[any]{Type: "warning", Payload: warningPayload{Message: msg}}
		},
	})
	sendErr := func(err error) {
		_, code := classify(err)
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: err.Error()}}
	}
	sendQuestion := func(q domain.Question) {
		send <- outboundMessage[any]{Type: "question", Payload: viewOf(q, player.Status())}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var opts app.StartOptions
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &opts); err != nil {
					sendErr(&domain.ValidationError{Field: "payload", Reason: "invalid start payload"})
					continue
				}
			}
			q, err := player.Start(ctx, opts)
			if err != nil {
				sendErr(err)
				continue
			}
			sendQuestion(q)
		case "resume":
			q, err := player.Resume(ctx)
			if err != nil {
				sendErr(err)
				continue
			}
			sendQuestion(q)
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Index == nil {
				sendErr(&domain.ValidationError{Field: "index", Reason: "invalid answer payload"})
				continue
			}
			fb, err := player.Answer(ctx, *payload.Index)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage[any]{Type: "feedback", Payload: fb}
		case "hint":
			hint, ok, err := player.Hint(ctx)
			if err != nil {
				sendErr(err)
				continue
			}
			st := player.Status()
			send <- outboundMessage[any]{Type: "hint", Payload: hintPayload{
				Hint:      hint,
				Revealed:  ok,
				Remaining: st.HintsAvailable - st.HintsRevealed,
			}}
		case "next":
			step, err := player.Next(ctx)
			if err != nil {
				sendErr(err)
				continue
			}
			if step.Complete {
				send <- outboundMessage[any]{Type: "results", Payload: resultsPayload{Results: step.Results, NewBest: step.NewBest}}
				continue
			}
			sendQuestion(step.Question)
		case "status":
			send <- outboundMessage[any]{Type: "status", Payload: player.Status()}
		case "abandon":
			player.Abandon(ctx)
			send <- outboundMessage[any]{Type: "status", Payload: player.Status()}
		default:
			sendErr(&domain.ValidationError{Field: "type", Reason: "unsupported message type " + inbound.Type})
		}
	}

	close(send)
	<-writerDone
}

func viewOf(q domain.Question, st app.SessionStatus) questionView {
	return questionView{
		Index:       st.CurrentIndex,
		Total:       st.QuestionCount,
		ID:          q.ID,
		Text:        q.Text,
		Options:     q.Options,
		Category:    q.Category,
		Difficulty:  q.Difficulty,
		Points:      q.Points,
		HintCount:   len(q.Hints),
		ImageURL:    q.ImageURL,
		CodeSnippet: q.CodeSnippet,
	}
}
