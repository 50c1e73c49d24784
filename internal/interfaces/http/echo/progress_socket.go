package echo

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	app "github.com/mohammadpnp/book-import/internal/application/importjob"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
	"github.com/mohammadpnp/book-import/internal/infrastructure/progress"
)

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = socketPongWait * 9 / 10
	socketMaxMessage = 4096
	socketOutBuffer  = 32
)

var wsJSON = jsoniter.ConfigCompatibleWithStandardLibrary

type progressSubscriber interface {
	Subscribe(jobID string) *progress.Subscription
	Unsubscribe(sub *progress.Subscription)
}

type socketRequest struct {
	Action string `json:"action"`
	JobID  string `json:"job_id"`
}

type socketEvent struct {
	Event    string           `json:"event"`
	JobID    string           `json:"job_id,omitempty"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	Error    *errorBody       `json:"error,omitempty"`
}

// ProgressSocketHandler serves the push channel: clients join and leave
// per-job groups and receive a progress event after every merge.
type ProgressSocketHandler struct {
	broker   progressSubscriber
	progress app.GetImportProgress
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewProgressSocketHandler(broker progressSubscriber, progress app.GetImportProgress, log logrus.FieldLogger) *ProgressSocketHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProgressSocketHandler{
		broker:   broker,
		progress: progress,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *ProgressSocketHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return nil
	}

	s := &socketSession{
		handler: h,
		conn:    conn,
		out:     make(chan socketEvent, socketOutBuffer),
		done:    make(chan struct{}),
		joined:  make(map[string]*progress.Subscription),
		log:     h.log.WithField("remote", c.RealIP()),
	}
	s.run(c.Request().Context())
	return nil
}

type socketSession struct {
	handler *ProgressSocketHandler
	conn    *websocket.Conn
	out     chan socketEvent
	done    chan struct{}
	log     logrus.FieldLogger

	mu         sync.Mutex
	joined     map[string]*progress.Subscription
	forwarders sync.WaitGroup
}

func (s *socketSession) run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.readLoop(ctx)

	close(s.done)
	s.mu.Lock()
	for jobID, sub := range s.joined {
		s.handler.broker.Unsubscribe(sub)
		delete(s.joined, jobID)
	}
	s.mu.Unlock()
	s.forwarders.Wait()
	<-writerDone
	_ = s.conn.Close()
}

func (s *socketSession) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(socketMaxMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("websocket read failed")
			}
			return
		}

		var req socketRequest
		if err := wsJSON.Unmarshal(raw, &req); err != nil {
			s.send(socketEvent{Event: "error", Error: &errorBody{Code: "bad_request", Message: "invalid message"}})
			continue
		}

		switch req.Action {
		case "join":
			s.join(ctx, req.JobID)
		case "leave":
			s.leave(req.JobID)
		default:
			s.send(socketEvent{Event: "error", JobID: req.JobID, Error: &errorBody{
				Code:    "unknown_action",
				Message: "action must be join or leave",
			}})
		}
	}
}

func (s *socketSession) join(ctx context.Context, jobID string) {
	s.mu.Lock()
	if _, ok := s.joined[jobID]; ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Subscribe before reading the current state so no merge falls between.
	sub := s.handler.broker.Subscribe(jobID)
	snap, err := s.handler.progress.Execute(ctx, app.GetImportProgressInput{JobID: jobID})
	if err != nil {
		s.handler.broker.Unsubscribe(sub)
		code, message := "internal_error", "failed to get import progress"
		switch {
		case errors.Is(err, app.ErrInvalidJobID):
			code, message = "invalid_job_id", "job_id must be a valid UUID"
		case errors.Is(err, app.ErrImportNotFound):
			code, message = "not_found", "import job not found"
		}
		s.send(socketEvent{Event: "error", JobID: jobID, Error: &errorBody{Code: code, Message: message}})
		return
	}

	s.mu.Lock()
	s.joined[jobID] = sub
	s.mu.Unlock()

	s.forwarders.Add(1)
	go s.forward(sub, snap)
}

func (s *socketSession) leave(jobID string) {
	s.mu.Lock()
	sub, ok := s.joined[jobID]
	delete(s.joined, jobID)
	s.mu.Unlock()

	if ok {
		s.handler.broker.Unsubscribe(sub)
	}
}

// forward sends the initial snapshot and then every newer one. Snapshots
// published by different workers can arrive out of order, so anything
// older than what the client already saw is skipped.
func (s *socketSession) forward(sub *progress.Subscription, initial domain.Snapshot) {
	defer s.forwarders.Done()

	last := initial
	if !s.sendSnapshot(initial) {
		return
	}
	for snap := range sub.C {
		if !snap.Supersedes(last) {
			continue
		}
		last = snap
		if !s.sendSnapshot(snap) {
			return
		}
	}
}

func (s *socketSession) sendSnapshot(snap domain.Snapshot) bool {
	return s.send(socketEvent{Event: "progress", JobID: snap.JobID, Snapshot: &snap})
}

func (s *socketSession) send(ev socketEvent) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *socketSession) writeLoop() {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(socketWriteWait))
			return
		case ev := <-s.out:
			payload, err := wsJSON.Marshal(ev)
			if err != nil {
				s.log.WithError(err).Warn("encode websocket event failed")
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.WithError(err).Debug("websocket write failed")
				_ = s.conn.Close()
				<-s.done
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				<-s.done
				return
			}
		}
	}
}
