package echo_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/mohammadpnp/book-import/internal/application/importjob"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
	"github.com/mohammadpnp/book-import/internal/infrastructure/progress"
	httpecho "github.com/mohammadpnp/book-import/internal/interfaces/http/echo"
)

type socketEvent struct {
	Event    string           `json:"event"`
	JobID    string           `json:"job_id"`
	Snapshot *domain.Snapshot `json:"snapshot"`
	Error    *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func dialProgressSocket(t *testing.T, broker *progress.Broker, uc app.GetImportProgress) *websocket.Conn {
	t.Helper()

	logger, _ := test.NewNullLogger()
	e := echo.New()
	httpecho.RegisterRoutes(e, nil, nil, httpecho.NewProgressSocketHandler(broker, uc, logger))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/imports/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) socketEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev socketEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestProgressSocketJoinReceivesUpdates(t *testing.T) {
	t.Parallel()

	broker := progress.NewBroker(8)
	uc := &fakeProgressUseCase{snap: domain.Snapshot{JobID: jobID, Status: domain.StatusProcessing, TotalChunks: 3}}
	conn := dialProgressSocket(t, broker, uc)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "job_id": jobID}))

	initial := readEvent(t, conn)
	assert.Equal(t, "progress", initial.Event)
	assert.Equal(t, jobID, initial.JobID)
	require.NotNil(t, initial.Snapshot)
	assert.Equal(t, 0, initial.Snapshot.ProcessedChunks)

	require.Eventually(t, func() bool { return broker.Subscribers(jobID) == 1 }, time.Second, 5*time.Millisecond)

	broker.Publish(domain.Snapshot{JobID: jobID, Status: domain.StatusProcessing, ProcessedChunks: 2, TotalChunks: 3})
	broker.Publish(domain.Snapshot{JobID: jobID, Status: domain.StatusProcessing, ProcessedChunks: 1, TotalChunks: 3})
	broker.Publish(domain.Snapshot{JobID: jobID, Status: domain.StatusCompleted, ProcessedChunks: 3, TotalChunks: 3, ProgressPercent: 100})

	second := readEvent(t, conn)
	require.NotNil(t, second.Snapshot)
	assert.Equal(t, 2, second.Snapshot.ProcessedChunks)

	final := readEvent(t, conn)
	require.NotNil(t, final.Snapshot)
	assert.Equal(t, domain.StatusCompleted, final.Snapshot.Status)
	assert.Equal(t, 100, final.Snapshot.ProgressPercent)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "leave", "job_id": jobID}))
	require.Eventually(t, func() bool { return broker.Subscribers(jobID) == 0 }, time.Second, 5*time.Millisecond)
}

func TestProgressSocketJoinUnknownJob(t *testing.T) {
	t.Parallel()

	broker := progress.NewBroker(8)
	conn := dialProgressSocket(t, broker, &fakeProgressUseCase{err: app.ErrImportNotFound})

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "job_id": jobID}))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Event)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "not_found", ev.Error.Code)
	assert.Equal(t, 0, broker.Subscribers(jobID))
}

func TestProgressSocketRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	conn := dialProgressSocket(t, progress.NewBroker(8), &fakeProgressUseCase{})

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "job_id": jobID}))
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Event)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "unknown_action", ev.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	ev = readEvent(t, conn)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "bad_request", ev.Error.Code)
}

func TestProgressSocketDisconnectReleasesSubscriptions(t *testing.T) {
	t.Parallel()

	broker := progress.NewBroker(8)
	conn := dialProgressSocket(t, broker, &fakeProgressUseCase{snap: domain.Snapshot{JobID: jobID}})

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "job_id": jobID}))
	_ = readEvent(t, conn)
	require.Eventually(t, func() bool { return broker.Subscribers(jobID) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return broker.Subscribers(jobID) == 0 }, 2*time.Second, 10*time.Millisecond)
}
