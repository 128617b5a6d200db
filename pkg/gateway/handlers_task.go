package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// queueForTaskType maps a task's type back to the queue Retry must push it
// onto; Task itself does not record its origin queue.
func queueForTaskType(t types.TaskType) string {
	if t == types.TaskAgentProcessCard {
		return "agents"
	}
	return "provisioning"
}

// HandleRetryTask re-enqueues a failed task.
func (d *Deps) HandleRetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	task, err := d.Broker.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := d.Broker.Retry(r.Context(), queueForTaskType(task.Type), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry queued"})
}

// HandleCancelTask cancels a pending task.
func (d *Deps) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if err := d.Broker.Cancel(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

var taskSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Portal and tenant UIs are served from dynamically provisioned
	// subdomains; origin is controlled by bearer auth instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleTaskStream upgrades to a websocket and relays the authenticated
// user's task events (tasks:{user_id}) until the client disconnects.
func (d *Deps) HandleTaskStream(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	conn, err := taskSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sub := d.Broker.Subscribe(ctx, "tasks:"+principal.UserID)
	defer sub.Close()

	pings := time.NewTicker(30 * time.Second)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
