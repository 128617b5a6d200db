package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/kanbanhq/controlplane/pkg/agent"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/metrics"
	"github.com/kanbanhq/controlplane/pkg/orchestrator"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// webhookPayload is the tenant-to-orchestrator card-lifecycle event body.
type webhookPayload struct {
	Event          string                `json:"event"`
	Card           webhookCard           `json:"card"`
	PreviousColumn webhookColumn         `json:"previous_column"`
	Board          map[string]any        `json:"board"`
	SandboxID      string                `json:"sandbox_id,omitempty"`
	WorkspaceSlug  string                `json:"workspace_slug"`
	Timestamp      string                `json:"timestamp"`
}

type webhookCard struct {
	ID          string                    `json:"id"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Labels      []string                  `json:"labels"`
	Column      webhookColumn             `json:"column"`
	Checklist   []orchestrator.ChecklistItem `json:"checklist"`
	Comments    []orchestrator.Comment       `json:"comments"`
}

type webhookColumn struct {
	Name string `json:"name"`
}

// HandleWebhook verifies the HMAC signature against the originating
// sandbox's stored secret, and for card.moved events whose destination
// column maps to an agent role, enqueues an agent.process_card task. Only
// sandboxes carry a secret: an event without a sandbox_id is rejected
// (see resolveWebhookSecret).
func (d *Deps) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed webhook payload", http.StatusBadRequest)
		return
	}

	secret, err := d.resolveWebhookSecret(payload)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("ignored").Inc()
		http.Error(w, "unknown tenant or sandbox", http.StatusNotFound)
		return
	}

	if !verifySignature(r.Header.Get("X-Webhook-Signature"), body, secret) {
		metrics.WebhookRequestsTotal.WithLabelValues("bad_signature").Inc()
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	outcome := "ignored"
	if payload.Event == "card.moved" {
		d.dispatchCardMoved(r, payload)
		outcome = "dispatched"
	}
	metrics.WebhookRequestsTotal.WithLabelValues(outcome).Inc()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"queued"}`))
}

// resolveWebhookSecret looks up the signing secret for the event's origin.
// Only sandboxes carry a webhook secret in the data model; a
// card-moved event on a workspace's own kanban-only board (no sandbox_id)
// has no modeled secret to verify against and is rejected.
func (d *Deps) resolveWebhookSecret(payload webhookPayload) (string, error) {
	if payload.SandboxID == "" {
		return "", errNoWebhookSecret
	}
	sb, err := d.Store.GetSandbox(payload.SandboxID)
	if err != nil {
		return "", err
	}
	return sb.WebhookSecret, nil
}

var errNoWebhookSecret = &noSecretError{}

type noSecretError struct{}

func (*noSecretError) Error() string { return "no webhook secret available for this tenant" }

// verifySignature checks header against "sha256=<hex hmac>" of body using
// secret, in constant time.
func verifySignature(header string, body []byte, secret string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	got := mac.Sum(nil)
	return hmac.Equal(want, got)
}

// dispatchCardMoved maps the destination column to an agent role via the
// fuzzy keyword table and, if one matches and the card is outside its
// cooldown window, enqueues agent.process_card on the agents queue.
func (d *Deps) dispatchCardMoved(r *http.Request, payload webhookPayload) {
	personality, ok := agent.ResolveRole(payload.Card.Column.Name)
	if !ok {
		return
	}
	if d.Dispatcher != nil && !d.Dispatcher.ShouldProcess(payload.Card.ID) {
		return
	}

	apiBaseURL := "http://kanban-team-" + payload.WorkspaceSlug + "-api-1:8000"
	workDir := d.Config.HostProjectPath + "/" + payload.WorkspaceSlug
	taskPayload := orchestrator.AgentProcessCardPayload{
		WorkspaceSlug:  payload.WorkspaceSlug,
		SandboxID:      payload.SandboxID,
		CardID:         payload.Card.ID,
		CardTitle:      payload.Card.Title,
		CardDesc:       payload.Card.Description,
		Labels:         payload.Card.Labels,
		Checklist:      payload.Card.Checklist,
		RecentComments: payload.Card.Comments,
		ColumnName:     payload.Card.Column.Name,
		APIBaseURL:     apiBaseURL,
		WorkDir:        workDir,
	}

	if _, err := d.Broker.Enqueue(r.Context(), "agents", types.TaskAgentProcessCard, taskPayload, "", types.PriorityNormal); err != nil {
		log.Logger.Error().Err(err).Str("card_id", payload.Card.ID).Str("role", personality.Role).
			Msg("failed to enqueue agent.process_card task")
	}
}
