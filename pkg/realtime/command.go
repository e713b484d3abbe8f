package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/screenleads/backend/pkg/api"
	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/tenant"
	"github.com/screenleads/backend/pkg/transport"
)

// Command is a message pushed to the screens of a room.
type Command struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CommandResult reports how many sessions a command was queued for.
type CommandResult struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Delivered   int    `json:"delivered"`
}

// ServeCommand publishes the posted Command to /topic/{room}. The room is
// the wildcard tail of the route. Company rooms are limited to the
// caller's scope.
func (h *Hub) ServeCommand(w http.ResponseWriter, r *http.Request) {
	room := strings.Trim(chi.URLParam(r, "*"), "/")
	destination := TopicPrefix + room
	if room == "" || !ValidDestination(destination) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("room", "invalid room"))
		return
	}

	scope := tenant.ForIdentity(auth.IdentityFromContext(r.Context()))
	if company, ok := CompanyOf(destination); ok && !scope.Allows(company) {
		transport.WriteAPIError(w, api.NewForbiddenError("access denied"))
		return
	}

	var cmd Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&cmd); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON body"))
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	n, err := h.Publish(destination, cmd)
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError("unable to publish command"))
		return
	}
	transport.WriteJSON(w, http.StatusAccepted, CommandResult{ID: cmd.ID, Destination: destination, Delivered: n})
}
