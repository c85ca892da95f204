package notify

import (
	"context"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/sse"
)

// InAppTransport pushes the notification over the SSE hub. The log row is
// the durable in-app inbox; a live push to a disconnected user is not a
// failure.
type InAppTransport struct {
	hub *sse.Hub
}

func NewInAppTransport(hub *sse.Hub) *InAppTransport {
	return &InAppTransport{hub: hub}
}

func (t *InAppTransport) Channel() string {
	return entity.ChannelInApp
}

func (t *InAppTransport) Send(ctx context.Context, user *entity.User, subject, body string) error {
	t.hub.NotifyUser(user.ID, "notification", map[string]string{
		"subject": subject,
		"body":    body,
	})
	return nil
}
