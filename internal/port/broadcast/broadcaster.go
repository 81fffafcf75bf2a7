// Package broadcast defines how services push progress to dashboards.
package broadcast

import "context"

// Broadcaster delivers pipeline events to subscribed clients. Delivery is
// best-effort: implementations must not block the caller on slow clients,
// and there is no error to handle.
type Broadcaster interface {
	// BroadcastEvent sends payload under eventType. Payloads naming a
	// strategy reach that strategy's subscribers and unscoped clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
