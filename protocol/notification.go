package protocol

// NotificationType defines the kind of venue notification (uint8 for cheap routing)
type NotificationType uint8

// Notification Type Numbering Strategy:
// - 0-50:  Creation notifications
// - 51+:   Notifications about orders already live on the venue
const (
	NotifyUnknown       NotificationType = 0
	NotifyCreateSuccess NotificationType = 1
	NotifyCreateFailure NotificationType = 2

	NotifyCancelSuccess NotificationType = 51
	NotifyCancelFailure NotificationType = 52
	NotifyCompleted     NotificationType = 53
)

func (t NotificationType) String() string {
	switch t {
	case NotifyCreateSuccess:
		return "create_success"
	case NotifyCreateFailure:
		return "create_failure"
	case NotifyCancelSuccess:
		return "cancel_success"
	case NotifyCancelFailure:
		return "cancel_failure"
	case NotifyCompleted:
		return "completed"
	}
	return "unknown"
}

// Notification is the carrier for venue notifications entering the execution core.
// Adapters for the push channel decode venue payloads into this envelope.
type Notification struct {
	// Version is the protocol version for backward compatibility.
	Version uint8 `json:"version"`

	Type NotificationType `json:"type"`

	// AccountID is the venue account the notification belongs to (Routing Header).
	AccountID string `json:"account_id"`

	ClientOrderID string `json:"client_order_id"`
	VenueOrderID  string `json:"venue_order_id,omitempty"`

	// Source is the channel the notification arrived through ("direct", "fallback", "poll").
	// Empty means fallback.
	Source string `json:"source,omitempty"`

	// ErrorKind and Message are set on failure notifications.
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`

	// Metadata stores non-business context (e.g., raw venue status, tracing id).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsFailure reports whether the notification carries a venue error.
func (n *Notification) IsFailure() bool {
	return n.Type == NotifyCreateFailure || n.Type == NotifyCancelFailure
}
