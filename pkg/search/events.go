package search

// Event types emitted while a search runs.
const (
	EventLoading         = "loading"
	EventNotification    = "notification"
	EventActiveIndicator = "active_indicator"
)

// Event is a search progress notification. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type            string        `json:"type"`
	SearchID        string        `json:"search_id"`
	Loading         *bool         `json:"loading,omitempty"`
	Notification    *Notification `json:"notification,omitempty"`
	ActiveIndicator string        `json:"active_indicator,omitempty"`
}

// Listener receives search events. Implementations must not block.
type Listener interface {
	SearchEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) SearchEvent(e Event) { f(e) }

type multiListener []Listener

func (m multiListener) SearchEvent(e Event) {
	for _, l := range m {
		l.SearchEvent(e)
	}
}
