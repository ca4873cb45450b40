// Package event defines the typed outbound events the engine publishes and
// the sink abstraction that carries them. Delivery is fire-and-forget:
// nothing in the engine ever blocks on, or fails because of, a sink.
package event

// Type tags the event payload for the wire, matching the names the UI
// consumes.
type Type string

const (
	TransporterUpdate       Type = "transporter_update"
	TransporterStatusUpdate Type = "transporter_status_update"
	WorkloadUpdate          Type = "workload_update"
	TransportStatusUpdate   Type = "transport_status_update"
	TransportCompleted      Type = "transport_completed"
	TransportLog            Type = "transport_log"
	NewTransporter          Type = "new_transporter"
	ClockTick               Type = "clock_tick"
	SimulationEvent         Type = "simulation_event"
)

// Event is the JSON-shaped envelope pushed to clients.
type Event struct {
	Type    Type        `json:"type"`
	Payload interface{} `json:"payload"`
}

// Sink accepts events for delivery. Implementations must not block the
// caller; dropping is preferable to backpressure into movement loops.
type Sink interface {
	Emit(Event)
}

// TransporterUpdatePayload carries a full planned path plus per-edge
// real-time durations so a UI can animate the walk; the authoritative node
// transitions still happen edge by edge inside the engine.
type TransporterUpdatePayload struct {
	Name      string    `json:"name"`
	Path      []string  `json:"path"`
	Durations []float64 `json:"durations"`
}

type TransporterStatusPayload struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type WorkloadPayload struct {
	Name     string  `json:"name"`
	Workload float64 `json:"workload"`
}

type RequestRef struct {
	ID          string `json:"id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Type        string `json:"transport_type"`
	Urgent      bool   `json:"urgent"`
}

type TransportStatusPayload struct {
	Request RequestRef `json:"request"`
	Status  string     `json:"status"`
}

type TransportCompletedPayload struct {
	Transporter string `json:"transporter"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

type LogPayload struct {
	Message string `json:"message"`
}

type NewTransporterPayload struct {
	Name            string `json:"name"`
	CurrentLocation string `json:"current_location"`
}

type ClockTickPayload struct {
	SimTime float64 `json:"sim_time"`
}

type SimulationPayload struct {
	Kind        string `json:"kind"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	Type        string `json:"transport_type,omitempty"`
	Urgent      bool   `json:"urgent,omitempty"`
	Running     bool   `json:"running"`
}

// Log wraps a human-readable message in a transport_log event.
func Log(message string) Event {
	return Event{Type: TransportLog, Payload: LogPayload{Message: message}}
}
