package models

// SystemActor attributes work that no caller initiated, such as solver runs.
const SystemActor = "system"

// Actor identifies the caller of a mutating request. Authentication happens
// upstream; the gateway forwards the resolved identity in headers.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}
