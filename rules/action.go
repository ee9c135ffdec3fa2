package rules

// Action is a side-effecting instruction run when its rule fires.
// Implementations: Log, UpdateField, CallExternalService, SendEvent, Composite.
type Action interface {
	action()
}

// Log emits Message through the logging collaborator.
type Log struct {
	Message string
}

// UpdateField writes Value into the run outputs under Field.
type UpdateField struct {
	Field string
	Value Value
}

// CallExternalService invokes the service collaborator.
type CallExternalService struct {
	Endpoint string
	Payload  map[string]Value
}

// SendEvent publishes an event through the event collaborator.
type SendEvent struct {
	EventType string
	Data      map[string]Value
}

// Composite runs its children in order. Nesting is kept as declared.
type Composite []Action

func (Log) action()                 {}
func (UpdateField) action()         {}
func (CallExternalService) action() {}
func (SendEvent) action()           {}
func (Composite) action()           {}

// Action tags used by the exchange format.
const (
	TagLog                 = "Log"
	TagUpdateField         = "UpdateField"
	TagCallExternalService = "CallExternalService"
	TagSendEvent           = "SendEvent"
	TagComposite           = "Composite"
)
