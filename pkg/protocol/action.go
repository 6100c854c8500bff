package protocol

// ActionRef describes an action a document element can trigger. It is
// embedded in interactive nodes (buttons, checkboxes) and travels to the
// client inside a Render; when the element fires, the client sends back an
// Action message built from this descriptor.
type ActionRef struct {
	// Name identifies the action to the route handler.
	Name string `cbor:"name"`

	// Args are fixed arguments baked into the document, for example the id
	// of the list item a button belongs to.
	Args map[string]string `cbor:"args,omitempty"`

	// Keys names the storage entries the client must attach as the storage
	// subset when submitting this action. Entries not named here never leave
	// the client.
	Keys []string `cbor:"keys,omitempty"`
}

// NamedAction builds an ActionRef with no fixed arguments.
func NamedAction(name string, keys ...string) ActionRef {
	return ActionRef{Name: name, Keys: keys}
}

// NewActionRef builds an ActionRef with fixed arguments.
func NewActionRef(name string, args map[string]string, keys ...string) ActionRef {
	return ActionRef{Name: name, Args: args, Keys: keys}
}
