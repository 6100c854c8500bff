package protocol

import (
	"errors"
	"fmt"
)

// Message variant tags.
const (
	TagClientHello = "ClientHello"
	TagServerHello = "ServerHello"
	TagLoad        = "Load"
	TagAction      = "Action"
	TagRender      = "Render"
	TagRedirectTo  = "RedirectTo"
	TagStore       = "Store"
	TagError       = "Error"
)

// Decode errors.
var (
	// ErrUnknownVariant is returned for a message or node tag outside the
	// closed variant set.
	ErrUnknownVariant = errors.New("protocol: unknown message variant")
)

// MalformedMessageError reports a payload that failed structural validation:
// wrong field shape, duplicate keys, or trailing bytes after a complete
// value. The reason describes the structure of the failure and never echoes
// raw peer bytes.
type MalformedMessageError struct {
	Tag    string
	Reason string
}

func (e *MalformedMessageError) Error() string {
	if e.Tag == "" {
		return "protocol: malformed message: " + e.Reason
	}
	return "protocol: malformed " + e.Tag + " message: " + e.Reason
}

// Message is one protocol message. The variant set is closed; exactly one
// message is carried per frame.
type Message interface {
	messageTag() string
}

// ClientHello opens or reopens capability negotiation. The client requests
// the set of capabilities it can speak, each at its maximum version.
type ClientHello struct {
	Capabilities CapabilitySet `cbor:"capabilities"`
}

// ServerHello answers a ClientHello with the granted capability set. The
// grant replaces the connection's previous set atomically.
type ServerHello struct {
	Capabilities CapabilitySet `cbor:"capabilities"`
}

// Load asks the server to render the document at a location.
type Load struct {
	Location string `cbor:"location"`
}

// Action submits a user action to the route at a location. Storage carries
// only the subset of the client's store named by the triggering ActionRef's
// keys; the server has no access to anything else.
type Action struct {
	Location string            `cbor:"location"`
	Name     string            `cbor:"name"`
	Args     map[string]string `cbor:"args,omitempty"`
	Storage  StateMap          `cbor:"storage,omitempty"`
}

// Render replaces the client's current document wholesale. The protocol
// never diffs; a render is always a complete tree.
type Render struct {
	Document Document `cbor:"document"`
}

// RedirectTo tells the client to navigate to a new location. The client
// clears local-scope storage and issues a fresh Load.
type RedirectTo struct {
	Location string `cbor:"location"`
}

// Store writes one entry into the client's scoped store.
type Store struct {
	Scope Scope      `cbor:"scope"`
	Key   string     `cbor:"key"`
	Value StateValue `cbor:"value"`
}

// ErrorMessage reports a request-scoped failure to the client. Unless the
// kind is fatal for the connection (for example a failed handshake), the
// connection survives.
type ErrorMessage struct {
	Kind   ErrorKind `cbor:"kind"`
	Detail string    `cbor:"detail"`
}

func (*ClientHello) messageTag() string  { return TagClientHello }
func (*ServerHello) messageTag() string  { return TagServerHello }
func (*Load) messageTag() string         { return TagLoad }
func (*Action) messageTag() string       { return TagAction }
func (*Render) messageTag() string       { return TagRender }
func (*RedirectTo) messageTag() string   { return TagRedirectTo }
func (*Store) messageTag() string        { return TagStore }
func (*ErrorMessage) messageTag() string { return TagError }

// Tag returns the wire tag of a message.
func Tag(m Message) string { return m.messageTag() }

// Error implements the error interface so an ErrorMessage can flow through
// error returns on the client side.
func (e *ErrorMessage) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Kind.StatusCode(), e.Detail)
}

// ErrorKind classifies server-to-client errors, mirroring HTTP status
// semantics.
type ErrorKind uint8

const (
	// KindBadRequest: the request was malformed or invalid.
	KindBadRequest ErrorKind = iota

	// KindNotFound: the requested location matched no route.
	KindNotFound

	// KindUpgradeRequired: client and server share no usable capability.
	KindUpgradeRequired

	// KindInternalServerError: the handler failed.
	KindInternalServerError
)

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindNotFound:
		return "NotFound"
	case KindUpgradeRequired:
		return "UpgradeRequired"
	case KindInternalServerError:
		return "InternalServerError"
	default:
		return "Unknown"
	}
}

// StatusCode returns the HTTP-style numeric code for the kind.
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindBadRequest:
		return 400
	case KindNotFound:
		return 404
	case KindUpgradeRequired:
		return 426
	case KindInternalServerError:
		return 500
	default:
		return 500
	}
}

// ParseErrorKind converts a wire name back to an ErrorKind.
func ParseErrorKind(name string) (ErrorKind, error) {
	switch name {
	case "BadRequest":
		return KindBadRequest, nil
	case "NotFound":
		return KindNotFound, nil
	case "UpgradeRequired":
		return KindUpgradeRequired, nil
	case "InternalServerError":
		return KindInternalServerError, nil
	default:
		return 0, fmt.Errorf("protocol: unknown error kind %q", name)
	}
}

// MarshalCBOR encodes the kind as its wire name.
func (k ErrorKind) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(k.String())
}

// UnmarshalCBOR decodes a kind from its wire name.
func (k *ErrorKind) UnmarshalCBOR(data []byte) error {
	var name string
	if err := decMode.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseErrorKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// EncodeMessage encodes a message into one frame payload. Encoding is total
// for validly constructed messages; it cannot fail at runtime.
func EncodeMessage(m Message) []byte {
	payload, err := marshalTagged(m.messageTag(), m)
	if err != nil {
		// Every message field is a plain CBOR-encodable type, so this is
		// unreachable for any constructible message value.
		panic("protocol: encoding " + m.messageTag() + ": " + err.Error())
	}
	return payload
}

// DecodeMessage decodes one frame payload into a message. It validates the
// variant tag and field shape in a single pass and rejects trailing bytes
// after a complete value.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, &MalformedMessageError{Reason: "envelope: " + err.Error()}
	}

	var (
		m   Message
		err error
	)
	switch env.Tag {
	case TagClientHello:
		m, err = decodeBody[ClientHello](env)
	case TagServerHello:
		m, err = decodeBody[ServerHello](env)
	case TagLoad:
		m, err = decodeBody[Load](env)
	case TagAction:
		m, err = decodeBody[Action](env)
	case TagRender:
		m, err = decodeBody[Render](env)
	case TagRedirectTo:
		m, err = decodeBody[RedirectTo](env)
	case TagStore:
		m, err = decodeBody[Store](env)
	case TagError:
		m, err = decodeBody[ErrorMessage](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, env.Tag)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// decodeBody unmarshals an envelope body into a concrete message variant.
func decodeBody[T any, PT interface {
	*T
	Message
}](env envelope) (Message, error) {
	v := PT(new(T))
	if err := decMode.Unmarshal(env.Body, v); err != nil {
		return nil, &MalformedMessageError{Tag: env.Tag, Reason: err.Error()}
	}
	return v, nil
}
