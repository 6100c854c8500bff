package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Node variant tags.
const (
	nodeTagEmpty     = "Empty"
	nodeTagContainer = "Container"
	nodeTagText      = "Text"
	nodeTagButton    = "Button"
	nodeTagCheckbox  = "Checkbox"
	nodeTagInput     = "Input"
)

// Node is one element of a document tree. The variant set is closed: Empty,
// Container, Text, Button, Checkbox, and Input. The core treats trees as
// opaque serializable values; interpreting them is the renderer's job.
type Node interface {
	nodeTag() string
}

// Empty renders nothing.
type Empty struct{}

// Container groups child nodes.
type Container struct {
	Children []Node
	Classes  []string
}

// Text is a run of static text.
type Text struct {
	Text    string
	Classes []string
}

// Button triggers an action when activated.
type Button struct {
	Label   string
	OnClick ActionRef
	Classes []string
}

// Checkbox is a toggle bound to an action.
type Checkbox struct {
	ID       string
	Label    string
	Checked  bool
	OnChange ActionRef
	Classes  []string
}

// Input is a single-line text entry field.
type Input struct {
	ID       string
	Label    string
	Password bool
	Classes  []string
}

func (*Empty) nodeTag() string     { return nodeTagEmpty }
func (*Container) nodeTag() string { return nodeTagContainer }
func (*Text) nodeTag() string      { return nodeTagText }
func (*Button) nodeTag() string    { return nodeTagButton }
func (*Checkbox) nodeTag() string  { return nodeTagCheckbox }
func (*Input) nodeTag() string     { return nodeTagInput }

// Wire shapes. Container children encode recursively through the node
// envelope, so the decode side reads them as raw messages first.

type emptyWire struct{}

type containerWire struct {
	Children []Node   `cbor:"children,omitempty"`
	Classes  []string `cbor:"classes,omitempty"`
}

type containerDecodeWire struct {
	Children []cbor.RawMessage `cbor:"children"`
	Classes  []string          `cbor:"classes"`
}

type textWire struct {
	Text    string   `cbor:"text"`
	Classes []string `cbor:"classes,omitempty"`
}

type buttonWire struct {
	Label   string    `cbor:"label"`
	OnClick ActionRef `cbor:"on_click"`
	Classes []string  `cbor:"classes,omitempty"`
}

type checkboxWire struct {
	ID       string    `cbor:"id"`
	Label    string    `cbor:"label"`
	Checked  bool      `cbor:"checked"`
	OnChange ActionRef `cbor:"on_change"`
	Classes  []string  `cbor:"classes,omitempty"`
}

type inputWire struct {
	ID       string   `cbor:"id"`
	Label    string   `cbor:"label"`
	Password bool     `cbor:"password,omitempty"`
	Classes  []string `cbor:"classes,omitempty"`
}

// MarshalCBOR encodes the node as a tagged envelope.
func (n *Empty) MarshalCBOR() ([]byte, error) {
	return marshalTagged(nodeTagEmpty, emptyWire{})
}

func (n *Container) MarshalCBOR() ([]byte, error) {
	return marshalTagged(nodeTagContainer, containerWire{Children: n.Children, Classes: n.Classes})
}

func (n *Text) MarshalCBOR() ([]byte, error) {
	return marshalTagged(nodeTagText, textWire{Text: n.Text, Classes: n.Classes})
}

func (n *Button) MarshalCBOR() ([]byte, error) {
	return marshalTagged(nodeTagButton, buttonWire{Label: n.Label, OnClick: n.OnClick, Classes: n.Classes})
}

func (n *Checkbox) MarshalCBOR() ([]byte, error) {
	return marshalTagged(nodeTagCheckbox, checkboxWire{
		ID:       n.ID,
		Label:    n.Label,
		Checked:  n.Checked,
		OnChange: n.OnChange,
		Classes:  n.Classes,
	})
}

func (n *Input) MarshalCBOR() ([]byte, error) {
	return marshalTagged(nodeTagInput, inputWire{
		ID:       n.ID,
		Label:    n.Label,
		Password: n.Password,
		Classes:  n.Classes,
	})
}

// decodeNode reconstructs a node from its tagged envelope.
func decodeNode(data []byte) (Node, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, &MalformedMessageError{Reason: "node envelope: " + err.Error()}
	}

	switch env.Tag {
	case nodeTagEmpty:
		return &Empty{}, nil

	case nodeTagContainer:
		var w containerDecodeWire
		if err := decMode.Unmarshal(env.Body, &w); err != nil {
			return nil, &MalformedMessageError{Tag: env.Tag, Reason: err.Error()}
		}
		c := &Container{Classes: w.Classes}
		if len(w.Children) > 0 {
			c.Children = make([]Node, 0, len(w.Children))
			for _, raw := range w.Children {
				child, err := decodeNode(raw)
				if err != nil {
					return nil, err
				}
				c.Children = append(c.Children, child)
			}
		}
		return c, nil

	case nodeTagText:
		var w textWire
		if err := decMode.Unmarshal(env.Body, &w); err != nil {
			return nil, &MalformedMessageError{Tag: env.Tag, Reason: err.Error()}
		}
		return &Text{Text: w.Text, Classes: w.Classes}, nil

	case nodeTagButton:
		var w buttonWire
		if err := decMode.Unmarshal(env.Body, &w); err != nil {
			return nil, &MalformedMessageError{Tag: env.Tag, Reason: err.Error()}
		}
		return &Button{Label: w.Label, OnClick: w.OnClick, Classes: w.Classes}, nil

	case nodeTagCheckbox:
		var w checkboxWire
		if err := decMode.Unmarshal(env.Body, &w); err != nil {
			return nil, &MalformedMessageError{Tag: env.Tag, Reason: err.Error()}
		}
		return &Checkbox{
			ID:       w.ID,
			Label:    w.Label,
			Checked:  w.Checked,
			OnChange: w.OnChange,
			Classes:  w.Classes,
		}, nil

	case nodeTagInput:
		var w inputWire
		if err := decMode.Unmarshal(env.Body, &w); err != nil {
			return nil, &MalformedMessageError{Tag: env.Tag, Reason: err.Error()}
		}
		return &Input{ID: w.ID, Label: w.Label, Password: w.Password, Classes: w.Classes}, nil

	default:
		return nil, fmt.Errorf("%w: node %q", ErrUnknownVariant, env.Tag)
	}
}

// Document is an immutable node tree produced by a handler for a Render.
// A nil root encodes as Empty.
type Document struct {
	Root Node
}

// EmptyDocument returns a document that renders nothing.
func EmptyDocument() Document {
	return Document{Root: &Empty{}}
}

// MarshalCBOR encodes the document as its root node's envelope.
func (d Document) MarshalCBOR() ([]byte, error) {
	root := d.Root
	if root == nil {
		root = &Empty{}
	}
	return encMode.Marshal(root)
}

// UnmarshalCBOR decodes a document from a node envelope.
func (d *Document) UnmarshalCBOR(data []byte) error {
	root, err := decodeNode(data)
	if err != nil {
		return err
	}
	d.Root = root
	return nil
}
