// Package serialize converts a cohort to and from its portable form: a
// numbered node table plus the output mapping.
//
// Every distinct node (by identity) gets one id, "#1" to "#n", numbered so
// that a node's dependencies come before it. Node-valued attributes and
// outputs are written as {"node": "#k"} references. Decoding builds one
// instance per id, so sub-trees shared in the original cohort are shared
// again after a round trip.
//
// The encoding is deterministic: node and output order is preserved and
// attribute keys use RFC 8785 ordering, so encode, decode, encode is byte
// identical.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
)

// Portable is the node-table form of a cohort.
type Portable struct {
	Version string
	Nodes   []NodeRecord
	Outputs []OutputRecord
}

// NodeRecord is one node: its variant tag and attributes. Attributes that
// are themselves nodes hold {"node": id} references.
type NodeRecord struct {
	ID    string
	Type  string
	Attrs ir.IRObject
}

// OutputRecord maps an output name to a node reference or a literal.
type OutputRecord struct {
	Name  string
	Value ir.IRValue
}

// Marshal encodes a cohort as indented portable JSON.
func Marshal(cohort *queryir.Cohort) ([]byte, error) {
	p, err := ToPortable(cohort)
	if err != nil {
		return nil, err
	}
	return p.Indent()
}

// Unmarshal decodes portable JSON into a cohort.
func Unmarshal(data []byte) (*queryir.Cohort, error) {
	var p Portable
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return FromPortable(&p)
}

// Hash returns the content address of the definition. It is computed over
// the compact encoding, so formatting does not change it.
func (p *Portable) Hash() (string, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return "", err
	}
	return ir.DefinitionHash(data), nil
}

// Indent returns the encoding with two-space indentation and a trailing
// newline.
func (p *Portable) Indent() ([]byte, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MarshalJSON writes the compact encoding. Nodes are written in id order
// and outputs in cohort order.
func (p *Portable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	if err := writeValue(&buf, ir.IRString(p.Version)); err != nil {
		return nil, err
	}

	buf.WriteString(`,"nodes":{`)
	for i, n := range p.Nodes {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(&buf, ir.IRString(n.ID)); err != nil {
			return nil, err
		}
		buf.WriteString(`:{"type":`)
		if err := writeValue(&buf, ir.IRString(n.Type)); err != nil {
			return nil, err
		}
		buf.WriteString(`,"attrs":`)
		attrs := n.Attrs
		if attrs == nil {
			attrs = ir.IRObject{}
		}
		if err := writeValue(&buf, attrs); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		buf.WriteByte('}')
	}

	buf.WriteString(`},"outputs":{`)
	for i, o := range p.Outputs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(&buf, ir.IRString(o.Name)); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeValue(&buf, o.Value); err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name, err)
		}
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v ir.IRValue) error {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// UnmarshalJSON reads the encoding written by MarshalJSON or Indent,
// keeping node and output order.
func (p *Portable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	*p = Portable{}
	seen := make(map[string]bool)
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return err
		}
		if seen[key] {
			return &DecodeError{Message: fmt.Sprintf("duplicate field %q", key)}
		}
		seen[key] = true

		switch key {
		case "version":
			if err := dec.Decode(&p.Version); err != nil {
				return &DecodeError{Message: "version: " + err.Error()}
			}
		case "nodes":
			if err := p.decodeNodes(dec); err != nil {
				return err
			}
		case "outputs":
			if err := p.decodeOutputs(dec); err != nil {
				return err
			}
		default:
			return &DecodeError{Message: fmt.Sprintf("unknown field %q", key)}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	if _, err := dec.Token(); err == nil {
		return &DecodeError{Message: "trailing data after definition"}
	}
	return nil
}

func (p *Portable) decodeNodes(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		id, err := stringToken(dec)
		if err != nil {
			return err
		}
		var raw struct {
			Type  string      `json:"type"`
			Attrs ir.IRObject `json:"attrs"`
		}
		if err := dec.Decode(&raw); err != nil {
			return &DecodeError{ID: id, Message: err.Error()}
		}
		p.Nodes = append(p.Nodes, NodeRecord{ID: id, Type: raw.Type, Attrs: raw.Attrs})
	}
	return expectDelim(dec, '}')
}

func (p *Portable) decodeOutputs(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return &DecodeError{Message: fmt.Sprintf("output %q: %v", name, err)}
		}
		v, err := ir.DecodeValue(raw)
		if err != nil {
			return &DecodeError{Message: fmt.Sprintf("output %q: %v", name, err)}
		}
		p.Outputs = append(p.Outputs, OutputRecord{Name: name, Value: v})
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return &DecodeError{Message: err.Error()}
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return &DecodeError{Message: fmt.Sprintf("expected %q, got %v", want, tok)}
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", &DecodeError{Message: err.Error()}
	}
	s, ok := tok.(string)
	if !ok {
		return "", &DecodeError{Message: fmt.Sprintf("expected object key, got %v", tok)}
	}
	return s, nil
}
