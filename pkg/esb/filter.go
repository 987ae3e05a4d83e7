package esb

import (
	"fmt"
	"strings"
)

type Position string

const (
	PositionBegins   Position = "begins"
	PositionEnds     Position = "ends"
	PositionContains Position = "contains"
	PositionMatches  Position = "matches"
)

type Field string

const (
	FieldAddress Field = "address"
	FieldPayload Field = "payload"
)

// Filter matches a lowercase hex string against the address or payload of a
// packet.
type Filter struct {
	Position Position `yaml:"position"`
	Data     string   `yaml:"data"`
	Field    Field    `yaml:"field"`
}

func (f Filter) Validate() error {
	switch f.Position {
	case PositionBegins, PositionEnds, PositionContains, PositionMatches:
	default:
		return fmt.Errorf("unknown filter position %q", f.Position)
	}
	switch f.Field {
	case FieldAddress, FieldPayload, "":
	default:
		return fmt.Errorf("unknown filter field %q", f.Field)
	}
	return nil
}

func (f Filter) Matches(p *Packet) bool {
	var data string
	switch f.Field {
	case FieldAddress:
		data = p.AddressString()
	default:
		data = p.PayloadString()
	}
	want := strings.ToLower(f.Data)

	switch f.Position {
	case PositionBegins:
		return strings.HasPrefix(data, want)
	case PositionEnds:
		return strings.HasSuffix(data, want)
	case PositionContains:
		return strings.Contains(data, want)
	case PositionMatches:
		return data == want
	default:
		return false
	}
}
