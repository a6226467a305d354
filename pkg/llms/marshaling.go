package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// MarshalJSON implements json.Marshaler.
func (tc TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"type": "text",
		"text": tc.Text,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  Role `json:"role"`
		Parts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}

	switch raw.Role {
	case RoleAI, RoleHuman, RoleSystem:
	default:
		return errors.WithMessagef(ErrUnexpectedRole, "%q", raw.Role)
	}

	m.Role = raw.Role
	m.Parts = make([]ContentPart, 0, len(raw.Parts))
	for _, p := range raw.Parts {
		if p.Type != "text" {
			return errors.Newf("unsupported part type: %q", p.Type)
		}
		m.Parts = append(m.Parts, TextPart(p.Text))
	}
	return nil
}
