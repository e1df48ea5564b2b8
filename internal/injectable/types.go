package injectable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// ID accepts both JSON strings and numbers; the authority uses either.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("injectable id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Injectable is an encrypted, signed artifact delivered by the authority.
type Injectable struct {
	ID         ID                     `json:"id" validate:"required"`
	Name       string                 `json:"name,omitempty"`
	Slug       string                 `json:"slug,omitempty"`
	Type       string                 `json:"type,omitempty"`
	Mode       string                 `json:"mode,omitempty"`
	TargetPath string                 `json:"target_path,omitempty"`
	Content    string                 `json:"content" validate:"required"`
	Signature  string                 `json:"signature,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// RelativeTarget picks target_path, then slug, then name, then <id>.txt.
func (i Injectable) RelativeTarget() string {
	for _, candidate := range []string{i.TargetPath, i.Slug, i.Name} {
		if c := strings.TrimSpace(candidate); c != "" {
			return filepath.FromSlash(c)
		}
	}
	return string(i.ID) + ".txt"
}
