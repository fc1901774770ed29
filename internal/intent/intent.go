// Package intent turns a spoken phrase into a structured music intent using
// an LLM.
package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Intent describes the music the user asked for. Every field is optional;
// Prompt is what the generator actually consumes.
type Intent struct {
	Mood          string     `json:"mood,omitempty"`
	Tempo         BPM        `json:"tempo,omitempty"`
	Key           string     `json:"key,omitempty"`
	Instruments   StringList `json:"instruments,omitempty"`
	Energy        string     `json:"energy,omitempty"`
	Persona       string     `json:"persona,omitempty"`
	StructureHint string     `json:"structureHint,omitempty"`
	Prompt        string     `json:"prompt,omitempty"`
}

// GenerationPrompt returns the model-ready prompt, or "" when the intent
// carries none.
func (i *Intent) GenerationPrompt() string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.Prompt)
}

// BPM is a tempo in beats per minute. It decodes from numbers and from
// strings such as "120 bpm" or "90-100"; anything unreadable becomes 0.
type BPM int

var bpmDigits = regexp.MustCompile(`\d+(\.\d+)?`)

func (b *BPM) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}

	m := bpmDigits.FindString(raw)
	if m == "" {
		*b = 0
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return fmt.Errorf("tempo %q: %w", raw, err)
	}
	*b = BPM(f + 0.5)
	return nil
}

// StringList accepts a JSON array of strings or a single comma separated
// string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var out StringList
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*l = out
		return nil
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(StringList, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	*l = out
	return nil
}
