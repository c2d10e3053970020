package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Role identifies who authored a message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Kind classifies a history entry by its place in a turn.
type Kind string

const (
	KindTutorPrompt     Kind = "tutor-prompt"
	KindTutorResponse   Kind = "tutor-response"
	KindStudentResponse Kind = "student-response"
)

// ErrMalformedHistoryEntry flags an entry that was recovered as a human message.
var ErrMalformedHistoryEntry = errors.New("malformed history entry")

// Message is one immutable entry of the session history.
type Message struct {
	Role    Role   `json:"role" yaml:"role" mapstructure:"role"`
	Content string `json:"content" yaml:"content" mapstructure:"content"`
	Kind    Kind   `json:"kind,omitempty" yaml:"kind,omitempty" mapstructure:"kind"`
}

// TutorPrompt builds the rendered phase prompt entry.
// The prompt is sent on the student's behalf, hence the human role.
func TutorPrompt(content string) Message {
	return Message{Role: RoleHuman, Content: content, Kind: KindTutorPrompt}
}

// TutorResponse builds the model reply entry.
func TutorResponse(content string) Message {
	return Message{Role: RoleAI, Content: content, Kind: KindTutorResponse}
}

// StudentResponse builds the student's answer entry.
func StudentResponse(content string) Message {
	return Message{Role: RoleHuman, Content: content, Kind: KindStudentResponse}
}

// rawMessage accepts the shapes produced by other serializers (role/type, non-string content).
type rawMessage struct {
	Role    string `mapstructure:"role"`
	Type    string `mapstructure:"type"`
	Content any    `mapstructure:"content"`
	Kind    string `mapstructure:"kind"`
}

// NormalizeMessage converts a history entry of any supported shape into a Message.
// It never fails: entries that cannot be converted become human messages, and the
// returned error (wrapping ErrMalformedHistoryEntry) only reports that recovery happened.
func NormalizeMessage(entry any) (Message, error) {
	switch v := entry.(type) {
	case Message:
		v.Role = NormalizeRole(string(v.Role))
		return v, nil
	case *Message:
		if v == nil {
			return Message{Role: RoleHuman}, fmt.Errorf("%w: nil message", ErrMalformedHistoryEntry)
		}
		m := *v
		m.Role = NormalizeRole(string(m.Role))
		return m, nil
	case string:
		return Message{Role: RoleHuman, Content: v}, nil
	case map[string]any:
		return decodeRawMessage(v)
	case nil:
		return Message{Role: RoleHuman}, fmt.Errorf("%w: null entry", ErrMalformedHistoryEntry)
	default:
		return Message{Role: RoleHuman, Content: fmt.Sprint(v)}, fmt.Errorf("%w: unsupported type %T", ErrMalformedHistoryEntry, entry)
	}
}

func decodeRawMessage(in map[string]any) (Message, error) {
	var raw rawMessage
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return Message{Role: RoleHuman}, fmt.Errorf("%w: %v", ErrMalformedHistoryEntry, err)
	}
	if err := dec.Decode(in); err != nil {
		return Message{Role: RoleHuman, Content: fmt.Sprint(in)}, fmt.Errorf("%w: %v", ErrMalformedHistoryEntry, err)
	}

	role := raw.Role
	if role == "" {
		role = raw.Type
	}

	msg := Message{
		Role: NormalizeRole(role),
		Kind: Kind(raw.Kind),
	}
	switch c := raw.Content.(type) {
	case string:
		msg.Content = c
	case nil:
		return msg, fmt.Errorf("%w: missing content", ErrMalformedHistoryEntry)
	default:
		msg.Content = fmt.Sprint(c)
	}
	if role == "" {
		return msg, fmt.Errorf("%w: missing role", ErrMalformedHistoryEntry)
	}
	return msg, nil
}

// NormalizeRole maps the role spellings used by chat APIs onto human or ai.
// Anything unrecognized is treated as human.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "ai", "assistant", "model", "tutor":
		return RoleAI
	default:
		return RoleHuman
	}
}
