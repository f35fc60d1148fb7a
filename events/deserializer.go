package events

import (
	stdjson "encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// ErrPayloadInvalid is returned when a frame is not a JSON object with the
// expected top level keys.
var ErrPayloadInvalid = errors.New("events: gateway payload invalid")

// ErrEventTypeUnknown is returned when a dispatch carries an event name the
// library does not know about.
var ErrEventTypeUnknown = errors.New("events: unknown event type")

// GatewayEventDeserializer holds the result of a prefix scan over a frame:
// the opcode, sequence and event type extracted without deserializing the
// payload body. Most frames are dispatches whose body is only decoded by
// whichever consumer wants it, so the scan avoids a full parse per frame.
type GatewayEventDeserializer struct {
	Op          int
	Sequence    int64
	HasSequence bool
	EventType   string

	// Data is the raw span of the top level "d" value, aliasing the
	// scanned buffer.
	Data stdjson.RawMessage
}

// Deserialize scans raw for the top level "op", "s" and "t" keys. Keys may
// appear in any order and string values may contain escapes; values other
// than the three scanned keys are skipped without being decoded.
func Deserialize(raw []byte) (*GatewayEventDeserializer, error) {
	s := scanner{data: raw}
	d := &GatewayEventDeserializer{Op: -1}

	s.skipSpace()
	if !s.expect('{') {
		return nil, ErrPayloadInvalid
	}

	for {
		s.skipSpace()
		if s.expect('}') {
			break
		}

		key, err := s.readString()
		if err != nil {
			return nil, err
		}

		s.skipSpace()
		if !s.expect(':') {
			return nil, ErrPayloadInvalid
		}
		s.skipSpace()

		switch key {
		case "op":
			op, err := s.readInt()
			if err != nil {
				return nil, err
			}
			d.Op = int(op)
		case "s":
			if s.acceptNull() {
				break
			}
			seq, err := s.readInt()
			if err != nil {
				return nil, err
			}
			d.Sequence = seq
			d.HasSequence = true
		case "t":
			if s.acceptNull() {
				break
			}
			t, err := s.readString()
			if err != nil {
				return nil, err
			}
			d.EventType = t
		case "d":
			start := s.pos
			if err := s.skipValue(); err != nil {
				return nil, err
			}
			d.Data = stdjson.RawMessage(raw[start:s.pos])
		default:
			if err := s.skipValue(); err != nil {
				return nil, err
			}
		}

		s.skipSpace()
		if s.expect(',') {
			continue
		}
		if s.expect('}') {
			break
		}

		return nil, ErrPayloadInvalid
	}

	if d.Op < 0 {
		return nil, ErrPayloadInvalid
	}

	return d, nil
}

// ParseDispatch resolves a dispatch frame into an emitter event. The body
// stays raw; events with no payload such as RESUMED or PRESENCES_REPLACE
// simply carry it opaque.
func ParseDispatch(shardID int, eventType string, sequence int64, data stdjson.RawMessage) (*Dispatch, error) {
	flag, ok := EventTypeOf(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventTypeUnknown, eventType)
	}

	return &Dispatch{
		ShardID:  shardID,
		Type:     eventType,
		Sequence: sequence,
		Flag:     flag,
		Data:     data,
	}, nil
}

// scanner walks a JSON document byte by byte. It only understands as much
// JSON as the prefix scan needs.
type scanner struct {
	data []byte
	pos  int
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		default:
			return
		}
	}
}

// expect consumes c if it is the next byte.
func (s *scanner) expect(c byte) bool {
	if s.pos < len(s.data) && s.data[s.pos] == c {
		s.pos++
		return true
	}

	return false
}

// acceptNull consumes a JSON null if present.
func (s *scanner) acceptNull() bool {
	if s.pos+4 <= len(s.data) && string(s.data[s.pos:s.pos+4]) == "null" {
		s.pos += 4
		return true
	}

	return false
}

// readString decodes a JSON string including escape sequences.
func (s *scanner) readString() (string, error) {
	if !s.expect('"') {
		return "", ErrPayloadInvalid
	}

	start := s.pos
	escaped := false

	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == '\\' {
			escaped = true
			s.pos += 2

			continue
		}
		if c == '"' {
			raw := s.data[start:s.pos]
			s.pos++

			if !escaped {
				return string(raw), nil
			}

			return unescape(raw)
		}
		s.pos++
	}

	return "", ErrPayloadInvalid
}

func unescape(raw []byte) (string, error) {
	out := make([]byte, 0, len(raw))

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)

			continue
		}

		i++
		if i >= len(raw) {
			return "", ErrPayloadInvalid
		}

		switch raw[i] {
		case '"', '\\', '/':
			out = append(out, raw[i])
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'u':
			if i+4 >= len(raw) {
				return "", ErrPayloadInvalid
			}
			n, err := strconv.ParseUint(string(raw[i+1:i+5]), 16, 32)
			if err != nil {
				return "", ErrPayloadInvalid
			}
			i += 4

			r := rune(n)
			if utf16.IsSurrogate(r) && i+6 < len(raw) && raw[i+1] == '\\' && raw[i+2] == 'u' {
				n2, err := strconv.ParseUint(string(raw[i+3:i+7]), 16, 32)
				if err != nil {
					return "", ErrPayloadInvalid
				}
				r = utf16.DecodeRune(r, rune(n2))
				i += 6
			}
			out = append(out, []byte(string(r))...)
		default:
			return "", ErrPayloadInvalid
		}
	}

	return string(out), nil
}

// readInt reads a JSON number as an integer, discarding any fraction.
func (s *scanner) readInt() (int64, error) {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			s.pos++

			continue
		}

		break
	}

	if s.pos == start {
		return 0, ErrPayloadInvalid
	}

	n, err := strconv.ParseInt(string(s.data[start:s.pos]), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(s.data[start:s.pos]), 64)
		if ferr != nil {
			return 0, ErrPayloadInvalid
		}

		return int64(f), nil
	}

	return n, nil
}

// skipValue consumes a complete JSON value of any kind.
func (s *scanner) skipValue() error {
	if s.pos >= len(s.data) {
		return ErrPayloadInvalid
	}

	switch s.data[s.pos] {
	case '"':
		_, err := s.readString()
		return err
	case '{', '[':
		return s.skipContainer()
	case 't':
		return s.skipLiteral("true")
	case 'f':
		return s.skipLiteral("false")
	case 'n':
		return s.skipLiteral("null")
	default:
		_, err := s.readInt()
		return err
	}
}

func (s *scanner) skipLiteral(lit string) error {
	if s.pos+len(lit) <= len(s.data) && string(s.data[s.pos:s.pos+len(lit)]) == lit {
		s.pos += len(lit)
		return nil
	}

	return ErrPayloadInvalid
}

// skipContainer consumes an object or array, tracking nesting depth and
// skipping over strings so braces inside them do not count.
func (s *scanner) skipContainer() error {
	depth := 0

	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case '"':
			if _, err := s.readString(); err != nil {
				return err
			}

			continue
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				s.pos++
				return nil
			}
		}
		s.pos++
	}

	return ErrPayloadInvalid
}
