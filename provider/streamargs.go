package provider

import (
	"encoding/json"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// argScanner incrementally parses a streamed JSON object of tool call
// arguments, emitting per-key events without waiting for the full payload.
// String values stream out as decoded deltas; other values (numbers, bools,
// nested objects) are buffered and delivered whole when they close.
//
// The scanner is byte-oriented so chunk boundaries may fall anywhere,
// including inside escape sequences and multi-byte UTF-8 characters.
type argScanner struct {
	state scanState

	key     strings.Builder
	keyName string

	raw      strings.Builder
	rawDepth int
	rawInStr bool
	rawEsc   bool

	// string escape decoding
	esc      bool
	uniBuf   []byte
	uniHigh  rune
	haveHigh bool
}

type scanState int

const (
	scanStart  scanState = iota // before '{'
	scanKey                     // awaiting '"' or '}'
	scanKeyStr                  // inside a key string
	scanColon                   // awaiting ':'
	scanValue                   // awaiting first value byte
	scanStr                     // inside a string value
	scanRaw                     // inside a non-string value
	scanComma                   // awaiting ',' or '}'
	scanDone
)

// scanEvent is one piece of argument structure recovered from the stream.
type scanEvent struct {
	Key   string
	Delta string // decoded string-value delta
	Value any    // complete non-string value, set only with Done
	Done  bool   // key finished streaming
}

func newArgScanner() *argScanner {
	return &argScanner{}
}

// feed consumes the next chunk of raw argument JSON and returns the events
// it produced. Deltas for the same key within one chunk are coalesced.
func (s *argScanner) feed(chunk string) []scanEvent {
	var events []scanEvent
	var delta strings.Builder

	flushDelta := func() {
		if delta.Len() > 0 {
			events = append(events, scanEvent{Key: s.keyName, Delta: delta.String()})
			delta.Reset()
		}
	}

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		switch s.state {
		case scanStart:
			if c == '{' {
				s.state = scanKey
			}

		case scanKey:
			switch c {
			case '"':
				s.key.Reset()
				s.resetStringDecode()
				s.state = scanKeyStr
			case '}':
				s.state = scanDone
			}

		case scanKeyStr:
			if closed := s.decodeStringByte(c, &s.key); closed {
				s.keyName = s.key.String()
				s.state = scanColon
			}

		case scanColon:
			if c == ':' {
				s.state = scanValue
			}

		case scanValue:
			switch {
			case c == ' ' || c == '\t' || c == '\n' || c == '\r':
				// skip
			case c == '"':
				s.resetStringDecode()
				s.state = scanStr
			default:
				s.raw.Reset()
				s.raw.WriteByte(c)
				s.rawInStr = false
				s.rawEsc = false
				if c == '{' || c == '[' {
					s.rawDepth = 1
				} else {
					s.rawDepth = 0
				}
				s.state = scanRaw
			}

		case scanStr:
			if closed := s.decodeStringByte(c, &delta); closed {
				flushDelta()
				events = append(events, scanEvent{Key: s.keyName, Done: true})
				s.state = scanComma
			}

		case scanRaw:
			if s.rawDepth == 0 {
				// primitive: ends at a delimiter, which is not consumed
				if c == ',' || c == '}' || c == ' ' || c == '\t' || c == '\n' || c == '\r' {
					events = append(events, s.finishRaw())
					if c == ',' {
						s.state = scanKey
					} else if c == '}' {
						s.state = scanDone
					} else {
						s.state = scanComma
					}
					continue
				}
				s.raw.WriteByte(c)
				continue
			}
			// composite: track nesting and embedded strings
			s.raw.WriteByte(c)
			if s.rawInStr {
				if s.rawEsc {
					s.rawEsc = false
				} else if c == '\\' {
					s.rawEsc = true
				} else if c == '"' {
					s.rawInStr = false
				}
				continue
			}
			switch c {
			case '"':
				s.rawInStr = true
			case '{', '[':
				s.rawDepth++
			case '}', ']':
				s.rawDepth--
				if s.rawDepth == 0 {
					events = append(events, s.finishRaw())
					s.state = scanComma
				}
			}

		case scanComma:
			switch c {
			case ',':
				s.state = scanKey
			case '}':
				s.state = scanDone
			}

		case scanDone:
			// trailing bytes ignored
		}
	}

	flushDelta()
	return events
}

// finish flushes any in-progress value at end of stream. A string value cut
// off mid-stream is left not-done so callers can tell it was truncated.
func (s *argScanner) finish() []scanEvent {
	switch s.state {
	case scanRaw:
		ev := s.finishRaw()
		s.state = scanDone
		return []scanEvent{ev}
	default:
		return nil
	}
}

func (s *argScanner) finishRaw() scanEvent {
	text := s.raw.String()
	s.raw.Reset()

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		// malformed non-string value: surface the raw text
		value = text
	}
	return scanEvent{Key: s.keyName, Value: value, Done: true}
}

func (s *argScanner) resetStringDecode() {
	s.esc = false
	s.uniBuf = nil
	s.haveHigh = false
}

// decodeStringByte consumes one byte of a JSON string body, writing decoded
// output to out. Returns true when the closing quote is reached.
func (s *argScanner) decodeStringByte(c byte, out *strings.Builder) bool {
	// collecting the 4 hex digits of a \uXXXX escape
	if s.uniBuf != nil {
		s.uniBuf = append(s.uniBuf, c)
		if len(s.uniBuf) == 4 {
			r := decodeHex4(s.uniBuf)
			s.uniBuf = nil
			s.writeUnicode(r, out)
		}
		return false
	}

	if s.esc {
		s.esc = false
		if c == 'u' {
			s.uniBuf = make([]byte, 0, 4)
			return false
		}
		s.flushHighSurrogate(out)
		switch c {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		case 'b':
			out.WriteByte('\b')
		case 'f':
			out.WriteByte('\f')
		case '"', '\\', '/':
			out.WriteByte(c)
		default:
			out.WriteByte('\\')
			out.WriteByte(c)
		}
		return false
	}

	switch c {
	case '\\':
		s.esc = true
		return false
	case '"':
		s.flushHighSurrogate(out)
		return true
	default:
		s.flushHighSurrogate(out)
		out.WriteByte(c)
		return false
	}
}

// writeUnicode handles a decoded \uXXXX code unit, pairing UTF-16
// surrogates across escapes (and across chunk boundaries).
func (s *argScanner) writeUnicode(r rune, out *strings.Builder) {
	if s.haveHigh {
		s.haveHigh = false
		if utf16.IsSurrogate(r) {
			out.WriteRune(utf16.DecodeRune(s.uniHigh, r))
			return
		}
		out.WriteRune(utf8.RuneError)
		out.WriteRune(r)
		return
	}
	if utf16.IsSurrogate(r) {
		if r >= 0xD800 && r < 0xDC00 {
			s.uniHigh = r
			s.haveHigh = true
			return
		}
		out.WriteRune(utf8.RuneError)
		return
	}
	out.WriteRune(r)
}

func (s *argScanner) flushHighSurrogate(out *strings.Builder) {
	if s.haveHigh {
		s.haveHigh = false
		out.WriteRune(utf8.RuneError)
	}
}

func decodeHex4(buf []byte) rune {
	var r rune
	for _, c := range buf {
		r <<= 4
		switch {
		case c >= '0' && c <= '9':
			r |= rune(c - '0')
		case c >= 'a' && c <= 'f':
			r |= rune(c-'a') + 10
		case c >= 'A' && c <= 'F':
			r |= rune(c-'A') + 10
		}
	}
	return r
}
