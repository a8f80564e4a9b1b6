package routeros

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sentence is a single reply row: the marker word (e.g. "!re", "!done",
// "!trap") plus its attribute words, decoded into a flat key/value map.
// Non-attribute, non-marker words are dropped for forward compatibility,
// as required by the wire protocol's exchange model.
type Sentence struct {
	Marker string
	Attrs  map[string]string
}

// Get returns the named attribute and whether it was present.
func (s Sentence) Get(key string) (string, bool) {
	v, ok := s.Attrs[key]
	return v, ok
}

func writeWord(w io.Writer, word string) error {
	prefix, err := encodeLength(len(word))
	if err != nil {
		return err
	}
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	if len(word) == 0 {
		return nil
	}
	_, err = io.WriteString(w, word)
	return err
}

// writeSentence writes a nonempty ordered list of words followed by the
// zero-length terminator word.
func writeSentence(w io.Writer, words []string) error {
	for _, word := range words {
		if err := writeWord(w, word); err != nil {
			return fmt.Errorf("routeros: write word: %w", err)
		}
	}
	return writeWord(w, "")
}

func readWord(r *bufio.Reader) (string, error) {
	first, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	n := decodeLengthPrefixSize(first)
	var rest []byte
	if n > 0 {
		rest = make([]byte, n)
		if _, err := io.ReadFull(r, rest); err != nil {
			return "", err
		}
	}
	length, err := decodeLength(first, rest)
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ErrTrap is returned (wrapped in *ProtocolError) when the device replies
// with a trap sentence.
var ErrTrap = errors.New("routeros: device returned a trap")

// readSentences reads inbound sentences until a terminator marker ("!done")
// is seen, aggregating rows started by "!re" markers. Attributes carried on
// the "!done" sentence itself (e.g. the login challenge's "ret") are
// returned as a final row with Marker "!done". An "!trap" marker fails the
// exchange with the trap's message attribute.
func readSentences(r *bufio.Reader) ([]Sentence, error) {
	var (
		sentences []Sentence
		current   *Sentence
	)
	flush := func() {
		if current != nil {
			sentences = append(sentences, *current)
			current = nil
		}
	}
	for {
		word, err := readWord(r)
		if err != nil {
			return nil, err
		}
		if word == "" {
			continue
		}
		switch {
		case word == "!done":
			flush()
			done := Sentence{Marker: "!done", Attrs: make(map[string]string)}
			for {
				w, err := readWord(r)
				if err != nil {
					return nil, err
				}
				if w == "" {
					break
				}
				if k, v, ok := splitAttr(w); ok && strings.HasPrefix(w, "=") {
					done.Attrs[k] = v
				}
			}
			if len(done.Attrs) > 0 {
				sentences = append(sentences, done)
			}
			return sentences, nil
		case word == "!empty":
			flush()
			return sentences, nil
		case word == "!trap":
			trap, err := readTrapAttrs(r)
			if err != nil {
				return nil, err
			}
			msg := trap["message"]
			if msg == "" {
				msg = "trap"
			}
			return nil, fmt.Errorf("%w: %s", ErrTrap, msg)
		case word == "!re":
			flush()
			current = &Sentence{Marker: "!re", Attrs: make(map[string]string)}
		case strings.HasPrefix(word, "="):
			if current == nil {
				current = &Sentence{Marker: "", Attrs: make(map[string]string)}
			}
			k, v, ok := splitAttr(word)
			if ok {
				current.Attrs[k] = v
			}
		default:
			// Unknown header word (e.g. ".tag"): ignored for forward
			// compatibility per the wire protocol's marker vocabulary.
		}
	}
}

// readTrapAttrs drains words until the next marker word, collecting
// attribute assignments into a flat map (used for !trap sentences, which
// are never added to the returned sentence list).
func readTrapAttrs(r *bufio.Reader) (map[string]string, error) {
	attrs := make(map[string]string)
	for {
		word, err := readWord(r)
		if err != nil {
			return nil, err
		}
		if word == "" {
			continue
		}
		if strings.HasPrefix(word, "=") {
			if k, v, ok := splitAttr(word); ok {
				attrs[k] = v
			}
			continue
		}
		if word == "!done" || strings.HasPrefix(word, "!") {
			return attrs, nil
		}
	}
}

func splitAttr(word string) (key, value string, ok bool) {
	body := strings.TrimPrefix(word, "=")
	idx := strings.IndexByte(body, '=')
	if idx < 0 {
		return "", "", false
	}
	return body[:idx], body[idx+1:], true
}
