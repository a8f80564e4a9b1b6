package routeros

import (
	"bufio"
	"crypto/md5" //nolint:gosec // mandated by the RouterOS challenge-response login protocol
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ConnectTimeout bounds a dial attempt.
const ConnectTimeout = 5 * time.Second

// ReadTimeout bounds a single read phase (time without progress).
const ReadTimeout = 30 * time.Second

// Conn is an authenticated byte-stream session to one RouterOS device.
// It is strictly request/response and single-command: callers must not
// issue a new command before the previous one's reply has been fully read.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader
}

// Dial opens a TCP connection to addr, failing after ConnectTimeout.
func Dial(addr string) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return &Conn{nc: nc, r: bufio.NewReader(nc)}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// Run issues a single command (a path word plus "=key=value" argument
// words) and returns the parsed reply sentences.
func (c *Conn) Run(path string, args map[string]string) ([]Sentence, error) {
	words := make([]string, 0, 1+len(args))
	words = append(words, path)
	for k, v := range args {
		words = append(words, "="+k+"="+v)
	}
	return c.exchange(words)
}

func (c *Conn) exchange(words []string) ([]Sentence, error) {
	if err := c.nc.SetWriteDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, &TransportError{Op: "set write deadline", Err: err}
	}
	if err := writeSentence(c.nc, words); err != nil {
		return nil, &TransportError{Op: "write sentence", Err: err}
	}

	if err := c.nc.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, &TransportError{Op: "set read deadline", Err: err}
	}
	sentences, err := readSentences(c.r)
	if err != nil {
		if errors.Is(err, ErrTrap) {
			return nil, &ProtocolError{Message: strings.TrimPrefix(err.Error(), ErrTrap.Error()+": "), Err: err}
		}
		return nil, &TransportError{Op: "read sentences", Err: err}
	}
	return sentences, nil
}

// Login authenticates the connection, attempting the plaintext flow first
// and falling back to the MD5 challenge-response flow on failure.
func (c *Conn) Login(user, password string) error {
	if err := c.loginPlaintext(user, password); err == nil {
		return nil
	}
	if err := c.loginChallengeResponse(user, password); err != nil {
		return &AuthError{Err: err}
	}
	return nil
}

func (c *Conn) loginPlaintext(user, password string) error {
	sentences, err := c.exchange([]string{"/login", "=name=" + user, "=password=" + password})
	if err != nil {
		return err
	}
	for _, s := range sentences {
		if msg, ok := s.Get("message"); ok {
			lower := strings.ToLower(msg)
			if strings.Contains(lower, "failure") || strings.Contains(lower, "invalid") {
				return fmt.Errorf("login failed: %s", msg)
			}
		}
	}
	return nil
}

func (c *Conn) loginChallengeResponse(user, password string) error {
	sentences, err := c.exchange([]string{"/login"})
	if err != nil {
		return err
	}
	var challengeHex string
	for _, s := range sentences {
		if ret, ok := s.Get("ret"); ok {
			challengeHex = ret
		}
	}
	if challengeHex == "" {
		return errors.New("no challenge 'ret' attribute received")
	}
	challenge, err := hex.DecodeString(challengeHex)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	data := make([]byte, 0, 1+len(password)+len(challenge))
	data = append(data, 0x00)
	data = append(data, password...)
	data = append(data, challenge...)
	digest := md5.Sum(data) //nolint:gosec // protocol-mandated, not a security boundary
	response := "00" + hex.EncodeToString(digest[:])

	sentences, err = c.exchange([]string{"/login", "=name=" + user, "=response=" + response})
	if err != nil {
		return err
	}
	for _, s := range sentences {
		if msg, ok := s.Get("message"); ok {
			lower := strings.ToLower(msg)
			if strings.Contains(lower, "failure") || strings.Contains(lower, "invalid") {
				return fmt.Errorf("login failed: %s", msg)
			}
		}
	}
	return nil
}
