// Package fetch requests a single current reading from an ammeter over a stream connection.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

const (
	// maxResponseSize bounds how much of a reply is read.
	maxResponseSize = 1024

	defaultTimeout = 5 * time.Second
)

// Options contains the configuration options for a Client
type Options struct {
	// Transport config string. Empty dials the endpoint directly over TCP.
	Transport string
	// Deadline for one complete exchange (default: 5s)
	Timeout time.Duration
}

// ConnectionError reports that the exchange failed at the transport level.
// The device may recover, so callers are free to retry.
type ConnectionError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that is empty or not a decimal number.
type ProtocolError struct {
	Endpoint string
	Response string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Response == "" {
		return fmt.Sprintf("invalid response from %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("invalid response %q from %s: %v", e.Response, e.Endpoint, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrEmptyResponse is wrapped by a ProtocolError when the device closed without replying.
var ErrEmptyResponse = errors.New("no data received from ammeter")

// ErrNotDecimal is wrapped by the ProtocolError for replies such as NaN, Inf
// or hex floats that strconv would otherwise accept.
var ErrNotDecimal = errors.New("response is not a decimal number")

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// IsConnectionError reports whether err carries a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// Client performs stateless request/response exchanges. Every call opens
// and closes its own connection.
type Client struct {
	dialer  transport.StreamDialer
	timeout time.Duration
}

// NewClient creates a Client with the given options
func NewClient(opts Options) (*Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	configToDialer := configurl.NewDefaultConfigToDialer()
	configToDialer.BaseStreamDialer = &transport.TCPDialer{Dialer: net.Dialer{Timeout: opts.Timeout}}

	dialer, err := configToDialer.NewStreamDialer(opts.Transport)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	return &Client{
		dialer:  dialer,
		timeout: opts.Timeout,
	}, nil
}

// Request sends command to endpoint and returns the reading in the reply.
func (c *Client) Request(ctx context.Context, endpoint string, command []byte) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialStream(ctx, endpoint)
	if err != nil {
		return 0, &ConnectionError{Endpoint: endpoint, Op: "dial", Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, &ConnectionError{Endpoint: endpoint, Op: "set deadline", Err: err}
		}
	}

	if _, err := conn.Write(command); err != nil {
		return 0, &ConnectionError{Endpoint: endpoint, Op: "write", Err: err}
	}

	buf := make([]byte, maxResponseSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, &ConnectionError{Endpoint: endpoint, Op: "read", Err: err}
	}

	return parseReading(endpoint, buf[:n])
}

func parseReading(endpoint string, data []byte) (float64, error) {
	if len(data) == 0 {
		return 0, &ProtocolError{Endpoint: endpoint, Err: ErrEmptyResponse}
	}
	if !utf8.Valid(data) {
		return 0, &ProtocolError{Endpoint: endpoint, Err: errors.New("response is not valid UTF-8")}
	}

	text := strings.TrimSpace(string(data))
	if !decimalPattern.MatchString(text) {
		return 0, &ProtocolError{Endpoint: endpoint, Response: text, Err: ErrNotDecimal}
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &ProtocolError{Endpoint: endpoint, Response: text, Err: err}
	}

	return value, nil
}

// Request performs a single exchange with a default Client.
func Request(ctx context.Context, endpoint string, command []byte) (float64, error) {
	client, err := NewClient(Options{})
	if err != nil {
		return 0, err
	}
	return client.Request(ctx, endpoint, command)
}
