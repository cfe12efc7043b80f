// Package server emulates ammeters that answer current readings over TCP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	maxCommandSize = 1024
	connDeadline   = 5 * time.Second
)

// Emulator is a single-device responder. Every connection carries one
// exchange: the client writes a command and, when it matches Command, the
// emulator replies with Nominal plus Gaussian noise of standard deviation
// Noise. Any other command gets an empty reply.
type Emulator struct {
	Name    string
	Command string
	Nominal float64
	Noise   float64
	Port    int

	Logger *slog.Logger
}

var profiles = map[string]Emulator{
	"greenlee": {Name: "greenlee", Command: "MEASURE_GREENLEE -get_measurement", Nominal: 2, Noise: 0.1, Port: 5001},
	"entes":    {Name: "entes", Command: "MEASURE_ENTES -get_data", Nominal: 5, Noise: 0.3, Port: 5002},
	"circutor": {Name: "circutor", Command: "MEASURE_CIRCUTOR -get_measurement -current", Nominal: 10, Noise: 0.5, Port: 5003},
}

// Profile returns the built-in emulator for a known ammeter type.
func Profile(name string) (Emulator, bool) {
	e, ok := profiles[name]
	return e, ok
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (e *Emulator) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return e.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// waits for in-flight exchanges.
func (e *Emulator) Serve(ctx context.Context, ln net.Listener) error {
	logger := e.logger().With("ammeter", e.Name, "address", ln.Addr().String())
	logger.Info("Ammeter emulator listening")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Ammeter emulator stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			e.handle(conn, logger)
		}()
	}
}

func (e *Emulator) handle(conn net.Conn, logger *slog.Logger) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connDeadline))

	buf := make([]byte, maxCommandSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Failed to read command", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	command := string(bytes.TrimSpace(buf[:n]))
	if command != e.Command {
		logger.Debug("Unknown command", "command", command)
		return
	}

	reading := e.Reading()
	if _, err := conn.Write([]byte(strconv.FormatFloat(reading, 'f', 6, 64))); err != nil {
		logger.Warn("Failed to send reading", "error", err)
		return
	}
	logger.Debug("Sent current measurement", "value", reading)
}

// Reading draws one simulated current value.
func (e *Emulator) Reading() float64 {
	return e.Nominal + e.Noise*rand.NormFloat64()
}

func (e *Emulator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// Bind pairs an emulator with the address it serves on.
type Bind struct {
	Emulator *Emulator
	Addr     string
}

// Run serves every bind until ctx is cancelled or one of them fails.
func Run(ctx context.Context, binds []Bind) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range binds {
		g.Go(func() error {
			return b.Emulator.ListenAndServe(gctx, b.Addr)
		})
	}
	return g.Wait()
}
