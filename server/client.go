package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"

	"dispatch/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second

	pingResolution = time.Millisecond * 200
	// Number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4

	readDeadline  = time.Second
	writeDeadline = time.Second
)

var upgrader = websocket.Upgrader{}

// ErrPongDeadlineExceeded signals a silent peer.
var ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")

// client publishes engine events unidirectionally to one web client. Every
// received event is written in order; backpressure policy lives in the hub,
// not here.
type client struct {
	events  <-chan event.Event
	ws      *websock
	rootCtx context.Context
}

// newClient upgrades the request and wraps the socket.
func newClient(events <-chan event.Event, w http.ResponseWriter, r *http.Request) (*client, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	return &client{
		events:  events,
		ws:      newWebsock(ws),
		rootCtx: r.Context(),
	}, nil
}

// Sync runs the read, liveness and publish pumps until the peer disconnects
// or an unexpected error occurs. Returns nil on clean disconnect.
func (cli *client) Sync() error {
	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error { return cli.readMessages(groupCtx) })
	group.Go(func() error { return cli.pingPong(groupCtx) })
	group.Go(func() error { return cli.publish(groupCtx) })
	err := group.Wait()
	if isClosure(err) {
		return nil
	}
	return err
}

// pingPong runs the liveness check. Requires readMessages running so the
// pong handler fires.
func (cli *client) pingPong(ctx context.Context) error {
	pong := make(chan struct{})
	defer close(pong)
	cli.ws.Conn().SetPongHandler(func(string) error {
		pong <- struct{}{}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *client) ping(ctx context.Context) error {
	return cli.ws.Write(ctx, func(ws *websocket.Conn) (err error) {
		if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			if isError(err) {
				err = fmt.Errorf("ping failed: %w", err)
			}
		}
		return
	})
}

// readMessages drains inbound frames; read errors are permanent and tear
// the client down.
func (cli *client) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(ctx, func(ws *websocket.Conn) (readErr error) {
			_, _, readErr = ws.ReadMessage()
			return
		})
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (cli *client) publish(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-cli.events:
			if !open {
				return nil
			}
			err := cli.ws.Write(ctx, func(ws *websocket.Conn) (writeErr error) {
				if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
					return fmt.Errorf("failed to set deadline: %w", writeErr)
				}
				if writeErr = ws.WriteJSON(ev); writeErr != nil && isError(writeErr) {
					writeErr = fmt.Errorf("publish failed: %w", writeErr)
				}
				return
			})
			if err != nil {
				return err
			}
		}
	}
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion indicates too many waiters on the socket for an op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

// websock serializes reads and writes to a websocket, which permits only
// one concurrent reader and one concurrent writer.
type websock struct {
	// Single-slot channels used as mutexes; channel semantics keep the
	// timeout path clean.
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebsock(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the raw socket; only for non-concurrent setup such as
// installing handlers.
func (sock *websock) Conn() *websocket.Conn { return sock.ws }

// Read serializes read operations on the socket.
func (sock *websock) Read(ctx context.Context, readFn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	case <-time.After(readDeadline):
		return ErrSockCongestion
	}
}

// Write serializes write operations on the socket.
func (sock *websock) Write(ctx context.Context, writeFn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
