// Package sockets wraps gorilla websocket connections with serialized
// writes, keepalive pings and callback based reads.
package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("closed connection")

const writeWait = 10 * time.Second

type Connection interface {
	Send(msg Msg) error
	Done() <-chan struct{}
	io.Closer
}

type Conn struct {
	ws               *websocket.Conn
	sslSkipVerify    bool
	pingIntervalSecs int
	pingMsg          []byte
	checkOrigin      func(r *http.Request) bool
	onError          func(err error)
	onMessage        func([]byte, Connection)
	onConnected      func(Connection)

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Msg is the message structure.
type Msg struct {
	Body []byte
}

func newConn(opts ...func(*Conn)) *Conn {
	c := &Conn{done: make(chan struct{})}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial connects to a websocket server.
func Dial(ctx context.Context, url string, opts ...func(*Conn)) (*Conn, error) {
	c := newConn(opts...)
	dialer := &websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c.start(ws)
	return c, nil
}

// Upgrade turns an HTTP request into a server side connection.
func Upgrade(w http.ResponseWriter, r *http.Request, opts ...func(*Conn)) (*Conn, error) {
	c := newConn(opts...)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     c.checkOrigin,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c.start(ws)
	return c, nil
}

func (c *Conn) start(ws *websocket.Conn) {
	c.ws = ws
	if c.onConnected != nil {
		go c.onConnected(c)
	}
	go c.readLoop()
	c.setupPing()
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) Send(msg Msg) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.ws.WriteMessage(websocket.TextMessage, msg.Body)
	c.writeMu.Unlock()
	if err != nil {
		c.fail(err)
		return err
	}
	return nil
}

func (c *Conn) fail(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	if c.onError != nil {
		c.onError(err)
	}
	_ = c.Close()
}

func (c *Conn) readLoop() {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg, c)
		}
	}
}

func (c *Conn) setupPing() {
	if c.pingIntervalSecs <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second * time.Duration(c.pingIntervalSecs))
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
			}
			if len(c.pingMsg) > 0 {
				if c.Send(Msg{Body: c.pingMsg}) != nil {
					return
				}
				continue
			}
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.fail(err)
				return
			}
		}
	}()
}
