package zdb

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/zdbg/zdb/pkg/overlay"
	"github.com/zdbg/zdb/pkg/wire"
	"github.com/zdbg/zdb/service"
)

// Client is a zdb server client.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	rdr  *bufio.Reader
}

var _ service.Client = (*Client)(nil)

// ServerError is a response other than "success" to a request that
// changes the breakpoint state.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return e.Msg
}

// NewClient creates a new Client connected to the server at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClientFromConn(conn), nil
}

// NewClientFromConn creates a new Client using the given connection.
func NewClientFromConn(conn net.Conn) *Client {
	return &Client{conn: conn, rdr: bufio.NewReader(conn)}
}

// Call implements service.Client.
func (c *Client) Call(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := wire.WriteRequest(c.conn, cmd); err != nil {
		return "", err
	}
	return wire.ReadResponse(c.rdr)
}

// Notify implements service.Client.
func (c *Client) Notify(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.WriteRequest(c.conn, msg)
}

func (c *Client) callSuccess(cmd string) error {
	resp, err := c.Call(cmd)
	if err != nil {
		return err
	}
	if resp != respSuccess {
		return &ServerError{resp}
	}
	return nil
}

// CreateBreakpoint implements service.Client.
func (c *Client) CreateBreakpoint(fn string, addr uint32) error {
	return c.callSuccess(fmt.Sprintf("break %s %#x", fn, addr))
}

// CreateOverlayBreakpoint implements service.Client.
func (c *Client) CreateOverlayBreakpoint(fn, ovl string, offset uint32) error {
	return c.callSuccess(fmt.Sprintf("break %s ovl %s %#x", fn, ovl, offset))
}

// ListBreakpoints implements service.Client.
func (c *Client) ListBreakpoints() ([]string, error) {
	resp, err := c.Call("info")
	if err != nil {
		return nil, err
	}
	if resp == respNoBreakpoints {
		return nil, nil
	}
	return strings.Split(resp, "\n"), nil
}

// ClearBreakpointByName implements service.Client.
func (c *Client) ClearBreakpointByName(fn string) error {
	return c.callSuccess("delete " + fn)
}

// ClearAllBreakpoints implements service.Client.
func (c *Client) ClearAllBreakpoints() error {
	return c.callSuccess("clear")
}

// SetTableLocations implements service.Client.
func (c *Client) SetTableLocations(bases [overlay.NumCategories]uint32) error {
	return c.callSuccess(fmt.Sprintf("tablelocs %#x %#x %#x %#x", bases[0], bases[1], bases[2], bases[3]))
}

// Continue implements service.Client.
func (c *Client) Continue() error {
	return c.callSuccess("continue")
}

// Disconnect implements service.Client.
func (c *Client) Disconnect() error {
	return c.conn.Close()
}
