// Package clientcli is a minimal interactive client for the replicated chat
// service. Command parsing, help banners, and output formatting are
// explicitly out of scope for the core service, so this stays a thin
// read-eval-print loop over internal/rpc, not a full terminal UI.
package clientcli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/rpc"
	"github.com/replichat/replichat/internal/transport"
)

// Client wraps one RPC session to a replica and the REPL driving it.
type Client struct {
	sess   *rpc.Session
	conn   net.Conn
	out    io.Writer
	logger *zap.Logger
}

// Dial connects to addr and starts the session's event loop.
func Dial(ctx context.Context, addr string, out io.Writer, logger *zap.Logger) (*Client, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("clientcli: dial %s: %w", addr, err)
	}

	sess := rpc.NewSession(transport.NewSession(conn), logger)
	c := &Client{sess: sess, conn: conn, out: out, logger: logger.Named("clientcli")}

	sess.RegisterHandler("receive_message", c.handleReceiveMessage)
	go sess.RunEventLoop(ctx)

	resp, err := sess.Request(ctx, "register_client", nil, false)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("clientcli: register_client: %w", err)
	}
	if resp.Err != nil {
		conn.Close()
		return nil, fmt.Errorf("clientcli: register_client rejected: %s", resp.Err.Message)
	}

	return c, nil
}

func (c *Client) handleReceiveMessage(ctx context.Context, params []json.RawMessage) (any, error) {
	if len(params) != 1 {
		return nil, rpc.BadRequest("receive_message expects one argument")
	}
	var msg chat.Message
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, rpc.BadRequest(err.Error())
	}
	fmt.Fprintf(c.out, "[%s -> you] %s\n", msg.Sender, msg.Content)
	return chat.Ok{}, nil
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RunREPL reads newline-delimited commands from in until EOF or ctx is
// cancelled. Supported commands: create <user>, login <user>, list,
// send <user> <text...>, delete <user>, quit.
func (c *Client) RunREPL(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := c.dispatch(ctx, line); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (c *Client) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "create":
		if len(fields) != 2 {
			return fmt.Errorf("usage: create <user>")
		}
		return c.simpleCall(ctx, "create_user", []any{fields[1]})

	case "login":
		if len(fields) != 2 {
			return fmt.Errorf("usage: login <user>")
		}
		return c.login(ctx, fields[1])

	case "delete":
		if len(fields) != 2 {
			return fmt.Errorf("usage: delete <user>")
		}
		return c.simpleCall(ctx, "delete_user", []any{fields[1]})

	case "list":
		return c.listUsers(ctx)

	case "send":
		if len(fields) < 3 {
			return fmt.Errorf("usage: send <user> <text...>")
		}
		text := strings.Join(fields[2:], " ")
		return c.simpleCall(ctx, "send", []any{text, fields[1]})

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (c *Client) simpleCall(ctx context.Context, method string, params []any) error {
	resp, err := c.sess.Request(ctx, method, params, false)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return fmt.Errorf("%s: %s", method, resp.Err.Message)
	}
	fmt.Fprintf(c.out, "ok\n")
	return nil
}

func (c *Client) login(ctx context.Context, user string) error {
	resp, err := c.sess.Request(ctx, "login", []any{user}, false)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return fmt.Errorf("login: %s", resp.Err.Message)
	}
	var pending chat.MessageList
	if err := json.Unmarshal(resp.Result, &pending); err != nil {
		return fmt.Errorf("login: decode pending messages: %w", err)
	}
	fmt.Fprintf(c.out, "logged in as %s, %d pending message(s)\n", user, len(pending))
	for _, msg := range pending {
		fmt.Fprintf(c.out, "[%s -> you] %s\n", msg.Sender, msg.Content)
	}
	return nil
}

func (c *Client) listUsers(ctx context.Context) error {
	resp, err := c.sess.Request(ctx, "list_users", nil, false)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return fmt.Errorf("list_users: %s", resp.Err.Message)
	}
	var users []chat.User
	if err := json.Unmarshal(resp.Result, &users); err != nil {
		return fmt.Errorf("list_users: decode: %w", err)
	}
	for _, u := range users {
		fmt.Fprintln(c.out, u)
	}
	return nil
}
