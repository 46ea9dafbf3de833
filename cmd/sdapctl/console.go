package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/danmuck/sdapctl/internal/pointer"
	"github.com/danmuck/sdapctl/internal/room"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  set <pointer> <value>  edit a value; value is JSON or plain text
  get [pointer]          print the document or one value
  join <name>            attach to an existing room
  create [name]          create a room from the current document
  leave                  detach from the room, keep the local copy
  history                list recent changes
  status                 show the room session
  quit                   exit`

// console is the line-oriented UI over one engine.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	engine *room.Engine
	schema any
}

func newConsole(out io.Writer, schema any) *console {
	return &console{out: out, schema: schema}
}

func (c *console) attach(engine *room.Engine) {
	c.engine = engine
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) render(doc any, _ any) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		c.printf("render failed: %v\n", err)
		return
	}
	c.printf("%s\n", body)
}

func (c *console) report(text string) {
	c.printf("server rejected request:\n%s\n", text)
}

// loop executes lines from in until quit, EOF or ctx ends.
func (c *console) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.execute(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			c.printf("error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (c *console) execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "set":
		ptr, raw, ok := strings.Cut(rest, " ")
		if !ok {
			return fmt.Errorf("usage: set <pointer> <value>")
		}
		path, err := pointer.PointerToPath(pointer.Pointer(ptr))
		if err != nil {
			return err
		}
		return c.engine.OnFieldEdited(path, strings.TrimSpace(raw))
	case "get":
		ptr := pointer.Root
		if rest != "" {
			ptr = pointer.Pointer(rest)
		}
		path, err := pointer.PointerToPath(ptr)
		if err != nil {
			return err
		}
		v, err := c.engine.Get(path)
		if err != nil {
			return err
		}
		if s, ok := v.(string); ok {
			c.printf("%s\n", s)
			return nil
		}
		c.render(v, nil)
		return nil
	case "join":
		if rest == "" {
			return fmt.Errorf("usage: join <name>")
		}
		return c.engine.Join(rest)
	case "create":
		return c.engine.Create(rest, c.schema, nil)
	case "leave":
		return c.engine.Leave()
	case "history":
		for _, change := range c.engine.History() {
			c.printf("%-6s %-24s %s\n", change.Origin, change.ChangeID, change.ChangeTime)
		}
		return nil
	case "status":
		s := c.engine.Session()
		id, at := c.engine.LastChange()
		c.printf("room=%q state=%s subscribed=%t last_change=%s@%s user=%q\n",
			s.Name, s.State, s.Subscribed, id, at, c.engine.Username())
		return nil
	case "help", "?":
		c.printf("%s\n", helpText)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}
