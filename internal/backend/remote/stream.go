package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/slot"
)

// Event names written by the realtime endpoint besides the change types.
const (
	eventReady   = "ready"
	eventDropped = "dropped"
)

const streamBuffer = 64

// Subscribe opens the change feed for the slots of yearID. It returns once
// the server confirmed the subscription, so no change written afterwards can
// be missed. ctx bounds the handshake only; Close ends the feed.
func (c *Client) Subscribe(ctx context.Context, kind slot.Kind, yearID string) (backend.Subscription, error) {
	current := c.state.Current()
	if current == nil {
		return nil, noSession()
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)

	query := url.Values{}
	query.Set("ano_id", yearID)
	req, err := c.newRequest(streamCtx, http.MethodGet, "/realtime/"+url.PathEscape(kind.Name), query, nil, current)
	if err != nil {
		stop()
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		stop()
		cancel()
		return nil, fmt.Errorf("remote backend: open stream: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		stop()
		cancel()
		return nil, c.checkSession(ctx, decodeError(resp))
	}

	reader := newEventReader(resp.Body)
	first, err := reader.next()
	if err == nil && first.name != eventReady {
		err = fmt.Errorf("expected %q event, got %q", eventReady, first.name)
	}
	if err != nil {
		stop()
		cancel()
		resp.Body.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("remote backend: stream handshake: %w", err)
	}
	// the handshake is over; only Close ends the stream from now on
	stop()

	sub := &subscription{
		events: make(chan slot.Change, streamBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(streamCtx, resp.Body, reader, c)
	return sub, nil
}

type subscription struct {
	events chan slot.Change
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan slot.Change {
	return s.events
}

// Close ends the stream and waits for the reader to stop.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *subscription) run(ctx context.Context, body io.ReadCloser, reader *eventReader, c *Client) {
	defer close(s.done)
	defer close(s.events)
	defer body.Close()

	for {
		event, err := reader.next()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.logger.Warn("realtime stream failed", "error", err)
			}
			return
		}

		switch event.name {
		case eventDropped:
			c.logger.Warn("realtime stream dropped by server")
			return
		case string(slot.ChangeInsert), string(slot.ChangeUpdate), string(slot.ChangeDelete):
			var change slot.Change
			if err := json.Unmarshal([]byte(event.data), &change); err != nil {
				c.logger.Warn("invalid realtime event", "event", event.name, "error", err)
				continue
			}
			select {
			case s.events <- change:
			case <-ctx.Done():
				return
			}
		}
	}
}

type sseEvent struct {
	name string
	data string
}

// eventReader parses a text/event-stream body. Comment lines are skipped.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &eventReader{scanner: scanner}
}

func (r *eventReader) next() (sseEvent, error) {
	var (
		event   sseEvent
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if !pending {
				continue
			}
			if event.name == "" {
				event.name = "message"
			}
			event.data = strings.Join(data, "\n")
			return event, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event.name = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	return sseEvent{}, io.EOF
}
