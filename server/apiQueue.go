package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cyclopcam/mlqueue/pkg/balancedq"
	"github.com/cyclopcam/mlqueue/pkg/frame"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// Longest time that a retrieve request may wait for frames
const maxRetrieveTimeout = 5 * time.Minute

type queueStatusJSON struct {
	State balancedq.State `json:"state"`
	Stats balancedq.Stats `json:"stats"`
}

type frameJSON struct {
	Time   string `json:"time"` // ISO-8601 UTC
	Width  int    `json:"width"`
	Height int    `json:"height"`
	JPEG   []byte `json:"jpeg"` // base64 in JSON
}

// If nested is false, items is a flat list of frames. Otherwise it is a list of batches.
type retrieveJSON struct {
	Nested bool `json:"nested"`
	Items  any  `json:"items"`
}

func (s *Server) getQueue(params httprouter.Params) *FrameQueue {
	id := params.ByName("id")
	q := s.queues[id]
	if q == nil {
		www.Panic(http.StatusNotFound, fmt.Sprintf("Queue '%v' not found", id))
	}
	return q
}

func (s *Server) httpQueueList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	states := []balancedq.State{}
	for _, name := range s.queueNames {
		states = append(states, s.queues[name].State())
	}
	www.SendJSON(w, states)
}

func (s *Server) httpQueueStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	q := s.getQueue(params)
	www.SendJSON(w, &queueStatusJSON{
		State: q.State(),
		Stats: q.Stats(),
	})
}

// The body is a single JPEG
func (s *Server) httpQueueInsert(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	q := s.getQueue(params)
	body := www.ReadLimited(w, r, s.config.MaxFrameBytes)
	f := frame.Decode(body)
	if f.IsCorrupted() {
		www.PanicBadRequestf("Frame is corrupted")
	}
	res := q.Insert(f)
	www.SendJSON(w, &res)
}

// Query parameters:
//
//	count      Number of batches (default 1). More than one produces a list of batches.
//	autoBatch  If 0 or false, every batch is a single frame (default true)
//	wait       If 1 or true, block until frames arrive (default false)
//	timeout    Milliseconds to wait, when wait is true (default: until the client disconnects)
func (s *Server) httpQueueRetrieve(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	q := s.getQueue(params)
	opts := balancedq.RetrieveOptions{
		Count:       www.QueryInt(r, "count"),
		NoAutoBatch: !queryBool(r, "autoBatch", true),
		Wait:        queryBool(r, "wait", false),
	}
	if opts.Count < 0 {
		www.PanicBadRequestf("count may not be negative")
	}

	ctx := r.Context()
	if timeoutMS := www.QueryInt(r, "timeout"); timeoutMS > 0 {
		timeout := min(time.Duration(timeoutMS)*time.Millisecond, maxRetrieveTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := q.Retrieve(ctx, opts)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		www.Check(err)
	}

	out := retrieveJSON{Nested: res.Nested}
	if res.Nested {
		batches := [][]frameJSON{}
		for _, batch := range res.Batches {
			batches = append(batches, framesToJSON(batch))
		}
		out.Items = batches
	} else {
		out.Items = framesToJSON(res.Items())
	}
	www.SendJSON(w, &out)
}

func framesToJSON(frames []*frame.Frame) []frameJSON {
	out := make([]frameJSON, 0, len(frames))
	for _, f := range frames {
		jpg, err := f.JPEG(0)
		www.Check(err)
		out = append(out, frameJSON{
			Time:   f.TimeISO(),
			Width:  f.Width(),
			Height: f.Height(),
			JPEG:   jpg,
		})
	}
	return out
}

// Stream queue state as JSON text messages, every 'interval' milliseconds (default 1000)
func (s *Server) httpQueueWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	q := s.getQueue(params)
	interval := time.Duration(www.QueryInt(r, "interval")) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	interval = max(interval, 10*time.Millisecond)

	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpQueueWebSocket websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	// We never expect messages from the client, but we must read in order to notice that it has gone
	closed := make(chan struct{})
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		close(closed)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := c.WriteJSON(q.State()); err != nil {
			break
		}
		select {
		case <-closed:
			return
		case <-s.closing:
			c.Close()
			<-closed
			return
		case <-ticker.C:
		}
	}
	c.Close()
	<-closed
}

// queryBool parses 1/0/true/false, returning def when the value is missing
func queryBool(r *http.Request, key string, def bool) bool {
	v := www.QueryValue(r, key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		www.PanicBadRequestf("Invalid boolean for %v: '%v'", key, v)
	}
	return b
}
