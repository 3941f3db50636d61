package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Call is one request received by a FakeGateway.
type Call struct {
	Method string
	Path   string
	Body   string
}

// Handler produces the reply to a call.
type Handler func(call Call) (string, error)

type route struct {
	method string
	prefix string
	handle Handler
}

type image struct {
	data        []byte
	contentType string
}

// FakeGateway is a scripted REST gateway. It implements engine.Transport.
//
// Routes match by method and path prefix; the most recently added matching
// route wins. A call with no matching route fails.
//
// After HoldPosts every POST waits until Release is called, so tests can pile
// callers onto an in-flight flush. Each held POST signals Entered.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeGateway struct {
	mu     sync.Mutex
	routes []route
	calls  []Call
	images map[string]image

	Hold    chan struct{}
	Entered chan struct{}
}

// NewFakeGateway creates a gateway with no routes.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{images: map[string]image{}}
}

// HoldPosts makes POSTs block until Release. Entered receives one value per
// held POST.
func (g *FakeGateway) HoldPosts() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Hold = make(chan struct{})
	g.Entered = make(chan struct{}, 16)
}

// Release unblocks every held and future POST.
func (g *FakeGateway) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Hold != nil {
		close(g.Hold)
		g.Hold = nil
	}
}

// Handle adds a route.
func (g *FakeGateway) Handle(method, prefix string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, route{method: method, prefix: prefix, handle: h})
}

// Respond adds a route answering with bodies in order. The last body
// repeats once the others are used up.
func (g *FakeGateway) Respond(method, prefix string, bodies ...string) {
	var mu sync.Mutex
	next := 0
	g.Handle(method, prefix, func(Call) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		body := bodies[next]
		if next < len(bodies)-1 {
			next++
		}
		return body, nil
	})
}

// Fail adds a route answering with err.
func (g *FakeGateway) Fail(method, prefix string, err error) {
	g.Handle(method, prefix, func(Call) (string, error) {
		return "", err
	})
}

// AddImage serves data for href from FetchImage.
func (g *FakeGateway) AddImage(href, contentType string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images[href] = image{data: data, contentType: contentType}
}

// Calls returns every call received so far, in order.
func (g *FakeGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// CallsTo returns the calls matching method and path prefix.
func (g *FakeGateway) CallsTo(method, prefix string) []Call {
	var out []Call
	for _, c := range g.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Get implements engine.Transport.
func (g *FakeGateway) Get(ctx context.Context, path string) (string, error) {
	return g.serve(ctx, Call{Method: http.MethodGet, Path: path})
}

// Post implements engine.Transport.
func (g *FakeGateway) Post(ctx context.Context, path string, body []byte) (string, error) {
	g.mu.Lock()
	hold, entered := g.Hold, g.Entered
	g.mu.Unlock()

	if hold != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.serve(ctx, Call{Method: http.MethodPost, Path: path, Body: string(body)})
}

// Delete implements engine.Transport.
func (g *FakeGateway) Delete(ctx context.Context, path string) (string, error) {
	return g.serve(ctx, Call{Method: http.MethodDelete, Path: path})
}

// FetchImage implements notification.ImageFetcher.
func (g *FakeGateway) FetchImage(_ context.Context, href string) ([]byte, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Method: "IMAGE", Path: href})
	img, ok := g.images[href]
	if !ok {
		return nil, "", fmt.Errorf("image %q: not found", href)
	}
	return img.data, img.contentType, nil
}

func (g *FakeGateway) serve(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	g.calls = append(g.calls, call)
	var h Handler
	for i := len(g.routes) - 1; i >= 0; i-- {
		r := g.routes[i]
		if r.method == call.Method && strings.HasPrefix(call.Path, r.prefix) {
			h = r.handle
			break
		}
	}
	g.mu.Unlock()

	if h == nil {
		return "", errors.New("fake gateway: no route for " + call.Method + " " + call.Path)
	}
	return h(call)
}
