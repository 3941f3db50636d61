package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeGateway_RoutesAndSequence(t *testing.T) {
	g := NewFakeGateway()
	g.Respond("GET", "conditions/", `[]`)
	g.Respond("POST", "tracker-v1", "first", "second")
	g.Fail("DELETE", "current_notification/", errors.New("boom"))
	ctx := context.Background()

	body, err := g.Get(ctx, "conditions/columns/id,name/where/id:1")
	require.NoError(t, err)
	assert.Equal(t, `[]`, body)

	for _, want := range []string{"first", "second", "second"} {
		body, err = g.Post(ctx, "tracker-v1", []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, want, body)
	}

	_, err = g.Delete(ctx, "current_notification/where/x")
	assert.EqualError(t, err, "boom")

	_, err = g.Get(ctx, "actions/x")
	assert.ErrorContains(t, err, "no route")

	assert.Len(t, g.Calls(), 6)
	posts := g.CallsTo("POST", "tracker-v1")
	require.Len(t, posts, 3)
	assert.Equal(t, `{}`, posts[0].Body)
}

func TestFakeGateway_LatestRouteWins(t *testing.T) {
	g := NewFakeGateway()
	g.Respond("GET", "a", "old")
	g.Respond("GET", "a", "new")

	body, err := g.Get(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "new", body)
}

func TestFakeGateway_HoldPosts(t *testing.T) {
	g := NewFakeGateway()
	g.Respond("POST", "tracker-v1", "ok")
	g.HoldPosts()

	done := make(chan string)
	go func() {
		body, _ := g.Post(context.Background(), "tracker-v1", nil)
		done <- body
	}()

	select {
	case <-g.Entered:
	case <-time.After(time.Second):
		t.Fatal("post never entered")
	}
	select {
	case <-done:
		t.Fatal("post returned while held")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release()
	assert.Equal(t, "ok", <-done)
}

func TestFakeGateway_Images(t *testing.T) {
	g := NewFakeGateway()
	g.AddImage("https://img/1.png", "image/png", []byte{1, 2})

	data, ct, err := g.FetchImage(context.Background(), "https://img/1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
	assert.Equal(t, "image/png", ct)

	_, _, err = g.FetchImage(context.Background(), "https://img/missing")
	assert.Error(t, err)
}
