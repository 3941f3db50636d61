// Package command holds the outgoing event records queued between flushes.
package command

import "strconv"

// Command names understood by the tracker endpoint.
const (
	Navigate                = "Navigate"
	UserProfile             = "User profile"
	ProductViewed           = "Product Viewed"
	ProductAddedToCart      = "Product Added to cart"
	ProductLiked            = "Product Liked"
	ProductPurchased        = "Product Purchased"
	ProductUnliked          = "Product Unliked"
	ProductRemovedFromCart  = "Product Removed from cart"
	ProductsPurchased       = "Products Purchased"
	ProductsUnliked         = "Products Unliked"
	ProductsRemovedFromCart = "Products Removed from cart"
	ArticleViewed           = "Article Viewed"
	ArticleLiked            = "Article Liked"
	ArticleCommented        = "Article Commented"
	ArticleUnliked          = "Article Unliked"
	ArticleGoal             = "Article Goal"
	ActionStatus            = "Action Status"
)

// Action statuses reported through ActionStatus commands.
const (
	StatusExecuted = "executed"
	StatusTarget   = "target"
	StatusClose    = "close"
	StatusProduct  = "product"
	StatusArticle  = "article"
	StatusError    = "error"
	StatusDontShow = "dont-show"
)

// DocumentURNPrefix is prepended to document names in Navigate commands.
const DocumentURNPrefix = "urn:personyze:doc:"

// Command is one queued event: a positional tuple of 1 to 4 fields,
// the first of which names the event.
type Command []string

// Name returns the event name, or "" for an empty command.
func (c Command) Name() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// IsNavigate reports whether c is a Navigate command.
// Navigation is the barrier that bounds Action Status deduplication.
func (c Command) IsNavigate() bool {
	return len(c) == 2 && c[0] == Navigate
}

// Queue is an ordered list of commands awaiting the next flush.
//
// Queue is not safe for concurrent use. The engine guards it with the same
// lock that protects session state, so queuing and serialization never
// interleave.
type Queue struct {
	items []Command
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make([]Command, 0, 8)}
}

// Add appends a command built from 1 to 4 fields.
// Calls with no fields or more than 4 fields are ignored.
func (q *Queue) Add(fields ...string) {
	if len(fields) == 0 || len(fields) > 4 {
		return
	}
	cmd := make(Command, len(fields))
	copy(cmd, fields)
	q.items = append(q.items, cmd)
}

// AddActionStatus queues an Action Status report for actionID unless an
// equivalent report is already queued since the most recent Navigate.
//
// A queued report is equivalent when it carries the same status, or when the
// new status is "executed" and any status for that action is already queued.
// Returns false when the report was suppressed as a duplicate.
func (q *Queue) AddActionStatus(actionID int, status, arg string) bool {
	id := strconv.Itoa(actionID)
	for i := len(q.items) - 1; i >= 0; i-- {
		cmd := q.items[i]
		if cmd.IsNavigate() {
			break
		}
		if len(cmd) == 4 && cmd[0] == ActionStatus && cmd[1] == id {
			if status == StatusExecuted || status == cmd[2] {
				return false
			}
		}
	}
	q.Add(ActionStatus, id, status, arg)
	return true
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	return len(q.items)
}

// Snapshot returns a copy of the queued commands without draining them.
func (q *Queue) Snapshot() []Command {
	out := make([]Command, len(q.items))
	for i, cmd := range q.items {
		out[i] = append(Command(nil), cmd...)
	}
	return out
}

// Drain removes and returns all queued commands in insertion order.
func (q *Queue) Drain() []Command {
	out := q.items
	q.items = make([]Command, 0, 8)
	return out
}
