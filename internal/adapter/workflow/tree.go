// Package workflow keeps the nested task tree shown beside the transcript
// while long-running agent tasks execute.
package workflow

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"tracechat/internal/domain"
)

// Status of a workflow node.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Node is one task in the tree.
type Node struct {
	ID          string
	Kind        string
	Title       string
	Icon        string
	Status      Status
	Depth       int
	StartedAt   time.Time
	CompletedAt time.Time
	children    []*Node
	parent      *Node
}

// Elapsed returns the node's running or final duration.
func (n *Node) Elapsed(now time.Time) time.Duration {
	if n.Status == StatusCompleted {
		return n.CompletedAt.Sub(n.StartedAt)
	}
	return now.Sub(n.StartedAt)
}

// Tree is an in-memory domain.WorkflowSink. A new node is nested under the
// most recently created node that is still running.
type Tree struct {
	mu       sync.Mutex
	roots    []*Node
	byID     map[string]*Node
	open     []*Node
	clock    domain.Clock
	entropy  *ulid.MonotonicEntropy
	logger   *slog.Logger
	onChange func()
}

// Option configures a Tree.
type Option func(*Tree)

// WithClock sets the clock used for node timestamps.
func WithClock(c domain.Clock) Option { return func(t *Tree) { t.clock = c } }

// WithOnChange registers a callback invoked after every mutation, outside
// the tree's lock.
func WithOnChange(fn func()) Option { return func(t *Tree) { t.onChange = fn } }

// New creates an empty tree.
func New(logger *slog.Logger, opts ...Option) *Tree {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tree{
		byID:    make(map[string]*Node),
		clock:   domain.SystemClock{},
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		logger:  logger,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// CreateNode adds a running node and returns its id.
func (t *Tree) CreateNode(kind, title, icon string) string {
	t.mu.Lock()
	now := t.clock.Now()
	n := &Node{
		ID:        ulid.MustNew(ulid.Timestamp(now), t.entropy).String(),
		Kind:      kind,
		Title:     title,
		Icon:      icon,
		Status:    StatusRunning,
		StartedAt: now,
	}
	if len(t.open) > 0 {
		parent := t.open[len(t.open)-1]
		n.parent = parent
		n.Depth = parent.Depth + 1
		parent.children = append(parent.children, n)
	} else {
		t.roots = append(t.roots, n)
	}
	t.byID[n.ID] = n
	t.open = append(t.open, n)
	t.mu.Unlock()

	t.logger.Debug("workflow node created", "id", n.ID, "kind", kind, "depth", n.Depth)
	t.changed()
	return n.ID
}

// CompleteNode marks id and its running descendants completed. Unknown and
// already completed ids are ignored.
func (t *Tree) CompleteNode(id string) {
	t.mu.Lock()
	n, ok := t.byID[id]
	if !ok || n.Status == StatusCompleted {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	complete(n, now)
	kept := t.open[:0]
	for _, o := range t.open {
		if o.Status == StatusRunning {
			kept = append(kept, o)
		}
	}
	t.open = kept
	t.mu.Unlock()

	t.logger.Debug("workflow node completed", "id", id, "elapsed", n.Elapsed(now))
	t.changed()
}

func complete(n *Node, now time.Time) {
	for _, c := range n.children {
		if c.Status == StatusRunning {
			complete(c, now)
		}
	}
	n.Status = StatusCompleted
	n.CompletedAt = now
}

// Get returns a copy of the node with id.
func (t *Tree) Get(id string) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Running returns the number of running nodes.
func (t *Tree) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Flatten returns copies of every node in depth-first order, ready to be
// drawn with Depth as indentation.
func (t *Tree) Flatten() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Node, 0, len(t.byID))
	var walk func([]*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			out = append(out, *n)
			walk(n.children)
		}
	}
	walk(t.roots)
	return out
}

// Reset drops every node.
func (t *Tree) Reset() {
	t.mu.Lock()
	t.roots = nil
	t.open = nil
	clear(t.byID)
	t.mu.Unlock()
	t.changed()
}

func (t *Tree) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}
