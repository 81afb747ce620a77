package workflow

import (
	"github.com/xraph/cascade"
)

// NodeKind discriminates the node variants of a workflow graph.
type NodeKind string

const (
	KindStep        NodeKind = "step"
	KindSignalWait  NodeKind = "signal_wait"
	KindConditional NodeKind = "conditional"
	KindParallel    NodeKind = "parallel"
)

// Node is a position in the workflow graph. Nodes are created and linked
// by the Builder; after Build returns, the graph is sealed and any
// further SetNext is rejected. Node ids are assigned deterministically
// from build order, so the same definition code yields the same ids
// across process restarts. That is what makes persisted CurrentNodeID
// usable for resumption.
type Node[T any] interface {
	// ID returns the stable node identifier recorded in instance state.
	ID() string

	// Kind returns the node variant.
	Kind() NodeKind

	// SetNext links the node's successor. It fails once the graph is
	// sealed by Build.
	SetNext(n Node[T]) error

	// Successors returns the nodes reachable in one hop. Conditional
	// nodes return both branches; use Choose to pick at runtime.
	Successors() []Node[T]

	seal()
}

func errSealed(nodeID string) error {
	return cascade.NewConfigError(cascade.CodeInvalidBuilderState,
		"node %s: graph is sealed, relinking after Build is not allowed", nodeID)
}

// ──────────────────────────────────────────────────
// StepNode
// ──────────────────────────────────────────────────

// StepNode executes a single step and advances to its successor.
type StepNode[T any] struct {
	id     string
	step   Step[T]
	next   Node[T]
	sealed bool
}

func (n *StepNode[T]) ID() string     { return n.id }
func (n *StepNode[T]) Kind() NodeKind { return KindStep }
func (n *StepNode[T]) Step() Step[T]  { return n.step }

func (n *StepNode[T]) SetNext(next Node[T]) error {
	if n.sealed {
		return errSealed(n.id)
	}
	n.next = next
	return nil
}

// Next returns the node's successor, nil at the end of the graph.
func (n *StepNode[T]) Next() Node[T] { return n.next }

func (n *StepNode[T]) Successors() []Node[T] {
	if n.next == nil {
		return nil
	}
	return []Node[T]{n.next}
}

func (n *StepNode[T]) seal() { n.sealed = true }

// ──────────────────────────────────────────────────
// SignalWaitNode
// ──────────────────────────────────────────────────

// SignalWaitNode parks the workflow until its signal arrives. The engine
// persists the instance here and hands the signal payload to the step's
// ProcessSignal on resumption.
type SignalWaitNode[T any] struct {
	id     string
	step   SignalStep[T]
	next   Node[T]
	sealed bool
}

func (n *SignalWaitNode[T]) ID() string          { return n.id }
func (n *SignalWaitNode[T]) Kind() NodeKind      { return KindSignalWait }
func (n *SignalWaitNode[T]) Step() SignalStep[T] { return n.step }

func (n *SignalWaitNode[T]) SetNext(next Node[T]) error {
	if n.sealed {
		return errSealed(n.id)
	}
	n.next = next
	return nil
}

// Next returns the node that runs after the signal is processed.
func (n *SignalWaitNode[T]) Next() Node[T] { return n.next }

func (n *SignalWaitNode[T]) Successors() []Node[T] {
	if n.next == nil {
		return nil
	}
	return []Node[T]{n.next}
}

func (n *SignalWaitNode[T]) seal() { n.sealed = true }

// ──────────────────────────────────────────────────
// ConditionalNode
// ──────────────────────────────────────────────────

// ConditionalNode routes to one of two branches based on a predicate
// over the shared context. The predicate runs at advancement time, so it
// sees every mutation made by earlier steps.
type ConditionalNode[T any] struct {
	id      string
	pred    func(wfctx *T) bool
	ifTrue  Node[T]
	ifFalse Node[T]
	sealed  bool
}

func (n *ConditionalNode[T]) ID() string     { return n.id }
func (n *ConditionalNode[T]) Kind() NodeKind { return KindConditional }

// Choose evaluates the predicate and returns the branch to follow.
// Either branch may be nil, which ends the workflow on that path.
func (n *ConditionalNode[T]) Choose(wfctx *T) Node[T] {
	if n.pred(wfctx) {
		return n.ifTrue
	}
	return n.ifFalse
}

// SetNext attaches the successor to both branch tails; it is not valid
// to call directly on a conditional. The builder links branch tails
// itself, so SetNext here always reports misuse.
func (n *ConditionalNode[T]) SetNext(Node[T]) error {
	return cascade.NewConfigError(cascade.CodeInvalidBuilderState,
		"node %s: conditional successors are linked through branch tails", n.id)
}

func (n *ConditionalNode[T]) Successors() []Node[T] {
	out := make([]Node[T], 0, 2)
	if n.ifTrue != nil {
		out = append(out, n.ifTrue)
	}
	if n.ifFalse != nil {
		out = append(out, n.ifFalse)
	}
	return out
}

func (n *ConditionalNode[T]) seal() { n.sealed = true }

// ──────────────────────────────────────────────────
// ParallelNode
// ──────────────────────────────────────────────────

// ParallelNode fans out its branches concurrently and joins before the
// successor runs. The join is fail-fast for the outcome but waits for
// every in-flight branch to finish, so no branch is abandoned mid-write.
type ParallelNode[T any] struct {
	id       string
	branches []Node[T]
	next     Node[T]
	sealed   bool
}

func (n *ParallelNode[T]) ID() string          { return n.id }
func (n *ParallelNode[T]) Kind() NodeKind      { return KindParallel }
func (n *ParallelNode[T]) Branches() []Node[T] { return n.branches }

func (n *ParallelNode[T]) SetNext(next Node[T]) error {
	if n.sealed {
		return errSealed(n.id)
	}
	n.next = next
	return nil
}

// Join returns the node that runs after every branch has succeeded.
func (n *ParallelNode[T]) Join() Node[T] { return n.next }

func (n *ParallelNode[T]) Successors() []Node[T] {
	if n.next == nil {
		return nil
	}
	return []Node[T]{n.next}
}

func (n *ParallelNode[T]) seal() { n.sealed = true }
