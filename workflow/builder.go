package workflow

import (
	"fmt"
	"regexp"
	"time"

	"github.com/xraph/cascade"
)

// workflowIDPattern bounds workflow ids: no whitespace, 64 chars max,
// leading alphanumeric. Ids end up in store keys and log lines.
var workflowIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Definition is an immutable, validated workflow graph. Built once at
// startup by a Builder and shared by every instance; nothing in it
// changes at execution time.
type Definition[T any] struct {
	workflowID  string
	displayName string
	version     int
	timeout     time.Duration
	contextType string

	root  Node[T]
	nodes map[string]Node[T]
	steps map[string]Step[T]
}

// WorkflowID returns the stable identifier instances are stored under.
func (d *Definition[T]) WorkflowID() string { return d.workflowID }

// DisplayName returns the human-readable name used in logs.
func (d *Definition[T]) DisplayName() string { return d.displayName }

// Version returns the definition version recorded on each instance.
func (d *Definition[T]) Version() int { return d.version }

// WorkflowTimeout returns the whole-run deadline, zero if unbounded.
func (d *Definition[T]) WorkflowTimeout() time.Duration { return d.timeout }

// ContextType names the registered context type instances decode into.
func (d *Definition[T]) ContextType() string { return d.contextType }

// Root returns the entry node of the graph.
func (d *Definition[T]) Root() Node[T] { return d.root }

// NodeByID resolves a persisted node id back to its graph node.
func (d *Definition[T]) NodeByID(nodeID string) (Node[T], bool) {
	n, ok := d.nodes[nodeID]
	return n, ok
}

// StepByName resolves a trace's step name back to its step, used by the
// compensation walk.
func (d *Definition[T]) StepByName(name string) (Step[T], bool) {
	s, ok := d.steps[name]
	return s, ok
}

// ──────────────────────────────────────────────────
// Builder
// ──────────────────────────────────────────────────

// Builder assembles a Definition. Methods chain; the first error sticks
// and surfaces from Build. After Build succeeds the graph is sealed and
// the builder must not be reused.
type Builder[T any] struct {
	def   *Definition[T]
	tails []Node[T]
	seq   int
	err   error
	built bool
}

// NewBuilder starts a definition for the given workflow id. The id is
// validated eagerly since everything downstream keys off it.
func NewBuilder[T any](workflowID, displayName string) (*Builder[T], error) {
	if !workflowIDPattern.MatchString(workflowID) {
		return nil, cascade.NewConfigError(cascade.CodeInvalidConfiguration,
			"workflow id %q: must match %s", workflowID, workflowIDPattern.String())
	}
	if displayName == "" {
		displayName = workflowID
	}
	return &Builder[T]{
		def: &Definition[T]{
			workflowID:  workflowID,
			displayName: displayName,
			version:     1,
		},
	}, nil
}

func (b *Builder[T]) fail(err error) *Builder[T] {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder[T]) nextID(name string) string {
	b.seq++
	return fmt.Sprintf("%02d:%s", b.seq, name)
}

// attach links node after the current tails and makes it the sole tail.
func (b *Builder[T]) attach(node Node[T]) *Builder[T] {
	if b.err != nil {
		return b
	}
	if b.def.root == nil {
		b.def.root = node
		b.tails = []Node[T]{node}
		return b
	}
	if len(b.tails) == 0 {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidBuilderState,
			"workflow %s: no open path to attach %s to", b.def.workflowID, node.ID()))
	}
	for _, tail := range b.tails {
		if err := tail.SetNext(node); err != nil {
			return b.fail(err)
		}
	}
	b.tails = []Node[T]{node}
	return b
}

// StartWith sets the first step of the workflow.
func (b *Builder[T]) StartWith(step Step[T]) *Builder[T] {
	if b.err != nil {
		return b
	}
	if step == nil {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidStep,
			"workflow %s: StartWith called with nil step", b.def.workflowID))
	}
	if b.def.root != nil {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidBuilderState,
			"workflow %s: StartWith called twice", b.def.workflowID))
	}
	return b.attach(&StepNode[T]{id: b.nextID(step.Name()), step: step})
}

// Then appends a step after the current tail.
func (b *Builder[T]) Then(step Step[T]) *Builder[T] {
	if b.err != nil {
		return b
	}
	if step == nil {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidStep,
			"workflow %s: Then called with nil step", b.def.workflowID))
	}
	return b.attach(&StepNode[T]{id: b.nextID(step.Name()), step: step})
}

// WaitFor appends a signal gate: the workflow suspends here until the
// step's signal is delivered.
func (b *Builder[T]) WaitFor(step SignalStep[T]) *Builder[T] {
	if b.err != nil {
		return b
	}
	if step == nil {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidStep,
			"workflow %s: WaitFor called with nil step", b.def.workflowID))
	}
	return b.attach(&SignalWaitNode[T]{id: b.nextID(step.Name()), step: step})
}

// Branch appends a two-way conditional. The predicate is evaluated at
// advancement time against the mutated context. Either branch step may
// be nil, which ends the workflow on that path; subsequent Then calls
// attach after both non-nil branches.
func (b *Builder[T]) Branch(pred func(wfctx *T) bool, ifTrue, ifFalse Step[T]) *Builder[T] {
	if b.err != nil {
		return b
	}
	if pred == nil {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidStep,
			"workflow %s: Branch called with nil predicate", b.def.workflowID))
	}
	cond := &ConditionalNode[T]{id: b.nextID("branch"), pred: pred}
	var tails []Node[T]
	if ifTrue != nil {
		n := &StepNode[T]{id: b.nextID(ifTrue.Name()), step: ifTrue}
		cond.ifTrue = n
		tails = append(tails, n)
	}
	if ifFalse != nil {
		n := &StepNode[T]{id: b.nextID(ifFalse.Name()), step: ifFalse}
		cond.ifFalse = n
		tails = append(tails, n)
	}
	if b.def.root == nil {
		b.def.root = cond
	} else {
		if len(b.tails) == 0 {
			return b.fail(cascade.NewConfigError(cascade.CodeInvalidBuilderState,
				"workflow %s: no open path to attach %s to", b.def.workflowID, cond.id))
		}
		for _, tail := range b.tails {
			if err := tail.SetNext(cond); err != nil {
				return b.fail(err)
			}
		}
	}
	b.tails = tails
	return b
}

// Split fans the given steps out concurrently; the next node runs only
// after every branch succeeds. Signal gates are not allowed inside a
// split.
func (b *Builder[T]) Split(steps ...Step[T]) *Builder[T] {
	if b.err != nil {
		return b
	}
	if len(steps) == 0 {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidStep,
			"workflow %s: Split called with no steps", b.def.workflowID))
	}
	par := &ParallelNode[T]{id: b.nextID("parallel")}
	for _, step := range steps {
		if step == nil {
			return b.fail(cascade.NewConfigError(cascade.CodeInvalidStep,
				"workflow %s: Split called with nil step", b.def.workflowID))
		}
		par.branches = append(par.branches, &StepNode[T]{id: b.nextID(step.Name()), step: step})
	}
	return b.attach(par)
}

// WithTimeout bounds the whole run. Out-of-range values are rejected so
// a typo (milliseconds instead of hours) fails at build time rather
// than silently expiring every instance.
func (b *Builder[T]) WithTimeout(d time.Duration) *Builder[T] {
	if b.err != nil {
		return b
	}
	cfg := cascade.DefaultConfig()
	if d < cfg.MinTimeout || d > cfg.MaxTimeout {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidConfiguration,
			"workflow %s: timeout %s outside [%s, %s]", b.def.workflowID, d, cfg.MinTimeout, cfg.MaxTimeout))
	}
	b.def.timeout = d
	return b
}

// WithVersion sets the definition version; instances record it so the
// right definition is used on resumption.
func (b *Builder[T]) WithVersion(v int) *Builder[T] {
	if b.err != nil {
		return b
	}
	if v < 1 {
		return b.fail(cascade.NewConfigError(cascade.CodeInvalidConfiguration,
			"workflow %s: version %d must be >= 1", b.def.workflowID, v))
	}
	b.def.version = v
	return b
}

// ForContext overrides the context type name recorded on instances.
// Defaults to the workflow id.
func (b *Builder[T]) ForContext(name string) *Builder[T] {
	if b.err != nil {
		return b
	}
	b.def.contextType = name
	return b
}

// Build validates and seals the graph. The returned definition is
// immutable; relinking any of its nodes fails.
func (b *Builder[T]) Build() (*Definition[T], error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, cascade.NewConfigError(cascade.CodeInvalidBuilderState,
			"workflow %s: Build called twice", b.def.workflowID)
	}
	if b.def.root == nil {
		return nil, cascade.NewConfigError(cascade.CodeMissingRequired,
			"workflow %s: no steps; call StartWith first", b.def.workflowID)
	}

	b.def.nodes = make(map[string]Node[T])
	b.def.steps = make(map[string]Step[T])
	if err := b.index(b.def.root, make(map[string]int)); err != nil {
		return nil, err
	}
	for _, n := range b.def.nodes {
		n.seal()
	}
	if b.def.contextType == "" {
		b.def.contextType = b.def.workflowID
	}
	b.built = true
	return b.def, nil
}

const (
	visitInProgress = 1
	visitDone       = 2
)

// index walks the graph depth-first, collecting nodes and steps and
// rejecting cycles and duplicate step names. Step names must be unique
// because the compensation walk resolves traces by step name.
func (b *Builder[T]) index(node Node[T], visited map[string]int) error {
	switch visited[node.ID()] {
	case visitInProgress:
		return cascade.NewConfigError(cascade.CodeCircularDependency,
			"workflow %s: cycle through node %s", b.def.workflowID, node.ID())
	case visitDone:
		return nil
	}
	visited[node.ID()] = visitInProgress
	b.def.nodes[node.ID()] = node

	record := func(step Step[T]) error {
		if _, dup := b.def.steps[step.Name()]; dup {
			return cascade.NewConfigError(cascade.CodeInvalidStep,
				"workflow %s: duplicate step name %s", b.def.workflowID, step.Name())
		}
		b.def.steps[step.Name()] = step
		return nil
	}

	switch n := node.(type) {
	case *StepNode[T]:
		if err := record(n.step); err != nil {
			return err
		}
	case *SignalWaitNode[T]:
		if err := record(n.step); err != nil {
			return err
		}
	case *ParallelNode[T]:
		for _, branch := range n.branches {
			if err := b.index(branch, visited); err != nil {
				return err
			}
		}
	}

	for _, next := range node.Successors() {
		if err := b.index(next, visited); err != nil {
			return err
		}
	}
	visited[node.ID()] = visitDone
	return nil
}
