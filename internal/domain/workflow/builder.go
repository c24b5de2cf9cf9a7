package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a guarded edge may be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects edges and freezes them into a Table
type StateMachineBuilder interface {
	// Configure returns the edge set leaving state. Terminal states panic.
	Configure(state State) StateConfiguration

	// Table freezes the edges configured so far
	Table() *Table

	// Build is Table().Machine(initialState)
	Build(initialState State) StateMachine
}

// StateConfiguration adds edges leaving one state
type StateConfiguration interface {
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf adds an edge taken only when guard passes. Edges for the same
	// trigger are tried in the order they were added.
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type edgeKey struct {
	from    State
	trigger Trigger
}

type edge struct {
	to    State
	guard GuardFunc
}

// Edge describes one configured transition
type Edge struct {
	From    State
	Trigger Trigger
	To      State
	Guarded bool
}

type builder struct {
	edges   map[edgeKey][]edge
	configs map[State]*stateEdges
}

type stateEdges struct {
	from State
	b    *builder
}

func NewBuilder() StateMachineBuilder {
	return &builder{
		edges:   make(map[edgeKey][]edge),
		configs: make(map[State]*stateEdges),
	}
}

func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state %s cannot have outgoing transitions", state))
	}
	if c, ok := b.configs[state]; ok {
		return c
	}
	c := &stateEdges{from: state, b: b}
	b.configs[state] = c
	return c
}

func (c *stateEdges) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateEdges) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	k := edgeKey{from: c.from, trigger: trigger}
	c.b.edges[k] = append(c.b.edges[k], edge{to: toState, guard: guard})
	return c
}

func (b *builder) Table() *Table {
	frozen := make(map[edgeKey][]edge, len(b.edges))
	for k, es := range b.edges {
		frozen[k] = append([]edge(nil), es...)
	}
	return &Table{edges: frozen}
}

func (b *builder) Build(initialState State) StateMachine {
	return b.Table().Machine(initialState)
}

// Table is an immutable transition table. It is safe to share between goroutines;
// each Machine it creates tracks its own current state.
type Table struct {
	edges map[edgeKey][]edge
}

// Machine returns a machine positioned at initialState
func (t *Table) Machine(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}
	return &machine{table: t, current: initialState}
}

// Edges lists every transition ordered by source state then trigger
func (t *Table) Edges() []Edge {
	var out []Edge
	for k, es := range t.edges {
		for _, e := range es {
			out = append(out, Edge{From: k.from, Trigger: k.trigger, To: e.to, Guarded: e.guard != nil})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Trigger < out[j].Trigger
	})
	return out
}

func (t *Table) target(ctx context.Context, from State, trigger Trigger) (State, bool) {
	for _, e := range t.edges[edgeKey{from: from, trigger: trigger}] {
		if e.guard == nil || e.guard(ctx) {
			return e.to, true
		}
	}
	return "", false
}

type machine struct {
	table   *Table
	current State
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(ctx context.Context, trigger Trigger) bool {
	_, ok := m.table.target(ctx, m.current, trigger)
	return ok
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	if len(m.table.edges[edgeKey{from: m.current, trigger: trigger}]) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}
	to, ok := m.table.target(ctx, m.current, trigger)
	if !ok {
		return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
	}
	m.current = to
	return nil
}

func (m *machine) PermittedTriggers() []Trigger {
	triggers := []Trigger{}
	for k := range m.table.edges {
		if k.from == m.current {
			triggers = append(triggers, k.trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
