// Package cascade provides a durable workflow execution engine for Go.
// It runs a graph of steps over a shared caller-owned context, persists
// enough state to suspend and resume execution across process restarts,
// waits on external signals (e.g., human approval), retries and times out
// individual steps, and unwinds completed work via compensating actions
// when a later step fails irrecoverably (saga pattern).
//
// Cascade is designed as a library, not a service. Import it, configure a
// store, and describe workflows with the fluent builder:
//
//	b, err := workflow.NewBuilder[OrderContext]("order-fulfillment", "Order Fulfillment")
//	if err != nil {
//	    return err
//	}
//	def, err := b.
//	    StartWith(validateStep).
//	    Then(chargeStep).
//	    Then(shipStep).
//	    WithTimeout(time.Hour).
//	    Build()
//
// # Architecture
//
// Each subsystem lives in its own package: workflow (steps, graph,
// builder, instance state), engine (the execution loop), store (the
// persistence contract plus memory/redis/bun backends), signal (external
// signal delivery and deadline sweeping), middleware (per-step
// cross-cutting concerns), backoff (retry delay strategies), and codec
// (context serialization).
//
// All engine-minted IDs use TypeID: type-prefixed, K-sortable,
// UUIDv7-based, compile-time safe identifiers.
package cascade
