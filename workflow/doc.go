// Package workflow defines the building blocks of a durable workflow:
// steps, the graph nodes that arrange them, the builder that assembles
// and validates a Definition, and the persisted instance state the
// engine checkpoints between steps.
//
// A Definition is built once at startup and shared by every instance:
//
//	b, err := workflow.NewBuilder[Order]("order-fulfillment", "Order Fulfillment")
//	// handle err
//	def, err := b.
//		StartWith(validate).
//		Then(charge).
//		WaitFor(workflow.NewApproval[Order]("manager-approval")).
//		Then(ship).
//		Build()
//
// Execution state lives in InstanceState, not in the definition, so one
// definition serves any number of concurrent instances.
package workflow
