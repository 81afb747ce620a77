// Package engine runs workflow definitions to completion across
// process restarts. It persists a full instance snapshot at every step
// boundary, retries failed steps per their policy, unwinds completed
// work through saga compensation when a step fails for good, and parks
// instances that wait on external signals.
//
// Typical wiring:
//
//	reg := engine.NewRegistry()
//	if err := engine.Register(reg, orderDef); err != nil { ... }
//
//	eng := engine.New(memory.New(), reg,
//		engine.WithMiddleware(middleware.Logging(logger), middleware.Metrics()),
//	)
//
//	res, err := engine.Execute(ctx, eng, orderDef, &Order{ID: "o-17"})
//	if res.Suspended() {
//		// later, from any process that registered the same definition:
//		res, err = eng.Resume(ctx, res.InstanceID, "manager-approval", decisionJSON)
//	}
//
// Execute and Register are package functions because Go methods cannot
// introduce type parameters; the registry stores type-erased closures
// that carry the concrete context type internally.
package engine
