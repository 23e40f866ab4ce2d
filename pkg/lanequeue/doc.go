// Package lanequeue provides per-session task scheduling with lane-based
// isolation: default serial, explicit parallel.
//
// Invariants:
// - Serial tasks in a lane never overlap with any other task in that lane.
// - Parallel tasks in a lane are bounded by MaxParallel.
// - Tasks are selected in descending priority, FIFO among equal priorities.
// - Lanes are fully independent; no ordering exists across lanes.
// - A scheduling round waits for its whole batch before selecting again;
//   freed parallel slots are not backfilled mid-round. This coarse-grained
//   batching is part of the contract, not an optimization target.
//
// Callers conventionally derive the lane id from a session, channel, or chat
// identifier ("session:abc") so that all work for one conversation serializes
// through a single lane while other conversations proceed concurrently.
//
// Usage:
//
//	queue := lanequeue.New(lanequeue.DefaultConfig())
//	defer queue.Close()
//	handle, err := queue.Enqueue("session:abc", func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	}, nil)
//	if err != nil {
//		return err
//	}
//	result, err := handle.Wait(context.Background())
package lanequeue
