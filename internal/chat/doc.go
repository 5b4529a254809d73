// Package chat drives conversations between users and the hosted model.
// The orchestrator persists the transcript, offers the tool endpoint's
// capabilities to the engine, dispatches requested tool calls through the
// router, and loops until the model produces a final answer or the round
// ceiling forces one.
package chat
