// Package tools routes model-requested tool invocations to the remote tool
// endpoint. It keeps a registry of the endpoint's capabilities, attaches the
// caller's Google credential to each call, and normalizes outcomes into
// results the chat orchestrator can append to the conversation.
//
// Dispatch is sequential by default. A batch where every requested tool is
// annotated read-only runs concurrently; results are always returned in the
// order the model requested them.
package tools
