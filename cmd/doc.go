// Package cmd implements the rituo command line interface.
//
// The main entry point is the serve command, which wires storage, auth,
// the tool endpoint client, and the chat orchestrator into the HTTP API.
// A cleanup command handles offline database maintenance.
package cmd
