// Package app contains the core application wiring. It loads runtime
// configuration, builds the node registry and the compiled graph plan, and
// exposes the analysis lifecycle decoupled from any specific entrypoint
// like the CLI or the HTTP server.
package app
