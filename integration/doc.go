// Package integration contains the end-to-end smoke tests for the factory
// orchestrator. The tests build the real binary and run it against a scratch
// project directory and a stub tracker API served over loopback HTTP, so the
// full path from backlog document to created issue runs exactly as it would
// in production, minus the network.
//
// Run with: go test ./integration/... -v -timeout 60s
package integration
