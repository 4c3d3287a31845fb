// Package steps maps declarative task kinds to executable work functions.
//
// Workflows submitted over HTTP or loaded from YAML reference steps by kind
// ("sleep", "shell", "http_request", ...); the registry builds the work
// function for each kind from its arguments.
package steps
