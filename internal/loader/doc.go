// Package loader parses declarative workflow definitions.
//
// Definitions arrive as YAML files (CLI) or JSON bodies (HTTP); both bind to
// the same structs here and are turned into executable task lists against a
// step registry.
package loader
