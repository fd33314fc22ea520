// Package params implements the run-wide configuration store: two declared
// registries ("parameters" and "paths") populated from an HCL parameters
// file, validated exactly once at startup, and read-only for the remainder of
// the run. The resolved store can be snapshotted to disk as typed JSON so
// that a worker process reconstructs identical state without re-running
// validation, and rendered as YAML for human audit copies.
package params
