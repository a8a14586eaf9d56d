// Package config centralizes application configuration and file system
// paths. Configuration comes from environment variables with the NK_ prefix,
// overlaid by an optional nikkeicli.yaml next to the executable. The Paths
// type is the single source of truth for every file the analysis tree
// contains; no other package builds data file paths by hand.
package config
