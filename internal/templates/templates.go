// Package templates holds the embedded starter files stamped into a new
// project by `factory init`. All files are compiled into the binary at build
// time via //go:embed and copied as-is with no filename transformations.
package templates

import "embed"

// Init holds files copied to the target project by `factory init`.
//
//go:embed init
var Init embed.FS
