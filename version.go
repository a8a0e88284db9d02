package weft

import (
	_ "embed"
)

// Version is the release of the interpreter, read from the VERSION file.
//
//go:embed VERSION
var Version string
