// Package all imports all backends implemented by the input package.
package all

import (
	_ "github.com/noriah/brainwave/input/cyton"
	_ "github.com/noriah/brainwave/input/parec"
	_ "github.com/noriah/brainwave/input/stdinput"
	_ "github.com/noriah/brainwave/input/synthetic"
)
