package graphic

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// envOverride is a variable the dashboard changes while it owns the terminal.
type envOverride struct {
	key   string
	value string
}

// normalizeTerminal adjusts the environment where it is known to break
// termbox, and returns a function that puts it back.
func normalizeTerminal() (func(), error) {
	var saved []envOverride

	unset := func(key string) error {
		value, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}

		saved = append(saved, envOverride{key: key, value: value})
		return os.Unsetenv(key)
	}

	// TERMINFO under tmux points termbox at the wrong database.
	if strings.HasPrefix(os.Getenv("TERM"), "tmux") {
		if err := unset("TERMINFO"); err != nil {
			return nil, errors.Wrap(err, "failed to unset TERMINFO")
		}
	}

	restore := func() {
		for _, o := range saved {
			os.Setenv(o.key, o.value)
		}
	}

	return restore, nil
}
