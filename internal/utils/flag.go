package utils

import "flag"

// IsFlagSet reports whether the named flag was passed on the command line.
func IsFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
