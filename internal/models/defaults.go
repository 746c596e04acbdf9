package models

// DefaultOptions returns the fixed pair of choices attached to every generated block.
// A fresh map is returned on each call.
func DefaultOptions() map[string]string {
	return map[string]string{
		"A": "Continue the story",
		"B": "Choose a different path",
	}
}
