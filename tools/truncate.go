package tools

import "fmt"

// DefaultResultLimit is the character cap applied to tool output before it
// is handed back to the model. The full output still travels on the event
// stream.
const DefaultResultLimit = 30000

// TruncateOutput applies a head/tail character cap to tool output, keeping
// both ends so the model sees how the output starts and finishes.
func TruncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	removed := len(output) - maxChars
	return output[:half] +
		fmt.Sprintf("\n\n[tool output truncated: %d characters removed from the middle; "+
			"re-run with more targeted parameters to see specific parts]\n\n", removed) +
		output[len(output)-half:]
}
