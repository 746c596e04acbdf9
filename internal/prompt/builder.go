// Package prompt builds the text prompts sent to the story generator.
// Everything here is pure: the same inputs always produce the same prompt.
package prompt

// OpeningTemplate is used for the first paragraph of every story.
const OpeningTemplate = "Write a child-friendly story paragraph for kids. " +
	"Use simple language and end the paragraph naturally. " +
	"Do not include choices; just tell the story.\n\nStory:"

// continuationPrefix follows the previous paragraph.
const continuationPrefix = "\nContinue the story following choice "

// Build returns the generation prompt for the next turn.
// With no prior text it returns OpeningTemplate and ignores choice.
func Build(priorText, choice *string) string {
	if priorText == nil {
		return OpeningTemplate
	}
	label := ""
	if choice != nil {
		label = *choice
	}
	return Continuation(*priorText, label)
}

// Opening is Build(nil, nil).
func Opening() string {
	return OpeningTemplate
}

// Continuation appends the continuation instruction naming the chosen option to the prior text.
func Continuation(priorText, choice string) string {
	return priorText + continuationPrefix + choice + ": "
}
