package analysis

import "fmt"

// ServicePrompt asks for a short hazard assessment of a frame from a monitored source
func ServicePrompt(label, source, location string) string {
	return fmt.Sprintf("This image shows a '%s' detection from source '%s' located at '%s'. "+
		"Give a short analysis of the potential hazard based on what is visible in the image, "+
		"the likely cause (if it can be inferred from the visuals), and the basic safety steps to take immediately. "+
		"Focus on fast response and prevention. Use a short narrative or a few bullet points that are easy to understand.",
		label, source, location)
}

// CLIPrompt is the terser variant used by the batch detector
func CLIPrompt(label, source, location string) string {
	return fmt.Sprintf("This image shows a '%s' detection at '%s' (%s) with visual annotations. "+
		"Give a brief analysis of the potential hazard, likely causes and basic safety steps (bullet points, emoji where relevant). Keep it concise.",
		label, location, source)
}
