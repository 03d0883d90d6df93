package ai

import "fmt"

// BuildPrompt wraps a user message in the instructional template for a task
// category. Pure string templating: deterministic, total, no failure modes.
// Unrecognized tags get the generic assistant template.
func BuildPrompt(module Module, message string) string {
	switch module {
	case ModuleResearch:
		return fmt.Sprintf(`Conduct comprehensive research on: %s

Provide:
1. Key findings and insights
2. Current trends and developments
3. Expert analysis and opinions
4. Practical applications
5. Future implications

Format as structured analysis with sources and confidence ratings.`, message)

	case ModuleCoding:
		return fmt.Sprintf(`Code generation request: %s

Provide:
1. Complete, working code
2. Detailed explanation
3. Usage examples
4. Best practices
5. Testing approach

Ensure code is production-ready and well-documented.`, message)

	case ModuleDecision:
		return fmt.Sprintf(`Decision support request: %s

Provide:
1. Available options with trade-offs
2. Evaluation criteria and weights
3. Risks and mitigations
4. Recommended course of action
5. Confidence level and assumptions

Format as a structured recommendation the user can act on directly.`, message)

	case ModuleAnalysis:
		return fmt.Sprintf(`Analyze the following: %s

Provide:
1. Summary of the subject
2. Key patterns and anomalies
3. Quantitative observations where possible
4. Interpretation and significance
5. Suggested next steps

Format as a structured analysis with clearly separated sections.`, message)

	case ModuleMemory:
		return fmt.Sprintf(`Memory query: %s

Provide insights based on conversation history and learned patterns.`, message)

	case ModuleImage:
		return fmt.Sprintf(`Image generation brief: %s

Provide:
1. A refined, detailed generation prompt
2. Composition and style guidance
3. Suggested variations
4. Negative-prompt considerations
5. Recommended output settings`, message)

	case ModuleSocial:
		return fmt.Sprintf(`Social media request: %s

Provide:
1. Draft posts adapted per platform
2. Suggested hashtags and timing
3. Engagement hooks
4. Tone and audience considerations
5. A posting schedule outline`, message)

	case ModuleFile:
		return fmt.Sprintf(`File management operation: %s

Provide:
1. Safe execution plan
2. Required permissions
3. Backup strategy
4. Verification steps
5. Rollback procedure`, message)

	case ModuleBrowser:
		return fmt.Sprintf(`Browser automation task: %s

Provide:
1. Step-by-step automation plan
2. Required tools and methods
3. Safety considerations
4. Expected outcomes
5. Error handling approach`, message)

	default:
		return fmt.Sprintf(`You are a helpful AI assistant. Respond to the following request accurately and efficiently: %s`, message)
	}
}

// BuildMemoryPrompt is the memory-module variant that embeds recent
// conversation context supplied by the history store.
func BuildMemoryPrompt(message, recentContext string) string {
	if recentContext == "" {
		return BuildPrompt(ModuleMemory, message)
	}
	return fmt.Sprintf(`Memory query: %s

Recent context:
%s

Provide insights based on conversation history and learned patterns.`, message, recentContext)
}
