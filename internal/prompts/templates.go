package prompts

// System role definitions
const (
	// AnalystRole defines the AI role for question analysis
	AnalystRole = "You are an expert technical analyst specializing in identifying software technologies and generating effective GitHub issue search queries."

	// AnswerRole defines the AI role for answer synthesis
	AnswerRole = "You are an expert technical assistant providing solutions grounded in GitHub issues and community discussions."
)

// Analysis templates
const (
	// TechnologyInstructions explains how to pick the technology name
	TechnologyInstructions = `### 1. Technology Identification
- Identify the PRIMARY technology, framework, library or package involved
- Extract only the BASE library or framework name, excluding:
  * Component names (Button, Table, Modal, etc.)
  * Method or function names (useState, useEffect, etc.)
  * Module or subpackage names (router, forms, etc.)
  * Feature-specific terms (authentication, validation, etc.)
- Use the name developers would search for or install via a package manager
- If several technologies appear, choose the one most central to the problem
- If the question is not about software at all, set "technology" to "irrelevant" and every query to "irrelevant"`

	// QueryInstructions explains how to write issue search queries
	QueryInstructions = `### 2. GitHub Search Query Generation
Create exactly {{VAR:query_count|default=3}} search queries optimized for GitHub issue discovery:
- Use only essential technical keywords, no conversational language
- Each query is 2-6 words
- Focus on error messages, function names or specific behaviors
- Make the queries semantically equivalent phrasings
- Only include library names when they are part of a call (e.g. "React.useState")
- Prefer actionable technical terms over descriptive words

Example transformations:
- "My Next.js app won't build" -> "build failed", "compilation error", "build process"
- "React useEffect not working" -> "useEffect not working", "useEffect issue", "effect hook problem"
- "Tailwind classes not applying" -> "classes not applying", "styles not working", "CSS not loading"`

	// IntentInstructions lists the accepted intents
	IntentInstructions = `### 3. Intent Classification
Identify the user's primary intent:
- bug_report: unexpected behavior or errors
- feature_request: new functionality or enhancements
- help_needed: guidance or troubleshooting
- configuration: setup, installation or configuration
- performance: speed or resource usage
- compatibility: version conflicts or integration issues
- general_info: general information requests`

	// ConfidenceInstructions explains the confidence scale
	ConfidenceInstructions = `### 4. Confidence Assessment
Rate your confidence in the analysis from 0.00 to 1.00:
- 0.90-1.00: technology clearly identified, problem well-defined
- 0.70-0.89: technology likely correct, problem mostly clear
- 0.50-0.69: some ambiguity in technology or problem
- 0.00-0.49: significant uncertainty`

	// AnalysisTemplate is the full analysis system instruction
	AnalysisTemplate = AnalystRole + `

## Your Task
Analyze the user's problem description and extract actionable information for finding GitHub solutions.

## Required Analysis
` + TechnologyInstructions + "\n\n" + QueryInstructions + "\n\n" + IntentInstructions + "\n\n" + ConfidenceInstructions + `

Respond with a single JSON object with the fields "technology", "queries", "intent" and "confidence".`

	// AnalysisUserTemplate wraps the user's question
	AnalysisUserTemplate = "User Query: {{VAR:query}}"
)

// Answer templates
const (
	// AnswerGuidelines lists what a good answer looks like
	AnswerGuidelines = `## Response Guidelines
- Start with a concise summary of the problem
- Provide step-by-step solutions based on the GitHub evidence
- Include code examples from the issues or comments when available
- Mention alternative approaches if several solutions exist
- Prefer solutions with high community engagement (reactions)
- Include version-specific information when the issues mention it
- Warn about deprecated or outdated approaches
- Use markdown headings, bullet points and fenced code blocks
- If the evidence does not answer the question, say so plainly`

	// CitationRules explains how sources are cited
	CitationRules = `## Citations
- Cite evidence inline as [n], numbering sources in the order you first use them, starting at 1
- Reuse the same number when you cite the same source again
- Only cite issues and comments that appear in the evidence below`

	// AnswerFormat describes the streamed output units
	AnswerFormat = `## Output Format
Respond with a JSON array of units, in reading order:
- {"type": "answer", "text": "..."} for a piece of the answer; split the answer into several units, one per paragraph or list
- {"type": "sources", "sources": [{"type": "issue" or "comment", "title": "...", "url": "...", "issue_number": 123, "author": "...", "preview": "..."}]} right after the answer text that first cites those sources
- {"type": "error", "message": "..."} only if you cannot answer at all`

	// AnswerTemplate is the full answer instruction
	AnswerTemplate = AnswerRole + `

## Your Task
Analyze the GitHub issues and comments below and write a detailed, actionable answer to the user's question.

` + AnswerGuidelines + "\n\n" + CitationRules + "\n\n" + AnswerFormat + `

## User Question
{{VAR:query}}

{{VAR:evidence|default="# GitHub Evidence\n\nNo issues were found."}}`
)

// Evidence section markers
const (
	EvidenceHeader = "# GitHub Evidence"
	IssuePrefix    = "## Issue #"
	CommentsHeader = "### Comments"
)
