package outcome

import "ronin/internal/store"

// keywordRules lists, for each outcome stage the rule-based classifier can
// reach, the substrings whose case-insensitive presence in a message body
// counts as a hit. Order matters only insofar as classifyPriority below
// fixes the tie-break; the lists themselves are unordered sets.
var keywordRules = []struct {
	stage    store.OutcomeStage
	keywords []string
}{
	{
		stage: store.OutcomeInterview,
		keywords: []string{
			"interview", "phone screen", "schedule a call", "meet with the team",
			"panel interview", "next steps", "move forward", "speak with you",
			"available for a call", "technical assessment",
		},
	},
	{
		stage: store.OutcomeRejected,
		keywords: []string{
			"unfortunately", "regret to inform", "not moving forward", "unsuccessful",
			"other candidates", "will not be proceeding", "not selected",
			"decided to move forward with other candidates", "pursue other applicants",
		},
	},
	{
		stage: store.OutcomeViewed,
		keywords: []string{
			"application has been viewed", "application viewed", "reviewed your application",
			"viewed by the hiring", "application received and reviewed",
		},
	},
	{
		stage: store.OutcomeAcknowledged,
		keywords: []string{
			"thank you for applying", "we have received your application", "application received",
			"thanks for your interest", "confirmation of application", "successfully submitted",
		},
	},
}

// classifyPriority orders stages for tie-breaking when more than one
// category records a hit on the same message: interview > rejected >
// viewed > acknowledged > other (store.OutcomeGhost stands in for "other").
var classifyPriority = map[store.OutcomeStage]int{
	store.OutcomeInterview:    4,
	store.OutcomeRejected:     3,
	store.OutcomeViewed:       2,
	store.OutcomeAcknowledged: 1,
	store.OutcomeGhost:        0,
}
