// Package planner classifies user utterances into answer intents.
// Classification is rule-first: regexes and keyword tables decide, and the
// engine behaves correctly with no language model involved.
package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind discriminates the plan variants.
type Kind string

const (
	KindSensitive      Kind = "sensitive_refusal"
	KindChapterNav     Kind = "chapter_nav"
	KindChapterCount   Kind = "chapter_count"
	KindChapterTitles  Kind = "chapter_titles"
	KindChapterSummary Kind = "chapter_summary"
	KindList           Kind = "list_request"
	KindTabular        Kind = "tabular_field"
	KindPolicy         Kind = "policy_summary"
	KindGeneric        Kind = "generic"
)

// Field names a tabular attribute a user can ask about.
type Field string

const (
	FieldSalary           Field = "salary"
	FieldDepartment       Field = "department"
	FieldManager          Field = "manager"
	FieldEmploymentStatus Field = "employmentstatus"
	FieldPosition         Field = "position"
	FieldLocation         Field = "location"
)

// ListMode distinguishes a fresh list request from a continuation.
type ListMode string

const (
	ListFirst ListMode = "first"
	ListNext  ListMode = "next"
)

// Plan is the tagged classification result. Only the slots belonging to the
// Kind are meaningful.
type Plan struct {
	Kind    Kind
	Base    int      // chapter_nav: navigate past this chapter
	Chapter int      // chapter_summary
	N       int      // chapter_titles (0 = unset), list_request
	Mode    ListMode // list_request
	Topic   string   // list_request (may be empty for next-form)
	Field   Field    // tabular_field
	Person  string   // tabular_field (may be empty)

	// FromContext marks a plan whose slots were filled from conversation
	// memory rather than the utterance alone. Such answers must not be
	// served from or written to the query cache.
	FromContext bool
}

var sensitiveTerms = []string{
	"ethnicity", "race", "hispanic", "religion", "sexual orientation",
}

var (
	chapterNavRe     = regexp.MustCompile(`(?i)next\s+chapter\s+after\s+chapter\s+(\d+)`)
	chapterSummaryRe = regexp.MustCompile(`(?i)summary\s+of\s+chapter\s+(\d+)`)
	numberRe         = regexp.MustCompile(`\d+`)
	listFirstRe      = regexp.MustCompile(`(?i)\b(?:first|top)\s+(\d+)\b(.*)$`)
	listNextRe       = regexp.MustCompile(`(?i)\b(?:next|subsequent)\s+(\d+)\b(.*)$`)
	listTopicRe      = regexp.MustCompile(`(?i)\b(?:of|in)\s+(.+)$`)
	personRe         = regexp.MustCompile(`(?i)(?:of|for)\s+([^?]+)`)
	pronounRe        = regexp.MustCompile(`(?i)\b(his|her|their|him|them)\b`)
)

var chapterCountPhrases = []string{
	"how many chapters", "number of chapters", "chapters are there",
}

// fieldKeywords maps each tabular field to its trigger phrases. Order
// matters: the first matching field wins.
var fieldKeywords = []struct {
	field    Field
	keywords []string
}{
	{FieldSalary, []string{"salary", "annualsalary", "salaryamount", "pay", "compensation", "wage", "earning"}},
	{FieldDepartment, []string{"department", "dept", "division", "team", "unit"}},
	{FieldManager, []string{"manager", "managername", "supervisor", "boss", "reports to", "reporting manager"}},
	{FieldEmploymentStatus, []string{"employmentstatus", "employment status", "work status", "status"}},
	{FieldPosition, []string{"position", "job title", "title", "role", "designation"}},
	{FieldLocation, []string{"location", "office", "site", "workplace", "based in"}},
}

var policyIntentTerms = []string{"policy", "policies", "guideline", "rules"}

var policySubjectTerms = []string{"currency", "conversion", "unwithdrawn", "withdrawn"}

// topicKeywords disqualify a captured phrase from being a person name.
var topicKeywords = []string{
	"chapter", "program", "project", "management", "roles", "responsibilities",
	"governance", "policy", "process", "procedure", "guideline",
}

// Classify maps an utterance to a Plan. lastPerson is the person remembered
// in the conversation context, used to resolve pronouns.
func Classify(message, lastPerson string) Plan {
	lower := strings.ToLower(message)

	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			return Plan{Kind: KindSensitive}
		}
	}

	if m := chapterNavRe.FindStringSubmatch(message); m != nil {
		base, _ := strconv.Atoi(m[1])
		return Plan{Kind: KindChapterNav, Base: base}
	}

	if m := chapterSummaryRe.FindStringSubmatch(message); m != nil {
		ch, _ := strconv.Atoi(m[1])
		return Plan{Kind: KindChapterSummary, Chapter: ch}
	}

	for _, phrase := range chapterCountPhrases {
		if strings.Contains(lower, phrase) {
			return Plan{Kind: KindChapterCount}
		}
	}

	if strings.Contains(lower, "chapter") &&
		(strings.Contains(lower, "title") || strings.Contains(lower, "list")) {
		plan := Plan{Kind: KindChapterTitles}
		if m := numberRe.FindString(lower); m != "" {
			plan.N, _ = strconv.Atoi(m)
		}
		return plan
	}

	if m := listFirstRe.FindStringSubmatch(message); m != nil {
		if topic, ok := listTopic(m[2]); ok {
			n, _ := strconv.Atoi(m[1])
			return Plan{Kind: KindList, Mode: ListFirst, N: n, Topic: topic}
		}
	}

	if m := listNextRe.FindStringSubmatch(message); m != nil {
		n, _ := strconv.Atoi(m[1])
		plan := Plan{Kind: KindList, Mode: ListNext, N: n, FromContext: true}
		if topic, ok := listTopic(m[2]); ok {
			plan.Topic = topic
		}
		return plan
	}

	if hasAny(lower, policyIntentTerms) && hasAny(lower, policySubjectTerms) {
		return Plan{Kind: KindPolicy}
	}

	if field, ok := matchField(lower); ok {
		person, fromContext := extractPerson(message, lastPerson)
		if person != "" {
			return Plan{Kind: KindTabular, Field: field, Person: person, FromContext: fromContext}
		}
	}

	return Plan{Kind: KindGeneric}
}

// hasAny reports whether any of the terms occurs in the lowered utterance.
func hasAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// listTopic extracts the "of <topic>" tail of a list request.
func listTopic(tail string) (string, bool) {
	m := listTopicRe.FindStringSubmatch(tail)
	if m == nil {
		return "", false
	}
	topic := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[1]), "?.!"))
	if topic == "" {
		return "", false
	}
	return topic, true
}

func matchField(lower string) (Field, bool) {
	for _, entry := range fieldKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.field, true
			}
		}
	}
	return "", false
}

// extractPerson captures the person slot, resolving pronouns against the
// remembered person when needed. The second return reports whether the
// person came from conversation memory.
func extractPerson(message, lastPerson string) (string, bool) {
	if pronounRe.MatchString(message) && lastPerson != "" {
		return lastPerson, true
	}

	m := personRe.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	candidate := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[1]), "?.!"))
	if !LooksLikePerson(candidate) {
		return "", false
	}
	return candidate, false
}

// LooksLikePerson reports whether a phrase plausibly names a person: no
// digits, no topic keywords, and shaped like "Last, First" or 2-4 words.
func LooksLikePerson(phrase string) bool {
	if phrase == "" || strings.ContainsAny(phrase, "0123456789") {
		return false
	}

	lower := strings.ToLower(phrase)
	for _, kw := range topicKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}

	if strings.Contains(phrase, ",") {
		parts := strings.SplitN(phrase, ",", 2)
		return strings.TrimSpace(parts[0]) != "" && strings.TrimSpace(parts[1]) != ""
	}

	tokens := strings.Fields(phrase)
	return len(tokens) >= 2 && len(tokens) <= 4
}
