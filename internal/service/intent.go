package service

import (
	"strings"

	"github.com/persistorai/recall/internal/tokenize"
)

// Intent is a query category that selects an expansion policy.
type Intent string

// Query intents.
const (
	IntentPersonFact       Intent = "person_fact"
	IntentPersonHistory    Intent = "person_history"
	IntentFamily           Intent = "family"
	IntentThreadFollow     Intent = "thread_follow"
	IntentAttachmentFollow Intent = "attachment_follow"
	IntentCrossChannel     Intent = "cross_channel"
	IntentGeneral          Intent = "general"
)

// Policy is the expansion plan for a query.
type Policy struct {
	Temporal bool
	Sibling  bool
	// Facts injects graph facts of resolved persons into the context.
	Facts bool
	// RelationshipHops > 0 widens resolved persons through relationships.
	RelationshipHops int
	RelationTypes    []string
	// NeighborhoodHops > 0 follows asset edges from top results.
	NeighborhoodHops int
	// PersonAssets follows person-asset links of resolved persons.
	PersonAssets bool
	Recency      bool
}

// familyRelations is the relationship allowlist for family expansion.
var familyRelations = []string{
	"spouse", "partner", "wife", "husband", "parent", "mother", "father",
	"child", "son", "daughter", "sibling", "brother", "sister",
	"grandparent", "grandchild", "cousin", "family",
}

var policies = map[Intent]Policy{
	IntentGeneral:          {Temporal: true, Sibling: true},
	IntentPersonFact:       {Temporal: true, Sibling: true, Facts: true},
	IntentPersonHistory:    {Temporal: true, Sibling: true, Facts: true},
	IntentFamily:           {Temporal: true, Sibling: true, Facts: true, RelationshipHops: 1, RelationTypes: familyRelations},
	IntentThreadFollow:     {Temporal: true, Sibling: true, NeighborhoodHops: 1, Recency: true},
	IntentAttachmentFollow: {Temporal: true, Sibling: true, NeighborhoodHops: 2},
	IntentCrossChannel:     {Temporal: true, Sibling: true, NeighborhoodHops: 2, PersonAssets: true},
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[tokenize.Normalize(w)] = struct{}{}
	}

	return m
}

var (
	familyWords = wordSet(
		"family", "wife", "husband", "spouse", "partner", "mother", "mom", "mum", "father", "dad",
		"sister", "brother", "sibling", "siblings", "son", "daughter", "kids", "children", "parents",
		"cousin", "uncle", "aunt", "grandma", "grandpa", "grandmother", "grandfather", "relatives",
		"משפחה", "אמא", "אבא", "אח", "אחות", "ילדים", "הורים", "סבא", "סבתא", "אשתו", "בעלה", "בן", "בת", "דוד", "דודה",
	)
	factWords = wordSet(
		"birthday", "born", "age", "old", "live", "lives", "address", "phone", "number", "email",
		"work", "works", "job", "company", "allergic", "favorite", "favourite", "likes", "married",
		"יום", "הולדת", "גר", "גרה", "טלפון", "כתובת", "עובד", "עובדת", "גיל", "אוהב", "אוהבת",
	)
	historyWords = wordSet(
		"say", "said", "says", "told", "tell", "talk", "talked", "discuss", "discussed", "mention",
		"mentioned", "wrote", "write", "sent", "asked", "last", "history", "conversation", "conversations",
		"אמר", "אמרה", "כתב", "כתבה", "שלח", "שלחה", "דיברנו", "סיפר", "סיפרה",
	)
	threadWords = wordSet(
		"thread", "earlier", "above", "continue", "reply", "replied", "followup", "follow", "previous",
		"latest", "recent", "recently", "קודם", "המשך", "שרשור",
	)
	attachmentWords = wordSet(
		"attachment", "attachments", "attached", "file", "files", "document", "documents", "pdf", "doc",
		"photo", "photos", "image", "picture", "spreadsheet", "slides", "contract", "invoice", "receipt",
		"קובץ", "מסמך", "תמונה", "צרופה", "חשבונית", "חוזה",
	)
	channelWords = wordSet(
		"email", "emails", "mail", "whatsapp", "sms", "text", "texts", "telegram", "signal", "call",
		"calls", "meeting", "meetings", "transcript", "message", "messages", "מייל", "וואטסאפ", "שיחה", "הודעה",
	)
	crossWords = wordSet("across", "everywhere", "anywhere", "channels", "wherever", "בכל")
)

// IntentInput is what the classifier sees.
type IntentInput struct {
	Query    string
	Persons  int
	ThreadID string
}

// ClassifyIntent returns the intents of a query in a fixed order. It always
// returns at least one intent; general is returned alone when no other rule
// fires.
func ClassifyIntent(in IntentInput) []Intent {
	words := tokenize.Words(in.Query)
	has := func(set map[string]struct{}) bool {
		for _, w := range words {
			if _, ok := set[w]; ok {
				return true
			}
		}

		return false
	}

	var out []Intent

	person := in.Persons > 0

	if person && has(factWords) {
		out = append(out, IntentPersonFact)
	}

	if person && (has(historyWords) || !has(factWords)) {
		out = append(out, IntentPersonHistory)
	}

	if has(familyWords) {
		out = append(out, IntentFamily)
	}

	if in.ThreadID != "" || has(threadWords) {
		out = append(out, IntentThreadFollow)
	}

	if has(attachmentWords) {
		out = append(out, IntentAttachmentFollow)
	}

	if has(crossWords) || (person && channelCount(words) >= 2) {
		out = append(out, IntentCrossChannel)
	}

	if len(out) == 0 {
		out = append(out, IntentGeneral)
	}

	return out
}

func channelCount(words []string) int {
	seen := make(map[string]struct{})

	for _, w := range words {
		if _, ok := channelWords[w]; ok {
			seen[w] = struct{}{}
		}
	}

	return len(seen)
}

// PolicyFor combines the policies of intents. Flags are OR-ed and hop
// counts take the maximum.
func PolicyFor(intents []Intent) Policy {
	var p Policy

	relations := make(map[string]struct{})

	for _, in := range intents {
		ip, ok := policies[in]
		if !ok {
			continue
		}

		p.Temporal = p.Temporal || ip.Temporal
		p.Sibling = p.Sibling || ip.Sibling
		p.Facts = p.Facts || ip.Facts
		p.PersonAssets = p.PersonAssets || ip.PersonAssets
		p.Recency = p.Recency || ip.Recency
		p.RelationshipHops = max(p.RelationshipHops, ip.RelationshipHops)
		p.NeighborhoodHops = max(p.NeighborhoodHops, ip.NeighborhoodHops)

		for _, r := range ip.RelationTypes {
			if _, dup := relations[r]; !dup {
				relations[r] = struct{}{}
				p.RelationTypes = append(p.RelationTypes, r)
			}
		}
	}

	return p
}

// IntentStrings converts intents for the response.
func IntentStrings(intents []Intent) []string {
	out := make([]string, len(intents))
	for i, in := range intents {
		out[i] = string(in)
	}

	return out
}

// intentsField joins intents for log fields.
func intentsField(intents []Intent) string {
	return strings.Join(IntentStrings(intents), ",")
}
