// Package intent classifies raw user messages into discrete intents.
//
// Classification is a three-tier hybrid: an ordered regex pattern tier, a
// semantic tier comparing the input against precomputed canonical example
// embeddings, and an optional LLM fallback. Each tier runs only when the
// previous one is inconclusive, and a tier's backend failure is itself
// treated as inconclusive. Classify never returns an error: total failure
// yields TypeOutOfScope with confidence 0.
package intent

// Type is the discrete intent tag of a user utterance.
type Type string

const (
	TypeGreeting       Type = "greeting"
	TypeFarewell       Type = "farewell"
	TypeGratitude      Type = "gratitude"
	TypeHelp           Type = "help"
	TypeChitChat       Type = "chit_chat"
	TypeKnowledgeQuery Type = "knowledge_query"
	TypeOutOfScope     Type = "out_of_scope"
)

// Method records which tier produced a classification.
type Method string

const (
	MethodPattern  Method = "pattern"
	MethodSemantic Method = "semantic"
	MethodLLM      Method = "llm"
)

// Intent is the classification result for one turn. It is computed once per
// turn and immutable afterwards.
type Intent struct {
	Type       Type
	Confidence float64 // in [0,1]
	Method     Method
}

// NeedsRetrieval reports whether the intent requires knowledge-base context
// to answer. Social intents are answered from the persona alone.
func (i Intent) NeedsRetrieval() bool {
	switch i.Type {
	case TypeKnowledgeQuery, TypeHelp, TypeOutOfScope:
		return true
	default:
		return false
	}
}

// MultiStep reports whether the intent is tagged as requiring multi-step
// handling, one of the planner's decomposition signals.
func (i Intent) MultiStep() bool {
	return i.Type == TypeKnowledgeQuery
}

// KnownTypes lists every intent type in classifier priority order. The
// order is the pattern tier's tie-break: the first matching intent wins.
func KnownTypes() []Type {
	return []Type{
		TypeGreeting,
		TypeFarewell,
		TypeGratitude,
		TypeHelp,
		TypeChitChat,
		TypeKnowledgeQuery,
		TypeOutOfScope,
	}
}

// ValidType reports whether t is a known intent type.
func ValidType(t Type) bool {
	for _, known := range KnownTypes() {
		if t == known {
			return true
		}
	}
	return false
}
