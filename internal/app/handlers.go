package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/knowledge"
	"github.com/lumora-ai/lumora/internal/plan"
)

// registerActionHandlers wires the executor's action types to the knowledge
// store and the model.
func registerActionHandlers(exec *plan.Executor, store *knowledge.Store, gen genai.Generator, topK int) {
	exec.Register(plan.ActionSearchKnowledge, searchKnowledgeHandler(store, topK))
	exec.Register(plan.ActionLookupDocument, lookupDocumentHandler(store))
	exec.Register(plan.ActionSummarize, summarizeHandler(gen))
	exec.Register(plan.ActionCompare, compareHandler(gen))
}

func searchKnowledgeHandler(store *knowledge.Store, topK int) plan.Handler {
	return func(ctx context.Context, tenantID uuid.UUID, action plan.Action, input string) (string, error) {
		query := action.Params["query"]
		if query == "" {
			query = input
		}
		if query == "" {
			return "", fmt.Errorf("search action %q has no query", action.ID)
		}

		results, err := store.Search(ctx, tenantID, query, knowledge.WithTopK(topK))
		if err != nil {
			return "", fmt.Errorf("searching knowledge: %w", err)
		}

		parts := make([]string, 0, len(results))
		for _, r := range results {
			parts = append(parts, r.Document.Content)
		}
		return strings.Join(parts, "\n\n"), nil
	}
}

func lookupDocumentHandler(store *knowledge.Store) plan.Handler {
	return func(ctx context.Context, tenantID uuid.UUID, action plan.Action, _ string) (string, error) {
		// Planned actions carry the id under "id"; "document_id" is an
		// accepted alias.
		raw := action.Params["id"]
		if raw == "" {
			raw = action.Params["document_id"]
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("lookup action %q has no valid document id", action.ID)
		}
		doc, err := store.Get(ctx, tenantID, id)
		if err != nil {
			return "", fmt.Errorf("looking up document: %w", err)
		}
		return doc.Title + "\n" + doc.Content, nil
	}
}

func summarizeHandler(gen genai.Generator) plan.Handler {
	return func(ctx context.Context, _ uuid.UUID, action plan.Action, input string) (string, error) {
		text := input
		if t := action.Params["text"]; t != "" {
			text = t
		}
		if text == "" {
			return "", fmt.Errorf("summarize action %q has nothing to summarize", action.ID)
		}

		return gen.Complete(ctx, []genai.Message{
			genai.System("Summarize the material concisely, keeping every concrete fact."),
			genai.User(text),
		}, genai.Options{})
	}
}

func compareHandler(gen genai.Generator) plan.Handler {
	return func(ctx context.Context, _ uuid.UUID, action plan.Action, input string) (string, error) {
		subject := action.Params["subjects"]
		if subject == "" {
			subject = action.Params["query"]
		}
		if input == "" && subject == "" {
			return "", fmt.Errorf("compare action %q has nothing to compare", action.ID)
		}

		prompt := "Compare the following and lay out the concrete differences."
		if subject != "" {
			prompt += " Subjects: " + subject + "."
		}
		return gen.Complete(ctx, []genai.Message{
			genai.System(prompt),
			genai.User(input),
		}, genai.Options{})
	}
}
