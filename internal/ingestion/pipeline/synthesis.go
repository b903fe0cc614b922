package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/recipe-backend/internal/clients/gemini"
	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

var fencedBlock = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

func (s *service) synthesize(ctx context.Context, log *logger.Logger, res *Result) error {
	res.Prompt = BuildPrompt(res.Transcript, res.Frames)

	text, err := s.deps.Generator.GenerateText(ctx, res.Prompt)
	switch {
	case errors.Is(err, gemini.ErrEmptyResponse):
		// The call succeeded but produced nothing usable.
		log.Warn("Generation returned no text; using fallback draft")
		res.Draft, res.Parse = types.FallbackDraft(), types.ParseFallback
	case err != nil:
		return fmt.Errorf("generate recipe: %w", err)
	default:
		res.Draft, res.Parse = ParseRecipeDraft(text)
		if res.Parse == types.ParseFallback {
			log.Warn("Recipe response was not valid JSON; using fallback draft", "response_chars", len(text))
		}
	}
	if s.deps.Observer != nil {
		s.deps.Observer.Parsed(res.Parse)
	}
	return nil
}

// BuildPrompt embeds the transcript verbatim and every frame description, in
// frame order, followed by the output format instructions.
func BuildPrompt(transcript string, frames []types.FrameDescription) string {
	var b strings.Builder
	b.WriteString("You are a culinary assistant. Using the transcript of a cooking video and descriptions of frames sampled from it, write the recipe being prepared.\n\n")

	b.WriteString("TRANSCRIPT:\n")
	if strings.TrimSpace(transcript) == "" {
		b.WriteString("(no speech detected)\n")
	} else {
		b.WriteString(transcript)
		b.WriteString("\n")
	}

	b.WriteString("\nFRAME DESCRIPTIONS:\n")
	if len(frames) == 0 {
		b.WriteString("(none)\n")
	}
	for i, f := range frames {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(f.Description))
	}

	b.WriteString("\nRespond with a single JSON object and nothing else, in exactly this shape:\n")
	b.WriteString("```json\n")
	b.WriteString(`{"title": "string", "ingredients": ["string"], "steps": ["string"]}`)
	b.WriteString("\n```\n")
	b.WriteString("List each ingredient with its quantity when stated. List steps in the order they are performed.\n")
	return b.String()
}

// ParseRecipeDraft extracts a draft from model output. The first fenced block
// is the payload when present, otherwise the whole text. It never fails: text
// that is not a JSON object yields the fallback draft.
func ParseRecipeDraft(text string) (types.RecipeDraft, types.ParseOutcome) {
	payload := strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil || raw == nil {
		return types.FallbackDraft(), types.ParseFallback
	}

	d := types.RecipeDraft{Title: types.DefaultTitle}
	if v, ok := raw["title"]; ok {
		var title string
		if json.Unmarshal(v, &title) == nil && strings.TrimSpace(title) != "" {
			d.Title = title
		}
	}
	d.Ingredients = stringList(raw["ingredients"])
	d.Steps = stringList(raw["steps"])
	return d, types.ParseOK
}

// stringList returns the elements of a JSON array. Strings are decoded;
// anything else is kept as its compact JSON text. Non-arrays give an empty
// list.
func stringList(v json.RawMessage) []string {
	out := []string{}
	if len(v) == 0 {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return out
	}
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
			continue
		}
		var buf bytes.Buffer
		if json.Compact(&buf, item) == nil {
			out = append(out, buf.String())
		} else {
			out = append(out, string(item))
		}
	}
	return out
}
