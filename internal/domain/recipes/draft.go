package recipes

// DefaultTitle is used when the model omits a usable title.
const DefaultTitle = "Recipe from Video"

// RecipeDraft is the structured recipe synthesized from one video.
// Ingredients and Steps are never nil.
type RecipeDraft struct {
	Title       string   `json:"title"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// FallbackDraft is returned when the model output cannot be parsed.
func FallbackDraft() RecipeDraft {
	return RecipeDraft{Title: DefaultTitle, Ingredients: []string{}, Steps: []string{}}
}

// Normalize replaces nil slices with empty ones and fills a blank title.
func (d RecipeDraft) Normalize() RecipeDraft {
	if d.Title == "" {
		d.Title = DefaultTitle
	}
	if d.Ingredients == nil {
		d.Ingredients = []string{}
	}
	if d.Steps == nil {
		d.Steps = []string{}
	}
	return d
}

// FrameDescription is the caption produced for one sampled frame.
type FrameDescription struct {
	FramePath   string `json:"frame_path"`
	Index       int    `json:"index"`
	Description string `json:"description"`
}

// ParseOutcome tags how the model response was turned into a draft.
type ParseOutcome string

const (
	ParseOK       ParseOutcome = "ok"
	ParseFallback ParseOutcome = "fallback"
)
