package coordinator

import (
	"strings"
	"time"

	"github.com/manavm/pixstudio/internal/media"
)

// probeDimensions is swappable in tests, where media payloads are fakes.
var probeDimensions = func(encoded string) (int, int, error) {
	return media.Probe(encoded)
}

func timestampNow() int64 {
	return time.Now().UnixMilli()
}

var detailModifiers = map[int]string{
	1: "minimal detail, clean and simple",
	2: "lightly detailed",
	3: "",
	4: "highly detailed",
	5: "extremely intricate, maximum detail",
}

// assemblePrompt merges the user prompt with the active style tags, the
// detail modifier and the negative prompt into the single string the
// backend receives.
func (c *Coordinator) assemblePrompt(prompt string) string {
	var parts []string
	if prompt != "" {
		parts = append(parts, prompt)
	}
	if tags := c.state.StyleTags(); len(tags) > 0 {
		parts = append(parts, "in the style of "+strings.Join(tags, ", "))
	}
	if mod := detailModifiers[c.state.DetailIntensity()]; mod != "" {
		parts = append(parts, mod)
	}
	if neg := c.state.NegativePrompt(); neg != "" {
		parts = append(parts, "Avoid: "+neg)
	}
	return strings.Join(parts, ". ")
}
