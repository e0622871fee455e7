package autosave

import (
	"github.com/manavm/pixstudio/internal/state"
	"github.com/manavm/pixstudio/internal/storage"
	"github.com/manavm/pixstudio/pkg/models"
)

// Preferences are the fine-tune parameters that persist indefinitely
// across sessions, unlike the crash-recovery snapshot.
type Preferences struct {
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	StyleTags       []string `json:"style_tags,omitempty"`
	DetailIntensity int      `json:"detail_intensity,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
}

// SavePreferences captures the store's current fine-tune fields.
func SavePreferences(kv *storage.Store, store *state.Store) error {
	prefs := Preferences{
		NegativePrompt:  store.NegativePrompt(),
		StyleTags:       store.StyleTags(),
		DetailIntensity: store.DetailIntensity(),
		AspectRatio:     string(store.AspectRatio()),
	}
	return kv.Put(storage.KeyPreferences, prefs)
}

// LoadPreferences applies stored preferences to the store. Absent or
// corrupt preferences leave the defaults untouched.
func LoadPreferences(kv *storage.Store, store *state.Store) {
	var prefs Preferences
	ok, err := kv.Get(storage.KeyPreferences, &prefs)
	if err != nil || !ok {
		return
	}
	store.SetNegativePrompt(prefs.NegativePrompt)
	store.SetStyleTags(prefs.StyleTags)
	if prefs.DetailIntensity != 0 {
		_ = store.SetDetailIntensity(prefs.DetailIntensity)
	}
	if ratio := models.AspectRatio(prefs.AspectRatio); ratio.IsValid() {
		_ = store.SetAspectRatio(ratio)
	}
}
