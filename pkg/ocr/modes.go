// Package ocr defines the recognition mode table and prompt handling
// shared by the HTTP handlers, the CLI, and the pipeline.
package ocr

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultModeKey is the mode used when the caller supplies none.
const DefaultModeKey = "gundam"

// defaultPrompt is the prompt used when the caller supplies none.
// Overridable at startup via SetDefaultPrompt.
var defaultPrompt = "<image>\n<|grounding|>Convert the document to markdown."

// DefaultPrompt returns the process default prompt.
func DefaultPrompt() string {
	return defaultPrompt
}

// SetDefaultPrompt overrides the process default prompt. Startup only,
// before the server accepts traffic.
func SetDefaultPrompt(p string) {
	if p = strings.TrimSpace(p); p != "" {
		defaultPrompt = p
	}
}

// ModeConfig is an immutable bundle of resolution and cropping
// parameters controlling the engine's accuracy/speed trade-off.
type ModeConfig struct {
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
	BaseSize    int    `json:"base_size" yaml:"base_size"`
	ImageSize   int    `json:"image_size" yaml:"image_size"`
	CropMode    bool   `json:"crop_mode" yaml:"crop_mode"`
	Compress    bool   `json:"test_compress" yaml:"test_compress"`
	Speed       string `json:"speed" yaml:"speed"`
	Quality     string `json:"quality" yaml:"quality"`
}

// defaultModes is the built-in mode table. Read-only after init; callers
// receive copies.
var defaultModes = map[string]ModeConfig{
	"gundam": {
		Label:       "Gundam (动态裁剪)",
		Description: "默认模式，使用640分辨率局部裁剪，适合复杂排版。",
		BaseSize:    1024,
		ImageSize:   640,
		CropMode:    true,
		Compress:    true,
		Speed:       "中等",
		Quality:     "更高",
	},
	"base": {
		Label:       "Base 1024",
		Description: "固定1024分辨率，不裁剪，兼顾速度和效果。",
		BaseSize:    1024,
		ImageSize:   1024,
		Speed:       "中等",
		Quality:     "高",
	},
	"small": {
		Label:       "Small 640",
		Description: "固定640分辨率，不裁剪，速度较快。",
		BaseSize:    640,
		ImageSize:   640,
		Speed:       "较快",
		Quality:     "中等",
	},
	"tiny": {
		Label:       "Tiny 512",
		Description: "512基础尺寸，适合快速粗略浏览。",
		BaseSize:    512,
		ImageSize:   512,
		Speed:       "最快",
		Quality:     "基础",
	},
	"large": {
		Label:       "Large 1280",
		Description: "1280基础尺寸，追求极致细节，需要更久推理时间。",
		BaseSize:    1280,
		ImageSize:   1280,
		Speed:       "最慢",
		Quality:     "最高",
	},
}

// Modes returns a copy of the active mode table.
func Modes() map[string]ModeConfig {
	out := make(map[string]ModeConfig, len(defaultModes))
	for k, v := range defaultModes {
		out[k] = v
	}
	return out
}

// ModeKeys returns the mode keys in sorted order.
func ModeKeys() []string {
	keys := make([]string, 0, len(defaultModes))
	for k := range defaultModes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the configuration for a mode key.
func Lookup(key string) (ModeConfig, bool) {
	cfg, ok := defaultModes[key]
	return cfg, ok
}

// LoadOverrides merges mode definitions from a YAML file into the mode
// table. Entries replace built-in modes with the same key; new keys are
// added. Intended for startup only, before the table is shared.
func LoadOverrides(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read mode overrides: %w", err)
	}

	var overrides map[string]ModeConfig
	if err := yaml.Unmarshal(b, &overrides); err != nil {
		return fmt.Errorf("parse mode overrides: %w", err)
	}

	for key, cfg := range overrides {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if cfg.BaseSize <= 0 || cfg.ImageSize <= 0 {
			return fmt.Errorf("mode %q: base_size and image_size must be positive", key)
		}
		defaultModes[key] = cfg
	}
	return nil
}

// NormalizePrompt applies the prompt rules: an empty prompt falls back
// to the default, and prompts missing the image token get it prefixed.
func NormalizePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}
	if !strings.Contains(prompt, "<image>") {
		prompt = "<image>\n" + prompt
	}
	return prompt
}

// CleanPrediction strips the engine's sentinel tokens from raw output
// and trims surrounding whitespace.
func CleanPrediction(text string) string {
	if text == "" {
		return ""
	}
	cleaned := strings.ReplaceAll(text, "<｜end▁of▁sentence｜>", "")
	cleaned = strings.ReplaceAll(cleaned, "<|end_of_text|>", "")
	return strings.TrimSpace(cleaned)
}
