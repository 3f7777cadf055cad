// Package prompt builds the instruction messages sent to the text
// generation provider. All functions are pure.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxFieldLength bounds each user-supplied field, in runes.
const MaxFieldLength = 200

// Params describes the content the caller wants (value type).
type Params struct {
	Niche    string `json:"niche"`
	Audience string `json:"audience"`
	Offer    string `json:"offer"`
	Tone     string `json:"tone"`
	Platform string `json:"platform"`
	Keywords string `json:"keywords,omitempty"`
}

// Messages is the system/user message pair for a chat completion.
type Messages struct {
	System string
	User   string
}

// Angle is a hook pattern family the generator groups hooks by.
type Angle struct {
	ID      string
	Label   string
	Pattern string
}

// Angles lists the hook angles in display order.
var Angles = []Angle{
	{ID: "pain_relief", Label: "Pain → Relief", Pattern: "If you're struggling with {pain}, here's a quick way to {relief} without {common_pitfall}."},
	{ID: "contrarian", Label: "Contrarian", Pattern: "Everyone says {myth}. Here's why that advice slows your growth, and what to do instead: {truth}."},
	{ID: "proof_mini", Label: "Mini Case", Pattern: "{persona} did {result} in {time}. The surprising lever? {lever}."},
	{ID: "list_fast", Label: "3-Step Fast List", Pattern: "3 quick moves to {outcome}: 1){step1} 2){step2} 3){step3}."},
	{ID: "myth_bust", Label: "Myth-Bust", Pattern: "Myth: {myth}. Reality: {reality}. Try this instead: {action}."},
	{ID: "pov", Label: "POV", Pattern: "POV: You're {audience_state}. In 60s, you'll know how to {micro_outcome}."},
}

// TonePresets maps preset ids to tone descriptions.
var TonePresets = map[string]string{
	"friendly-crisp": "friendly, energetic, crisp sentences, practical",
	"mentor-calm":    "calm, reassuring, wise, no fluff",
	"hype-short":     "high-energy, short lines, punchy, social-native",
}

// Defaults are used for any field the caller leaves blank.
var Defaults = Params{
	Niche:    "Etsy templates for beginners",
	Audience: "new creators, 18–34",
	Offer:    "starter template pack",
	Tone:     TonePresets["friendly-crisp"],
	Platform: "TikTok",
	Keywords: "viral hooks, 60s script, quick CTA",
}

// Normalize trims and bounds every field and expands tone preset ids.
// Blank fields stay blank; see ApplyDefaults.
func Normalize(p Params) Params {
	p.Niche = clean(p.Niche)
	p.Audience = clean(p.Audience)
	p.Offer = clean(p.Offer)
	p.Tone = clean(p.Tone)
	p.Platform = clean(p.Platform)
	p.Keywords = clean(p.Keywords)

	if preset, ok := TonePresets[strings.ToLower(p.Tone)]; ok {
		p.Tone = preset
	}
	return p
}

// ApplyDefaults fills blank required fields from Defaults. Keywords are
// optional and stay blank.
func ApplyDefaults(p Params) Params {
	if p.Niche == "" {
		p.Niche = Defaults.Niche
	}
	if p.Audience == "" {
		p.Audience = Defaults.Audience
	}
	if p.Offer == "" {
		p.Offer = Defaults.Offer
	}
	if p.Tone == "" {
		p.Tone = Defaults.Tone
	}
	if p.Platform == "" {
		p.Platform = Defaults.Platform
	}
	return p
}

// Build renders the fixed instruction template for p.
func Build(p Params) Messages {
	p = ApplyDefaults(Normalize(p))

	keywords := p.Keywords
	if keywords == "" {
		keywords = "—"
	}

	labels := make([]string, len(Angles))
	for i, a := range Angles {
		labels[i] = a.Label
	}

	system := fmt.Sprintf("You are a seasoned short-form content producer. "+
		"Output must be concise, punchy, and formatted in markdown. "+
		"Target platform: %s. Keep hooks under 12 words when possible.", p.Platform)

	var b strings.Builder
	fmt.Fprintf(&b, "Niche: %s\n", p.Niche)
	fmt.Fprintf(&b, "Audience: %s\n", p.Audience)
	fmt.Fprintf(&b, "Offer/Product: %s\n", p.Offer)
	fmt.Fprintf(&b, "Tone: %s\n", p.Tone)
	fmt.Fprintf(&b, "Optional keywords: %s\n\n", keywords)
	b.WriteString("Tasks:\n")
	fmt.Fprintf(&b, "1) Generate 20 hooks grouped by angle (%s).\n", strings.Join(labels, ", "))
	b.WriteString("2) Write a 45–60s script with timecodes (mm:ss) and on-screen beats.\n")
	b.WriteString("3) Suggest 5 B-roll ideas that match the beats.\n")
	b.WriteString("4) Give 3 CTA variants tailored to the offer.\n\n")
	b.WriteString("Constraints:\n")
	b.WriteString("- Hooks: bullet list, bold the hook text.\n")
	b.WriteString("- Script: Include timecodes (e.g., 00:00 cold open, 00:05 hook, 00:12 value, 00:50 CTA). Max 140 words total.\n")
	b.WriteString("- Style: tight, specific, no fluff, platform-native.\n")
	b.WriteString("- Return sections as: ## Hooks (by angle) / ## Script / ## B-roll / ## CTAs.")

	return Messages{System: system, User: b.String()}
}

func clean(s string) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, ""))
	if utf8.RuneCountInString(s) <= MaxFieldLength {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxFieldLength]))
}
