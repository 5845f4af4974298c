package chain

import "github.com/pressroom/backend/internal/prompt"

var headlinePrompt = prompt.MustNew("headline", `You are a senior communications editor writing press release headlines.

Write one headline for the announcement below.

Rules:
- 10 to 160 characters.
- No exclamation points.
- No unsubstantiated superlatives ("best", "revolutionary", "world-leading") unless the text proves them.
- Use only facts present in the context.

Context:
{{.context}}

Respond with JSON only, no commentary:
{"headline": "...", "reasoning": "one sentence", "quality": {"length_ok": true, "style_ok": true, "avoids_hype": true}}`, "context")

var pressReleasePrompt = prompt.MustNew("press_release", `You are a press officer for {{.company_name}}. Write a press release in this brand tone: {{.brand_tone}}.

Main story:
{{.main_story}}
{{if .background}}
Reference material (use only where it supports the main story):
{{.background}}
{{end}}
Company boilerplate (copy verbatim into "boilerplate", or leave "" if empty):
{{.company_boilerplate}}

Spokesperson quote (copy verbatim into "quote", or leave "" if empty):
{{.quote}}

Rules:
- Never invent facts, figures, quotes, contact details or boilerplate. Every statement must trace back to the text above.
- If a field has no source material, return "" for it.
- headline: 10 to 160 characters. subheadline: "" or 10 to 220 characters. body: at least 200 characters, paragraphs separated by blank lines.
- contact: only names, emails and phone numbers that appear above; otherwise "".

Respond with JSON only:
{"headline": "", "subheadline": "", "body": "", "quote": "", "boilerplate": "", "contact": {"name": "", "email": "", "phone": ""}}`,
	"company_name", "main_story")

var editPrompt = prompt.MustNew("edit", `You are editing a piece of marketing copy.

Instruction:
{{.instruction}}

Current content:
{{.content}}

Apply the instruction and return the complete revised text. Keep the original headings, paragraphs and section order unless the instruction explicitly asks to restructure. Return only the revised text.`,
	"instruction", "content")

var translationPrompt = prompt.MustNew("translation", `Translate the text below into {{.language}}.

Rules:
- Keep proper nouns, brand names, email addresses, phone numbers and URLs exactly as written.
- Keep every paragraph break: the output must have the same number of paragraphs as the input.
- Return only the translation.

Text:
{{.text}}`, "language", "text")

var adPrompt = prompt.MustNew("ad", `You write paid ads for {{.platform}} based on a press release.

Platform guidance: {{.platform_guidance}}

Press release:
{{.press_release}}

Rules:
- platform must be "{{.platform}}".
- headline: 5 to 60 characters. primary_text: 20 to 300 characters. description: "" or 10 to 160 characters. cta: 2 to 25 characters.
- Provide 1 to 3 variants, each with its own headline and primary_text under the same limits.
- Use only claims supported by the press release.

Respond with JSON only:
{"platform": "{{.platform}}", "headline": "", "primary_text": "", "description": "", "cta": "", "variants": [{"headline": "", "primary_text": ""}]}`,
	"platform", "press_release")

var socialPrompt = prompt.MustNew("social_posts", `Turn the press release below into social media posts.

- linkedin: professional, up to three short paragraphs.
- twitter: at most 280 characters including hashtags and links.
- facebook: conversational, one or two paragraphs.
Use only facts from the press release.

Press release:
{{.press_release}}

Respond with JSON only:
{"linkedin": "", "twitter": "", "facebook": ""}`, "press_release")

var platformGuidance = map[string]string{
	PlatformGoogleAds: "Google Ads responsive search ads favour headlines of 30 characters or fewer; never exceed 60.",
	PlatformFacebook:  "Facebook feed ads favour headlines of 40 characters or fewer and a primary text that reads well in two lines.",
}
