package chain

import (
	"context"
	"regexp"
	"strings"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/llm"
	"github.com/pressroom/backend/internal/schema"
)

func NewHeadlineChain(completer llm.Completer, model string) *PromptChain[string, HeadlineResult] {
	return NewPromptChain("headline", headlinePrompt,
		func(text string) map[string]string {
			return map[string]string{"context": text}
		},
		completer, model,
		func(_ string, raw string) (HeadlineResult, error) {
			return schema.Parse[HeadlineResult](headlineSchema, raw)
		},
	)
}

func NewPressReleaseChain(completer llm.Completer, model string) *PromptChain[GenerationContext, StructuredPressRelease] {
	return NewPromptChain("press_release", pressReleasePrompt,
		func(in GenerationContext) map[string]string {
			tone := in.BrandTone
			if strings.TrimSpace(tone) == "" {
				tone = DefaultBrandTone
			}
			return map[string]string{
				"brand_tone":          tone,
				"company_name":        in.CompanyName,
				"company_boilerplate": in.CompanyBoilerplate,
				"main_story":          in.MainStory,
				"quote":               in.Quote,
				"background":          in.Background,
			}
		},
		completer, model,
		func(in GenerationContext, raw string) (StructuredPressRelease, error) {
			out, err := schema.Parse[StructuredPressRelease](pressReleaseSchema, raw)
			if err != nil {
				return out, err
			}
			return scrubUnsourced(in, out), nil
		},
	)
}

// scrubUnsourced empties optional fields that have no source in the input.
// Contact values survive only when they appear verbatim in the input text.
func scrubUnsourced(in GenerationContext, out StructuredPressRelease) StructuredPressRelease {
	if strings.TrimSpace(in.Quote) == "" {
		out.Quote = ""
	}
	if strings.TrimSpace(in.CompanyBoilerplate) == "" {
		out.Boilerplate = ""
	}

	source := strings.Join([]string{in.MainStory, in.Quote, in.CompanyBoilerplate, in.Background}, "\n")
	keep := func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" || !strings.Contains(source, v) {
			return ""
		}
		return v
	}
	out.Contact = Contact{
		Name:  keep(out.Contact.Name),
		Email: keep(out.Contact.Email),
		Phone: keep(out.Contact.Phone),
	}
	return out
}

func NewEditChain(completer llm.Completer, model string) *PromptChain[EditInput, string] {
	return NewPromptChain("edit", editPrompt,
		func(in EditInput) map[string]string {
			return map[string]string{"instruction": in.Instruction, "content": in.CurrentContent}
		},
		completer, model,
		func(_ EditInput, raw string) (string, error) {
			return nonEmptyText("edit", raw)
		},
	)
}

func NewTranslationChain(completer llm.Completer, model string) *PromptChain[TranslationInput, string] {
	return NewPromptChain("translation", translationPrompt,
		func(in TranslationInput) map[string]string {
			return map[string]string{"language": in.TargetLanguage, "text": in.Text}
		},
		completer, model,
		func(in TranslationInput, raw string) (string, error) {
			out, err := nonEmptyText("translation", raw)
			if err != nil {
				return "", err
			}
			if violations := checkPreserved(in.Text, out); len(violations) > 0 {
				return "", apperr.NewValidationError("translation", violations...)
			}
			return out, nil
		},
	)
}

var (
	emailPattern          = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern          = regexp.MustCompile(`\+?\d[\d ().\-]{6,}\d`)
	paragraphBreakPattern = regexp.MustCompile(`\n[ \t]*\n\s*`)
)

// Dates and figures also match phonePattern; real numbers carry more digits.
const minPhoneDigits = 9

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// ParagraphBreaks counts blank-line separators between paragraphs.
func ParagraphBreaks(text string) int {
	return len(paragraphBreakPattern.FindAllStringIndex(strings.TrimSpace(text), -1))
}

func checkPreserved(source, translated string) []apperr.Violation {
	var violations []apperr.Violation
	for _, email := range emailPattern.FindAllString(source, -1) {
		if !strings.Contains(translated, email) {
			violations = append(violations, apperr.Violation{Field: "email", Reason: "missing " + email})
		}
	}
	for _, phone := range phonePattern.FindAllString(source, -1) {
		if countDigits(phone) < minPhoneDigits {
			continue
		}
		if !strings.Contains(translated, phone) {
			violations = append(violations, apperr.Violation{Field: "phone", Reason: "missing " + phone})
		}
	}
	if want, got := ParagraphBreaks(source), ParagraphBreaks(translated); want != got {
		violations = append(violations, apperr.Violation{
			Field:  "paragraphs",
			Reason: "paragraph break count changed",
		})
	}
	return violations
}

// AdChain rejects unknown platforms before any provider call.
type AdChain struct {
	inner *PromptChain[AdInput, AdStructured]
}

func (c *AdChain) Invoke(ctx context.Context, in AdInput) (AdStructured, error) {
	if _, ok := platformGuidance[in.Platform]; !ok {
		return AdStructured{}, apperr.NewValidationError("ad", apperr.Violation{
			Field:  "platform",
			Reason: "must be one of google_ads, facebook",
		})
	}
	return c.inner.Invoke(ctx, in)
}

func NewAdChain(completer llm.Completer, model string) *AdChain {
	return &AdChain{inner: NewPromptChain("ad", adPrompt,
		func(in AdInput) map[string]string {
			return map[string]string{
				"platform":          in.Platform,
				"platform_guidance": platformGuidance[in.Platform],
				"press_release":     in.PressRelease,
			}
		},
		completer, model,
		func(in AdInput, raw string) (AdStructured, error) {
			out, err := schema.Parse[AdStructured](adSchema, raw)
			if err != nil {
				return out, err
			}
			if out.Platform != in.Platform {
				return AdStructured{}, apperr.NewValidationError("ad", apperr.Violation{
					Field:  "platform",
					Reason: "expected " + in.Platform + ", got " + out.Platform,
				})
			}
			return out, nil
		},
	)}
}

func NewSocialChain(completer llm.Completer, model string) *PromptChain[string, SocialPosts] {
	return NewPromptChain("social_posts", socialPrompt,
		func(pressRelease string) map[string]string {
			return map[string]string{"press_release": pressRelease}
		},
		completer, model,
		func(_ string, raw string) (SocialPosts, error) {
			return schema.Parse[SocialPosts](socialSchema, raw)
		},
	)
}

func nonEmptyText(name, raw string) (string, error) {
	out := strings.TrimSpace(raw)
	if out == "" {
		return "", apperr.NewValidationError(name, apperr.Violation{Field: "(root)", Reason: "empty completion"})
	}
	return out, nil
}
