package chain

const DefaultBrandTone = "Neutral, professional"

type GenerationContext struct {
	BrandTone          string `json:"brand_tone"`
	CompanyName        string `json:"company_name"`
	CompanyBoilerplate string `json:"company_boilerplate"`
	MainStory          string `json:"main_story"`
	Quote              string `json:"quote"`
	// Background carries retrieved reference material.
	Background string `json:"background,omitempty"`
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type StructuredPressRelease struct {
	Headline    string  `json:"headline"`
	Subheadline string  `json:"subheadline"`
	Body        string  `json:"body"`
	Quote       string  `json:"quote"`
	Boilerplate string  `json:"boilerplate"`
	Contact     Contact `json:"contact"`
}

type HeadlineQuality struct {
	LengthOK   bool `json:"length_ok"`
	StyleOK    bool `json:"style_ok"`
	AvoidsHype bool `json:"avoids_hype"`
}

type HeadlineResult struct {
	Headline  string          `json:"headline"`
	Reasoning string          `json:"reasoning"`
	Quality   HeadlineQuality `json:"quality"`
}

const (
	PlatformGoogleAds = "google_ads"
	PlatformFacebook  = "facebook"
)

type AdVariant struct {
	Headline    string `json:"headline"`
	PrimaryText string `json:"primary_text"`
}

type AdStructured struct {
	Platform    string      `json:"platform"`
	Headline    string      `json:"headline"`
	PrimaryText string      `json:"primary_text"`
	Description string      `json:"description"`
	CTA         string      `json:"cta"`
	Variants    []AdVariant `json:"variants"`
}

type SocialPosts struct {
	LinkedIn string `json:"linkedin"`
	Twitter  string `json:"twitter"`
	Facebook string `json:"facebook"`
}

type EditInput struct {
	Instruction    string `json:"instruction"`
	CurrentContent string `json:"current_content"`
}

type TranslationInput struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type AdInput struct {
	Platform     string `json:"platform"`
	PressRelease string `json:"press_release"`
}
