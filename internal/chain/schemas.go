package chain

import "github.com/pressroom/backend/internal/schema"

var pressReleaseSchema = schema.MustCompile("press_release", `{
  "type": "object",
  "required": ["headline", "body"],
  "properties": {
    "headline": {"type": "string", "minLength": 10, "maxLength": 160},
    "subheadline": {"type": "string", "default": "", "anyOf": [{"const": ""}, {"minLength": 10, "maxLength": 220}]},
    "body": {"type": "string", "minLength": 200},
    "quote": {"type": "string", "default": ""},
    "boilerplate": {"type": "string", "default": ""},
    "contact": {
      "type": "object",
      "default": {"name": "", "email": "", "phone": ""},
      "properties": {
        "name": {"type": "string", "default": ""},
        "email": {"type": "string", "default": ""},
        "phone": {"type": "string", "default": ""}
      }
    }
  }
}`)

var headlineSchema = schema.MustCompile("headline", `{
  "type": "object",
  "required": ["headline"],
  "properties": {
    "headline": {"type": "string", "minLength": 10, "maxLength": 160},
    "reasoning": {"type": "string", "default": ""},
    "quality": {
      "type": "object",
      "default": {"length_ok": false, "style_ok": false, "avoids_hype": false},
      "properties": {
        "length_ok": {"type": "boolean", "default": false},
        "style_ok": {"type": "boolean", "default": false},
        "avoids_hype": {"type": "boolean", "default": false}
      }
    }
  }
}`)

var adSchema = schema.MustCompile("ad", `{
  "type": "object",
  "required": ["platform", "headline", "primary_text", "cta", "variants"],
  "properties": {
    "platform": {"type": "string", "enum": ["google_ads", "facebook"]},
    "headline": {"type": "string", "minLength": 5, "maxLength": 60},
    "primary_text": {"type": "string", "minLength": 20, "maxLength": 300},
    "description": {"type": "string", "default": "", "anyOf": [{"const": ""}, {"minLength": 10, "maxLength": 160}]},
    "cta": {"type": "string", "minLength": 2, "maxLength": 25},
    "variants": {
      "type": "array",
      "minItems": 1,
      "maxItems": 3,
      "items": {
        "type": "object",
        "required": ["headline", "primary_text"],
        "properties": {
          "headline": {"type": "string", "minLength": 5, "maxLength": 60},
          "primary_text": {"type": "string", "minLength": 20, "maxLength": 300}
        }
      }
    }
  }
}`)

var socialSchema = schema.MustCompile("social_posts", `{
  "type": "object",
  "required": ["linkedin", "twitter", "facebook"],
  "properties": {
    "linkedin": {"type": "string", "minLength": 1},
    "twitter": {"type": "string", "minLength": 1, "maxLength": 280},
    "facebook": {"type": "string", "minLength": 1}
  }
}`)
