// Package assistant adapts an OpenAI compatible chat completions service into
// the coding assistant behind POST /ai/ask. Without an API key, or when the
// service fails, every question receives a fixed offline answer.
package assistant
