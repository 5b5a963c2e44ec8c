// ABOUTME: Package assistant documentation
// ABOUTME: Hosted-model gateway behind the chat assistant endpoint

// Package assistant forwards a user's question to a hosted text-generation
// model and returns the reply. Upstream failures never surface as errors; the
// caller always gets a printable string.
package assistant
