// Package gemini implements classifier.Classifier on Google's Gemini API.
//
// Prompts are rendered from a text/template (embedded default, or an
// override from configuration) and the model is asked for a JSON response.
// Transient API failures are retried in-call with exponential backoff;
// blocked content and unparseable output are returned immediately.
package gemini
