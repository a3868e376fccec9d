// Package classifier defines the boundary to the external service that
// decides whether a location is still a real, open business and which
// category it belongs to.
//
// Raw model output (Response) is untrusted. Validate turns it into a
// Decision with a closed action set, a category from the closed category
// set, and a confidence bounded to [0, 1]; anything that fails validation
// is an ErrInvalidResponse, which callers treat as retryable.
package classifier
