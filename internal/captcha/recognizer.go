// Package captcha recognizes the elective site's image CAPTCHA and
// routes attempts across multiple OCR providers, adaptively favoring
// whichever is currently fastest and most accurate.
package captcha

import "context"

// Recognizer turns a CAPTCHA image into its claimed text. Implementations
// for concrete OCR vendors (HTTP calls to a hosted recognition service,
// a local model, etc) are external collaborators: only this interface
// and the routing around it live here.
type Recognizer interface {
	// Name identifies the provider for stats, logs, and config.
	Name() string
	// Recognize returns the best-guess text for image. ctx governs the
	// request's deadline/cancellation.
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Factory builds a Recognizer from provider-specific configuration.
// Implementations register themselves via Register.
type Factory func(cfg map[string]string) (Recognizer, error)

var registry = make(map[string]Factory)

// Register adds a named provider factory to the registry. Typically
// called from an init() in the file implementing that provider.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Get builds a Recognizer for name using cfg, or an error if name was
// never registered.
func Get(name string, cfg map[string]string) (Recognizer, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, &ErrUnknownProvider{Name: name}
	}
	return factory(cfg)
}

// Known reports whether name has a registered factory, without building
// one. Used by the preflight validator's provider allow-list check.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}
