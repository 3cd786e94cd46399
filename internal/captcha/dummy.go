package captcha

import (
	"context"
	"crypto/sha1"
	"fmt"
)

// dummyRecognizer is a deterministic, network-free provider used for
// rehearsal/dry-run tooling and as a canonical example of the
// Recognizer interface. It "recognizes" an image by hashing it, which
// is stable and cheap but never a real answer; real OCR vendors are
// external collaborators wired in the same way.
type dummyRecognizer struct {
	codeLength int
}

func init() {
	Register("dummy", func(cfg map[string]string) (Recognizer, error) {
		length := 4
		if v, ok := cfg["code_length"]; ok {
			fmt.Sscanf(v, "%d", &length)
		}
		return &dummyRecognizer{codeLength: length}, nil
	})
}

func (d *dummyRecognizer) Name() string { return "dummy" }

func (d *dummyRecognizer) Recognize(_ context.Context, image []byte) (string, error) {
	sum := sha1.Sum(image)
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, d.codeLength)
	for i := range out {
		out[i] = alphabet[int(sum[i%len(sum)])%len(alphabet)]
	}
	return string(out), nil
}
