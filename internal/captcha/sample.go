package captcha

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sampler persists a random fraction of CAPTCHA images (plus a JSON
// sidecar describing the attempt) to disk, for later review of where
// OCR providers are going wrong. Entirely best-effort: a write failure
// is logged and swallowed, never surfaced to the caller mid-election.
type Sampler struct {
	dir  string
	rate float64

	mu  sync.Mutex // guards rng, which is not safe for concurrent use
	rng *rand.Rand
}

// NewSampler builds a sampler writing under dir, keeping a fraction
// rate of attempts (0..1).
func NewSampler(dir string, rate float64) *Sampler {
	return &Sampler{dir: dir, rate: rate, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

type sampleSidecar struct {
	Timestamp string `json:"ts"`
	Provider  string `json:"provider"`
	Accepted  bool   `json:"accepted"`
	Size      int    `json:"size"`
}

// Maybe writes image and its sidecar with probability s.rate. Safe to
// call from multiple goroutines: the only shared mutable state is the
// RNG, which is used under s.mu.
func (s *Sampler) Maybe(image []byte, provider string, accepted bool) {
	if s == nil || s.dir == "" || s.rate <= 0 {
		return
	}
	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()
	if roll >= s.rate {
		return
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("captcha: sample dir create failed")
		return
	}

	sum := sha1.Sum(image)
	name := fmt.Sprintf("%d_%x.%s", time.Now().UnixNano(), sum[:6], guessImageExt(image))
	imgPath := filepath.Join(s.dir, name)
	if err := os.WriteFile(imgPath, image, 0o644); err != nil {
		log.Warn().Err(err).Msg("captcha: sample image write failed")
		return
	}

	sidecar := sampleSidecar{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Provider:  provider,
		Accepted:  accepted,
		Size:      len(image),
	}
	data, err := json.Marshal(sidecar)
	if err != nil {
		return
	}
	_ = os.WriteFile(imgPath+".json", data, 0o644)
}

// guessImageExt sniffs the image container format from its magic
// bytes, since the site doesn't always set a useful Content-Type.
func guessImageExt(data []byte) string {
	switch {
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpg"
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "gif"
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return "bmp"
	default:
		return "bin"
	}
}
