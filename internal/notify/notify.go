// Package notify pushes operator-facing alerts through a webhook,
// rate-limited per category so a flapping condition can't turn into a
// phone full of identical pushes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Category groups alerts that should share one rate-limit interval.
type Category string

const (
	CategoryDegrade        Category = "degrade"
	CategoryCritical       Category = "critical"
	CategoryCourseSuccess  Category = "course_success"
	CategoryCourseSkip     Category = "course_skip"
	CategoryOffline        Category = "offline"
)

// Pusher sends a single notification. Implementations should be
// best-effort: a failed push must never bubble up and interrupt the
// election loop.
type Pusher interface {
	Push(ctx context.Context, title, body string) error
}

// WebhookPusher posts a JSON payload to a configured URL, the shape a
// Bark/ServerChan-style push gateway expects.
type WebhookPusher struct {
	url   string
	http  *http.Client
	title string
}

// NewWebhookPusher builds a Pusher that POSTs to url with titlePrefix
// prepended to every title. A blank url makes Push a silent no-op,
// letting operators run without notifications configured at all.
func NewWebhookPusher(url, titlePrefix string) *WebhookPusher {
	return &WebhookPusher{
		url:   url,
		http:  &http.Client{Timeout: 10 * time.Second},
		title: titlePrefix,
	}
}

func (w *WebhookPusher) Push(ctx context.Context, title, body string) error {
	if w.url == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"title": w.title + " " + title,
		"body":  body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Notifier wraps a Pusher with a per-category rate limit, so repeated
// identical conditions (a long offline streak, a sustained CAPTCHA
// degrade) generate at most one push per interval instead of one push
// per occurrence.
type Notifier struct {
	pusher    Pusher
	mu        sync.Mutex
	intervals map[Category]time.Duration
	lastSent  map[Category]time.Time
}

// New builds a Notifier. intervals maps each category to its minimum
// spacing between pushes; a category absent from the map, or mapped to
// zero, is never rate-limited.
func New(pusher Pusher, intervals map[Category]time.Duration) *Notifier {
	return &Notifier{
		pusher:    pusher,
		intervals: intervals,
		lastSent:  make(map[Category]time.Time),
	}
}

// Notify pushes title/body under category, dropping the push silently
// if the category's interval hasn't elapsed since the last send.
func (n *Notifier) Notify(ctx context.Context, category Category, title, body string) {
	now := time.Now()
	n.mu.Lock()
	interval := n.intervals[category]
	last, seen := n.lastSent[category]
	if interval > 0 && seen && now.Sub(last) < interval {
		n.mu.Unlock()
		return
	}
	n.lastSent[category] = now
	n.mu.Unlock()

	if err := n.pusher.Push(ctx, title, body); err != nil {
		log.Warn().Err(err).Str("category", string(category)).Msg("notification push failed")
	}
}
