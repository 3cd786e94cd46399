package elective

import "math/rand"

// userAgents is a small, fixed pool of common desktop browser strings.
// Rotated per login to avoid every session presenting the identical
// fingerprint, without trying to imitate any particular anti-bot
// countermeasure.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// RandomUserAgent returns a uniformly chosen user-agent string.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
