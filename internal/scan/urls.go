package scan

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hexverde/malsift/internal/config"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Classifier finds HTTP(S) URLs among extracted strings and tags the
// command-and-control URL and the secondary-payload download URL. The
// substring signatures come from the config; an optional Lua hook can
// override them.
type Classifier struct {
	sig  config.Signatures
	hook *LuaHook
	log  *zap.Logger
}

// NewClassifier builds a Classifier. inline, when non-empty, is a
// sandboxed Lua snippet consulted before the substring signatures.
func NewClassifier(sig config.Signatures, inline string, log *zap.Logger) *Classifier {
	return &Classifier{sig: sig, hook: NewLuaHook(inline), log: log}
}

// FindURLs collects every URL substring from the input strings. A
// single input string may contain multiple URLs. The result is
// duplicate-free with first-seen order preserved.
func (c *Classifier) FindURLs(candidates []string) []string {
	var urls []string
	seen := map[string]struct{}{}
	for _, s := range candidates {
		for _, u := range urlPattern.FindAllString(s, -1) {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	c.log.Info("found URLs", zap.Int("count", len(urls)))
	return urls
}

// FindC2URL returns the first URL tagged as command-and-control, or
// "" when none matches. Absence is a legitimate outcome, not an error.
func (c *Classifier) FindC2URL(urls []string) string {
	for _, u := range urls {
		if c.isC2(u) {
			c.log.Info("found C2 URL", zap.String("url", u))
			return u
		}
	}
	return ""
}

// FindDownloadURL returns the first URL tagged as the
// secondary-payload download, or "" when none matches. The lookup is
// independent of the C2 lookup: one URL may match both.
func (c *Classifier) FindDownloadURL(urls []string) string {
	for _, u := range urls {
		if c.isDownload(u) {
			c.log.Info("found download URL", zap.String("url", u))
			return u
		}
	}
	return ""
}

// Classification tags returned by the Lua hook and the built-in
// signatures.
const (
	TagC2       = "c2"
	TagDownload = "download"
)

func (c *Classifier) isC2(url string) bool {
	if tag, ok := c.hookTag(url); ok {
		return tag == TagC2
	}
	return c.sig.C2PathMarker != "" && strings.Contains(url, c.sig.C2PathMarker)
}

func (c *Classifier) isDownload(url string) bool {
	if tag, ok := c.hookTag(url); ok {
		return tag == TagDownload
	}
	return c.sig.DownloadMarker != "" &&
		strings.Contains(strings.ToLower(url), strings.ToLower(c.sig.DownloadMarker))
}

// hookTag consults the Lua hook; ok is false when there is no hook or
// it errored, in which case the substring signatures decide.
func (c *Classifier) hookTag(url string) (string, bool) {
	if c.hook == nil {
		return "", false
	}
	tag, err := c.hook.Classify(url)
	if err != nil {
		c.log.Warn("classify hook failed, falling back to signatures",
			zap.String("url", url), zap.Error(err))
		return "", false
	}
	return tag, true
}
