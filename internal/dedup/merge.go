package dedup

import (
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/winnow/internal/langdetect"
	"horse.fit/winnow/internal/language"
)

// builtinTrackingKeys are stripped during URL canonicalization in addition
// to any key with the utm_ prefix. Extra keys come from configuration.
var builtinTrackingKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"s":       {},
	"spm":     {},
	"utm":     {},
}

// URLCanonicalizer normalizes article URLs so that tracking decoration and
// cosmetic differences never hide a duplicate.
type URLCanonicalizer struct {
	tracking map[string]struct{}
}

// NewURLCanonicalizer builds a canonicalizer with the built-in tracking key
// blocklist extended by extraKeys.
func NewURLCanonicalizer(extraKeys []string) *URLCanonicalizer {
	tracking := make(map[string]struct{}, len(builtinTrackingKeys)+len(extraKeys))
	for key := range builtinTrackingKeys {
		tracking[key] = struct{}{}
	}
	for _, key := range extraKeys {
		trimmed := strings.ToLower(strings.TrimSpace(key))
		if trimmed == "" {
			continue
		}
		tracking[trimmed] = struct{}{}
	}
	return &URLCanonicalizer{tracking: tracking}
}

// Canonicalize returns the canonical form of raw, or "" when raw is not a
// usable absolute URL. Lowercases scheme and host, strips default ports,
// fragments, trailing slashes and tracking query keys, and sorts the
// remaining query parameters.
func (c *URLCanonicalizer) Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = parsed.Host + ":" + port
		}
	}

	parsed.Fragment = ""
	path := strings.TrimSpace(parsed.EscapedPath())
	if path == "" {
		path = "/"
	}
	path = strings.ReplaceAll(path, "//", "/")
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	parsed.Path = path
	parsed.RawPath = ""

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := c.tracking[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		reordered := url.Values{}
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			for _, value := range values {
				reordered.Add(key, value)
			}
		}
		parsed.RawQuery = reordered.Encode()
	} else {
		parsed.RawQuery = ""
	}

	return parsed.String()
}

// MergeResult is the output of the merge and priority resolution stage.
type MergeResult struct {
	Articles            []Article
	TotalInput          int
	Collisions          int
	CollisionsByChannel map[string]int
	Malformed           []MalformedArticle
}

// Resolver merges per-channel article batches into one list with unique
// canonical URLs, resolving cross-channel collisions by channel priority.
type Resolver struct {
	priority map[string]int
	canon    *URLCanonicalizer
	logger   zerolog.Logger
}

// NewResolver builds a resolver. priorityOrder lists channels highest
// priority first; channels missing from the list rank after all listed ones
// in input order.
func NewResolver(priorityOrder, extraTrackingKeys []string, logger zerolog.Logger) *Resolver {
	priority := make(map[string]int, len(priorityOrder))
	for i, channel := range priorityOrder {
		normalized := strings.ToLower(strings.TrimSpace(channel))
		if normalized == "" {
			continue
		}
		if _, exists := priority[normalized]; exists {
			continue
		}
		priority[normalized] = i
	}

	return &Resolver{
		priority: priority,
		canon:    NewURLCanonicalizer(extraTrackingKeys),
		logger:   logger,
	}
}

// Canonicalize exposes the resolver's URL canonicalizer.
func (r *Resolver) Canonicalize(raw string) string {
	return r.canon.Canonicalize(raw)
}

// Merge flattens the channel batches into one article list with unique
// canonical URLs. Batches are visited highest priority first, so the first
// surviving article per URL is the highest-priority one and ties within a
// channel keep the first seen. Merge never fails; empty input yields an
// empty result.
func (r *Resolver) Merge(batches []ChannelBatch) MergeResult {
	result := MergeResult{
		Articles:            make([]Article, 0, 64),
		CollisionsByChannel: make(map[string]int),
	}

	ordered := make([]ChannelBatch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return r.channelRank(ordered[i].Channel) < r.channelRank(ordered[j].Channel)
	})

	seen := make(map[string]struct{}, 64)
	for _, batch := range ordered {
		channel := strings.ToLower(strings.TrimSpace(batch.Channel))
		for _, article := range batch.Articles {
			result.TotalInput++
			article.SourceType = channel

			canonical := r.canon.Canonicalize(article.URL)
			if canonical == "" {
				result.Malformed = append(result.Malformed, MalformedArticle{
					Article: article,
					Reason:  "article has no usable canonical URL",
				})
				r.logger.Warn().
					Str("channel", channel).
					Str("url", article.URL).
					Msg("merge excluded article without canonical url")
				continue
			}
			article.URL = canonical

			if strings.TrimSpace(article.Title) == "" {
				result.Malformed = append(result.Malformed, MalformedArticle{
					Article: article,
					Reason:  "article has no title text to embed",
				})
				r.logger.Warn().
					Str("channel", channel).
					Str("url", canonical).
					Msg("merge excluded article without title")
				continue
			}

			if _, exists := seen[canonical]; exists {
				result.Collisions++
				result.CollisionsByChannel[channel]++
				continue
			}
			seen[canonical] = struct{}{}

			article.Language = detectLanguage(article)
			result.Articles = append(result.Articles, article)
		}
	}

	return result
}

func (r *Resolver) channelRank(channel string) int {
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if rank, ok := r.priority[normalized]; ok {
		return rank
	}
	return len(r.priority) + 1
}

func detectLanguage(article Article) string {
	if tag := language.NormalizeTag(article.Language); tag != "" && tag != "und" {
		return tag
	}
	if code := langdetect.DetectISO6391(strings.TrimSpace(article.Title + " " + article.Summary)); code != "" {
		return code
	}
	return "und"
}
