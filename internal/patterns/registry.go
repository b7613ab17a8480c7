package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Registry is the read-only, eager-compiled pattern dictionary. Construct
// once at startup with NewRegistry; all lookups after that are safe for
// concurrent use because nothing mutates after construction.
type Registry struct {
	compiled map[string]map[Key]*regexp.Regexp
	sources  map[string]map[Key]string
}

// NewRegistry resolves platform inheritance and compiles every well-known
// key for every known platform. A missing key after generic fallback, or a
// malformed regex, is a hard error at construction time (spec.md section 9).
func NewRegistry() (*Registry, error) {
	r := &Registry{
		compiled: make(map[string]map[Key]*regexp.Regexp),
		sources:  make(map[string]map[Key]string),
	}

	for _, platform := range Platforms {
		r.compiled[platform] = make(map[Key]*regexp.Regexp)
		r.sources[platform] = make(map[Key]string)

		for _, key := range WellKnownKeys {
			src, err := resolveSource(platform, key, nil)
			if err != nil {
				return nil, err
			}
			r.sources[platform][key] = src

			// prompt_dynamic (and any source embedding {prompt}) cannot be
			// compiled until a hostname is substituted at discovery time;
			// validate it compiles with a placeholder value so malformed
			// regexes still fail fast at construction.
			if strings.Contains(src, "{prompt}") {
				probe := strings.ReplaceAll(src, "{prompt}", regexp.QuoteMeta("host-1"))
				if _, err := regexp.Compile(probe); err != nil {
					return nil, fmt.Errorf("patterns: %s/%s malformed (with placeholder filled): %w", platform, key, err)
				}
				continue
			}

			re, err := regexp.Compile(src)
			if err != nil {
				return nil, fmt.Errorf("patterns: %s/%s malformed regex %q: %w", platform, key, src, err)
			}
			r.compiled[platform][key] = re
		}
	}

	return r, nil
}

// resolveSource walks platform inheritance (specific platform, falling back
// to generic) and union declarations to produce one regex source string.
func resolveSource(platform string, key Key, seen map[string]bool) (string, error) {
	if seen == nil {
		seen = make(map[string]bool)
	}
	loopKey := platform + "/" + string(key)
	if seen[loopKey] {
		return "", fmt.Errorf("patterns: cyclic union resolving %s/%s", platform, key)
	}
	seen[loopKey] = true

	if byKey, ok := definitions[platform]; ok {
		if e, ok := byKey[key]; ok {
			switch e.kind {
			case kindUnion:
				parts := make([]string, 0, len(e.unionPlatforms))
				for _, p := range e.unionPlatforms {
					sub, err := resolveSource(p, key, seen)
					if err != nil {
						return "", err
					}
					parts = append(parts, "(?:"+sub+")")
				}
				return strings.Join(parts, "|"), nil
			default:
				return e.pattern, nil
			}
		}
	}

	if platform != GenericPlatform {
		return resolveSource(GenericPlatform, key, seen)
	}

	return "", fmt.Errorf("patterns: missing key %q for platform %q with no generic fallback", key, platform)
}

// Get returns the compiled regex for (platform, key), falling back to
// generic if platform is unknown to the registry. Returns an error for
// prompt_dynamic or any key whose source still contains an unfilled
// {prompt} placeholder — use CompileDynamic for those.
func (r *Registry) Get(platform string, key Key) (*regexp.Regexp, error) {
	byKey, ok := r.compiled[platform]
	if !ok {
		byKey, ok = r.compiled[GenericPlatform]
		if !ok {
			return nil, fmt.Errorf("patterns: unknown platform %q and no generic registered", platform)
		}
	}
	re, ok := byKey[key]
	if !ok {
		if src, ok := r.sources[platform][key]; ok && strings.Contains(src, "{prompt}") {
			return nil, fmt.Errorf("patterns: %s/%s requires a detected hostname; call CompileDynamic", platform, key)
		}
		return nil, fmt.Errorf("patterns: no compiled pattern for %s/%s", platform, key)
	}
	return re, nil
}

// Source returns the raw, possibly-templated regex source for (platform, key).
func (r *Registry) Source(platform string, key Key) (string, error) {
	byKey, ok := r.sources[platform]
	if !ok {
		byKey, ok = r.sources[GenericPlatform]
		if !ok {
			return "", fmt.Errorf("patterns: unknown platform %q", platform)
		}
	}
	src, ok := byKey[key]
	if !ok {
		return "", fmt.Errorf("patterns: no source for %s/%s", platform, key)
	}
	return src, nil
}

// CompileDynamic substitutes the escaped hostname into a {prompt} placeholder
// in (platform, key)'s source and compiles the result. This is how
// prompt_dynamic becomes the live target-prompt regex once discovery (or
// prompt auto-detection) has determined the device's hostname-bearing prompt
// fragment (spec.md section 4.1).
func (r *Registry) CompileDynamic(platform string, key Key, hostname string) (*regexp.Regexp, error) {
	src, err := r.Source(platform, key)
	if err != nil {
		return nil, err
	}
	filled := strings.ReplaceAll(src, "{prompt}", regexp.QuoteMeta(hostname))
	re, err := regexp.Compile(filled)
	if err != nil {
		return nil, fmt.Errorf("patterns: compile dynamic %s/%s for hostname %q: %w", platform, key, hostname, err)
	}
	return re, nil
}
