package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/workload"
)

// DefaultNamePattern names auto-named containers after the project, the
// image and the first free index.
const DefaultNamePattern = "%p-%n-%i"

const (
	indexPlaceholder = "%i"
	emptyNamePattern = "%e"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// containerName applies the workload's naming strategy. An empty result
// lets the runtime choose a name.
func (s *Service) containerName(ctx context.Context, w workload.Workload) (string, error) {
	switch w.Run.Naming {
	case workload.NamingNone:
		return "", nil
	case workload.NamingAlias:
		if w.Alias == "" {
			return "", fmt.Errorf("naming strategy %q requires an alias", workload.NamingAlias)
		}
		return w.Alias, nil
	case "", workload.NamingAuto:
	default:
		return "", fmt.Errorf("unknown naming strategy %q", w.Run.Naming)
	}

	pattern := w.Run.NamePattern
	if pattern == "" {
		pattern = s.cfg.NamePattern
	}
	if pattern == emptyNamePattern {
		return "", nil
	}

	applied := applyNamePattern(pattern, s.cfg.Project, w, s.now().UnixMilli())
	if !strings.Contains(applied, indexPlaceholder) {
		return applied, nil
	}

	existing, err := s.runtime.ListContainers(ctx, container.ListFilter{All: true})
	if err != nil {
		return "", fmt.Errorf("list containers for naming: %w", err)
	}
	return firstFreeIndex(applied, existing), nil
}

// applyNamePattern substitutes every placeholder except %i. Unknown
// placeholders are kept verbatim.
func applyNamePattern(pattern, project string, w workload.Workload, millis int64) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' || i+1 == len(pattern) {
			b.WriteByte(pattern[i])
			continue
		}
		i++
		switch pattern[i] {
		case 'p':
			b.WriteString(project)
		case 'n':
			b.WriteString(cleanImageName(w.Name))
		case 'a':
			if w.Alias != "" {
				b.WriteString(w.Alias)
			} else {
				b.WriteString(cleanImageName(w.Name))
			}
		case 't':
			b.WriteString(strconv.FormatInt(millis, 10))
		default:
			b.WriteByte('%')
			b.WriteByte(pattern[i])
		}
	}
	// An empty project would otherwise leave a leading separator.
	return strings.TrimLeft(b.String(), "-_.")
}

func firstFreeIndex(applied string, existing []container.Summary) string {
	taken := make(map[string]bool, len(existing))
	for _, c := range existing {
		taken[c.Name] = true
	}
	for i := 1; ; i++ {
		name := strings.ReplaceAll(applied, indexPlaceholder, strconv.Itoa(i))
		if !taken[name] {
			return name
		}
	}
}

// cleanImageName reduces an image reference to its repository's last path
// element, with characters docker rejects in names replaced.
func cleanImageName(image string) string {
	name := image
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, ":"); i > strings.LastIndex(name, "/") {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return unsafeNameChars.ReplaceAllString(name, "_")
}
