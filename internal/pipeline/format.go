package pipeline

import "askhub.app/askhub/internal/domain"

// DedupeSources drops repeated citations by URL while preserving the order in
// which sources were first retrieved.
func DedupeSources(sources []domain.Source) []domain.Source {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(sources))
	out := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}
