package extraction

import (
	"fmt"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

// entity is the common shape of professionals and services for resolution.
type entity struct {
	ID   string
	Name string
}

func activeProfessionals(profs []scheduling.Professional) []entity {
	out := make([]entity, 0, len(profs))
	for _, p := range profs {
		if p.Active {
			out = append(out, entity{ID: p.ID, Name: p.Name})
		}
	}
	return out
}

func serviceEntities(svcs []scheduling.Service) []entity {
	out := make([]entity, 0, len(svcs))
	for _, s := range svcs {
		out = append(out, entity{ID: s.ID, Name: s.Name})
	}
	return out
}

// resolveEntity maps a raw name to a catalog entry: exact folded match, then
// a unique whole-word containment in either direction, then the latest catalog name
// mentioned in transcript.
func resolveEntity(kind, raw string, catalog []entity, transcript string) (entity, error) {
	needle := textnorm.Fold(raw)
	if needle != "" {
		for _, e := range catalog {
			if textnorm.Fold(e.Name) == needle {
				return e, nil
			}
		}

		var partial []entity
		for _, e := range catalog {
			name := textnorm.Fold(e.Name)
			if name == "" {
				continue
			}
			if lastPhraseIndex(name, needle) >= 0 || lastPhraseIndex(needle, name) >= 0 {
				partial = append(partial, e)
			}
		}
		if len(partial) == 1 {
			return partial[0], nil
		}
	}

	if transcript != "" {
		names := make([]string, len(catalog))
		for i, e := range catalog {
			names[i] = e.Name
		}
		if name, ok := (KnownEntityScan{Names: names}).Apply(transcript); ok {
			for _, e := range catalog {
				if e.Name == name {
					return e, nil
				}
			}
		}
	}
	return entity{}, fmt.Errorf("%w: %s %q", ErrResolutionFailure, kind, raw)
}

// entityByID finds an entry by id, falling back to name resolution when the
// model returned a name where an id was expected.
func entityByID(kind, id string, catalog []entity) (entity, error) {
	for _, e := range catalog {
		if e.ID == id {
			return e, nil
		}
	}
	return resolveEntity(kind, id, catalog, "")
}

// mentioned reports whether the transcript names the entity, by full name or
// by any distinctive word of it.
func mentioned(e entity, transcript string) bool {
	if containsWord(transcript, e.Name) {
		return true
	}
	for _, w := range strings.Fields(textnorm.Fold(e.Name)) {
		if len(w) >= 4 && containsWord(transcript, w) {
			return true
		}
	}
	return false
}
