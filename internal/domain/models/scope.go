package models

// Scope is a named permission unit a token can carry
type Scope struct {
	ID          string `json:"id" db:"id"`
	Description string `json:"description" db:"description"`
}

// ScopeIDs returns identifiers of scopes preserving their order
func ScopeIDs(scopes []Scope) []string {
	ids := make([]string, 0, len(scopes))
	for _, s := range scopes {
		ids = append(ids, s.ID)
	}
	return ids
}

// UniqueScopes drops repeated identifiers, first occurrence wins
func UniqueScopes(scopes []Scope) []Scope {
	seen := make(map[string]struct{}, len(scopes))
	result := make([]Scope, 0, len(scopes))
	for _, s := range scopes {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		result = append(result, s)
	}
	return result
}

// ScopesFromIDs builds scopes carrying identifiers only
func ScopesFromIDs(ids []string) []Scope {
	scopes := make([]Scope, 0, len(ids))
	for _, id := range ids {
		scopes = append(scopes, Scope{ID: id})
	}
	return scopes
}
