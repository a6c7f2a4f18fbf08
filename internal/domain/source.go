package domain

import (
	"strings"
	"time"
)

// SourceType tells the importer how to fetch a source.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// Source is a directory or git repository of markdown card files owned by
// one user in one tenant.
type Source struct {
	ID          int64      `json:"id"`
	TenantID    string     `json:"tenant_id"`
	OwnerID     string     `json:"owner_id"`
	CategoryID  string     `json:"category_id"`
	Path        string     `json:"path"`
	Type        SourceType `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

// SourceTypeFor guesses the source type from its path.
func SourceTypeFor(path string) SourceType {
	if strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "ssh://") {
		return SourceGit
	}
	return SourceLocal
}
