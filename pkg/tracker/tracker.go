package tracker

import (
	"context"
	"strings"

	"github.com/worklogs/worklogs/pkg/worklog"
)

// ItemKind is the issue type name reported by the tracker.
type ItemKind string

// KindEpic marks container issues whose children are expanded by the collector.
const KindEpic ItemKind = "Epic"

// Item is a search result: an issue key and its kind.
type Item struct {
	Key  string
	Kind ItemKind
}

func (i Item) IsEpic() bool { return i.Kind == KindEpic }

// Client is the read-only view of an issue tracker used by the collector
// and the extractor. Implementations handle pagination and retries.
type Client interface {
	// Search returns every issue matching the query.
	Search(ctx context.Context, jql string) ([]Item, error)
	// EpicChildren returns the issues that belong to an epic.
	EpicChildren(ctx context.Context, epicKey string) ([]Item, error)
	// Links returns the keys of issues cross-linked to key, in both directions.
	Links(ctx context.Context, key string) ([]string, error)
	// Subtasks returns the keys of key's subtasks.
	Subtasks(ctx context.Context, key string) ([]string, error)
	Worklogs(ctx context.Context, key string) ([]worklog.Worklog, error)
	Metadata(ctx context.Context, key string) (worklog.Metadata, error)
}

// Namespace returns the project prefix of an issue key ("ZYN" for "ZYN-12").
func Namespace(key string) string {
	i := strings.LastIndex(key, "-")
	if i <= 0 {
		return ""
	}
	return key[:i]
}

// InNamespace reports whether key belongs to the given project.
func InNamespace(key, project string) bool {
	return project != "" && Namespace(key) == project
}
