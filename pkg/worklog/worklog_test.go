package worklog

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCommentNormalization(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "absent", raw: ``, want: ""},
		{name: "null", raw: `null`, want: ""},
		{name: "plain string", raw: `"fixed the build"`, want: "fixed the build"},
		{
			name: "document first text node",
			raw:  `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"done"},{"type":"text","text":" and more"}]},{"type":"paragraph","content":[{"type":"text","text":"second"}]}]}`,
			want: "done",
		},
		{name: "document without blocks", raw: `{"type":"doc","content":[]}`, want: ""},
		{name: "document without content", raw: `{"type":"doc"}`, want: ""},
		{name: "block without text node", raw: `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"hardBreak"}]}]}`, want: ""},
		{name: "content not an array", raw: `{"type":"doc","content":"oops"}`, want: `{"type":"doc","content":"oops"}`},
		{name: "block not an object", raw: `{"content":["oops"]}`, want: `{"content":["oops"]}`},
		{name: "text not a string", raw: `{"content":[{"content":[{"text":42}]}]}`, want: `{"content":[{"content":[{"text":42}]}]}`},
		{name: "unexpected scalar", raw: `42`, want: `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseComment([]byte(tt.raw)).Text()
			if got != tt.want {
				t.Fatalf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommentKinds(t *testing.T) {
	if k := ParseComment(nil).Kind; k != CommentAbsent {
		t.Fatalf("nil comment kind = %v", k)
	}
	if k := ParseComment([]byte(`"x"`)).Kind; k != CommentText {
		t.Fatalf("string comment kind = %v", k)
	}
	if k := ParseComment([]byte(`{"content":[]}`)).Kind; k != CommentDocument {
		t.Fatalf("document comment kind = %v", k)
	}
}

func TestWorklogSurvivesJSON(t *testing.T) {
	in := []Worklog{
		{ID: "1", Author: "Ada", TimeSpent: "1h", TimeSpentSeconds: 3600, Comment: TextComment("plain")},
		{ID: "2", Author: "Bob", Comment: DocumentComment([]byte(`{"content":[{"content":[{"text":"done"}]}]}`))},
		{ID: "3", Author: "Cy"},
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []Worklog
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var texts []string
	for _, w := range out {
		texts = append(texts, w.Comment.Text())
	}
	if diff := cmp.Diff([]string{"plain", "done", ""}, texts); diff != "" {
		t.Fatalf("comment texts mismatch (-want +got):\n%s", diff)
	}
	if out[2].Comment.Kind != CommentAbsent {
		t.Fatalf("absent comment came back as kind %v", out[2].Comment.Kind)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "3h 30m", want: 12600},
		{in: "1d", want: 8 * 3600},
		{in: "1w 2d", want: 7 * 8 * 3600},
		{in: "45m", want: 2700},
		{in: "1.5h", want: 5400},
		{in: "30s", want: 30},
		{in: " 2H  15M ", want: 8100},
		{in: "", wantErr: true},
		{in: "3 hours", wantErr: true},
		{in: "3x", wantErr: true},
		{in: "99999999999999999999w", wantErr: true},
		{in: "2562047788015216h", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDuration(%q) expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewTimeEntry(t *testing.T) {
	md := Metadata{IssueType: "Story", Summary: "Login page", Components: []string{"web"}}

	t.Run("reported seconds win", func(t *testing.T) {
		e := NewTimeEntry("ZYN-1", md, Worklog{ID: "10", Author: "Ada", TimeSpent: "1h", TimeSpentSeconds: 1800})
		if e.DurationSeconds != 1800 {
			t.Fatalf("DurationSeconds = %d", e.DurationSeconds)
		}
	})

	t.Run("falls back to text", func(t *testing.T) {
		e := NewTimeEntry("ZYN-1", md, Worklog{ID: "11", Author: "Ada", TimeSpent: "3h 30m"})
		if e.DurationSeconds != 12600 {
			t.Fatalf("DurationSeconds = %d", e.DurationSeconds)
		}
		if e.Hours() != 3.5 {
			t.Fatalf("Hours() = %v", e.Hours())
		}
	})

	t.Run("never negative", func(t *testing.T) {
		e := NewTimeEntry("ZYN-1", md, Worklog{ID: "12", TimeSpentSeconds: -60})
		if e.DurationSeconds != 0 {
			t.Fatalf("DurationSeconds = %d", e.DurationSeconds)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		e := NewTimeEntry("ZYN-2", Metadata{}, Worklog{ID: "13", Started: "2024-03-15T10:30:00.000+0000"})
		want := TimeEntry{
			ItemKey:     "ZYN-2",
			ItemKind:    UnknownIssueType,
			ProductItem: NoneValue,
			Team:        NoneValue,
			EntryID:     "13",
			Author:      "Unknown",
			StartedAt:   "2024-03-15T10:30:00.000+0000",
		}
		if diff := cmp.Diff(want, e); diff != "" {
			t.Fatalf("entry mismatch (-want +got):\n%s", diff)
		}
		if e.YearMonth() != "2024-03" {
			t.Fatalf("YearMonth() = %q", e.YearMonth())
		}
	})
}
