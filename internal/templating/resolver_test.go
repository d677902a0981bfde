package templating

import (
	"testing"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

func intPtr(n int) *int { return &n }

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		tmpl string
		r    model.Recipient
		want string
	}{
		{
			name: "name and followers",
			tmpl: "Hi {name}, you have {followers} followers",
			r:    model.Recipient{Name: "Ana", Followers: intPtr(500)},
			want: "Hi Ana, you have 500 followers",
		},
		{
			name: "missing attributes become empty",
			tmpl: "Hi {name}, you have {followers} followers",
			r:    model.Recipient{},
			want: "Hi , you have  followers",
		},
		{
			name: "zero count is not missing",
			tmpl: "{following}",
			r:    model.Recipient{Following: intPtr(0)},
			want: "0",
		},
		{
			name: "every occurrence is replaced",
			tmpl: "{username} {username} {url}",
			r:    model.Recipient{Username: "ana.b", URL: "https://x.com/ana.b"},
			want: "ana.b ana.b https://x.com/ana.b",
		},
		{
			name: "bio and unknown placeholders",
			tmpl: "{bio} {unknown}",
			r:    model.Recipient{Bio: "runner"},
			want: "runner {unknown}",
		},
		{
			name: "values are not re-expanded",
			tmpl: "{name}",
			r:    model.Recipient{Name: "{bio}", Bio: "x"},
			want: "{bio}",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Resolve(tc.tmpl, tc.r); got != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.tmpl, got, tc.want)
			}
		})
	}
}
