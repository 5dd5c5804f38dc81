package version

import (
	"runtime/debug"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	withVCS := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			},
		}, true
	}
	none := func() (*debug.BuildInfo, bool) { return nil, false }

	tests := []struct {
		name              string
		ver, commit, time string
		read              func() (*debug.BuildInfo, bool)
		want              Info
		str               string
	}{
		{
			name: "ldflags win",
			ver:  "v1.2.0", commit: "abc", time: "t",
			read: withVCS,
			want: Info{Version: "v1.2.0", Commit: "abc", BuildTime: "t"},
			str:  "v1.2.0 (abc)",
		},
		{
			name: "build info fills gaps",
			read: withVCS,
			want: Info{Version: "dev", Commit: "0123456789abcdef0123", BuildTime: "2026-01-02T03:04:05Z"},
			str:  "dev (0123456789ab)",
		},
		{
			name: "nothing known",
			read: none,
			want: Info{Version: "dev"},
			str:  "dev",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := resolve(tc.ver, tc.commit, tc.time, tc.read)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
			}
			if got.String() != tc.str {
				t.Fatalf("String() = %q, want %q", got.String(), tc.str)
			}
		})
	}
}
