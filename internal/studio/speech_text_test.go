package studio

import "testing"

func TestSpeakable(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops emoji and markdown markers",
			in:   "Sure \U0001F60A **let's** do this / now.",
			want: "Sure let's do this now.",
		},
		{
			name: "keeps link label and removes url",
			in:   "Read [the docs](https://example.com/docs) first.",
			want: "Read the docs first.",
		},
		{
			name: "removes code blocks and inline code",
			in:   "```bash\nnpm run dev\n```\nThen run `make test` ✅",
			want: "Then run",
		},
		{
			name: "collapses symbol runs",
			in:   "Hello***world///again",
			want: "Hello world again",
		},
		{
			name: "nothing left",
			in:   "`code only`",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := speakable(tc.in); got != tc.want {
				t.Fatalf("speakable(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
