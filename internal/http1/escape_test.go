package http1

import "testing"

func TestDecodePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/plain", "/plain"},
		{"/a%20b", "/a b"},
		{"/%e4%b8%ad", "/中"},
		{"/%E4%B8%AD", "/中"},
		{"/100%", "/100%"},
		{"/%zz", "/%zz"},
		{"/%4", "/%4"},
		{"/a%00b", "/a"},
		{"/a+b", "/a+b"},
	}
	for _, tc := range cases {
		if got := DecodePath(tc.in); got != tc.want {
			t.Errorf("DecodePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEncodePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a b", "a%20b"},
		{"中", "%e4%b8%ad"},
		{"x?y#z", "x%3fy%23z"},
		{"100%", "100%25"},
		{"a&b\"c", "a%26b%22c"},
	}
	for _, tc := range cases {
		if got := EncodePath(tc.in); got != tc.want {
			t.Errorf("EncodePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEncodePath_SafeClassIsIdentity(t *testing.T) {
	safe := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789/_.-~"
	if got := EncodePath(safe); got != safe {
		t.Fatalf("EncodePath changed safe input: %q", got)
	}
}

func TestPathCodec_RoundTrip(t *testing.T) {
	for _, s := range []string{"hello world.txt", "ünïcödé/ファイル", "100% sure!", "a+b=c&d", "~user/.hidden"} {
		if got := DecodePath(EncodePath(s)); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
