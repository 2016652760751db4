package platform

import "testing"

func TestLookup(t *testing.T) {
	cases := []struct {
		tag  string
		want string
	}{
		{"windows-x64", "windows-x64"},
		{"win64", "windows-x64"},
		{"windows-x86_64", "windows-x64"},
		{"linux", "linux-x64"},
		{"darwin-aarch64", "macos-arm64"},
		{"macos-x64", "macos-x64"},
	}
	for _, c := range cases {
		target, ok := Lookup(c.tag)
		if !ok {
			t.Errorf("Lookup(%q) found nothing", c.tag)
			continue
		}
		if target.Tag != c.want {
			t.Errorf("Lookup(%q) = %q, want %q", c.tag, target.Tag, c.want)
		}
	}
	if _, ok := Lookup("freebsd-x64"); ok {
		t.Error("Lookup accepted an unknown tag")
	}
}

func TestManifestTagsDisjoint(t *testing.T) {
	seen := map[string]string{}
	for _, target := range targets {
		for _, tag := range target.ManifestTags() {
			if owner, dup := seen[tag]; dup {
				t.Errorf("tag %q owned by both %s and %s", tag, owner, target.Tag)
			}
			seen[tag] = target.Tag
		}
	}
}

func TestTargetsHavePatterns(t *testing.T) {
	for _, target := range targets {
		if len(target.Patterns) == 0 {
			t.Errorf("target %s has no artifact patterns", target.Tag)
		}
	}
}

func TestDetect(t *testing.T) {
	tag := Detect()
	if tag == "" {
		t.Skip("no canonical tag for this host")
	}
	if _, ok := Lookup(tag); !ok {
		t.Errorf("Detect returned unknown tag %q", tag)
	}
}
