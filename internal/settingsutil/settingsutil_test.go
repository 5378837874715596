package settingsutil

import "testing"

func TestValidIdentifier(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"locks", true},
		{"_locks", true},
		{"locks_v2", true},
		{"", false},
		{"2locks", false},
		{"locks;drop table x", false},
		{"locks table", false},
		{"locks-v2", false},
	}
	for _, c := range cases {
		if got := ValidIdentifier(c.name); got != c.want {
			t.Errorf("ValidIdentifier(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestPresentKeys(t *testing.T) {
	lookup := func(k string) string {
		m := map[string]string{"A": "1", "C": "3"}
		return m[k]
	}
	got := PresentKeys(lookup, "A", "B", "C")
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("PresentKeys() = %v, want [A C]", got)
	}
}

func TestPresentKeysNoneSet(t *testing.T) {
	lookup := func(string) string { return "" }
	got := PresentKeys(lookup, "A", "B")
	if len(got) != 0 {
		t.Errorf("PresentKeys() = %v, want empty", got)
	}
}

func TestRequireExactlyOneGroupURLMode(t *testing.T) {
	lookup := func(k string) string {
		if k == "URL" {
			return "x://y"
		}
		return ""
	}
	offending, err := RequireExactlyOneGroup(lookup, "URL", "HOST", "PORT")
	if err != nil || offending != nil {
		t.Fatalf("offending=%v err=%v, want nil, nil", offending, err)
	}
}

func TestRequireExactlyOneGroupFieldMode(t *testing.T) {
	lookup := func(k string) string {
		m := map[string]string{"HOST": "localhost", "PORT": "5432"}
		return m[k]
	}
	offending, err := RequireExactlyOneGroup(lookup, "URL", "HOST", "PORT")
	if err != nil || offending != nil {
		t.Fatalf("offending=%v err=%v, want nil, nil", offending, err)
	}
}

func TestRequireExactlyOneGroupMixed(t *testing.T) {
	lookup := func(k string) string {
		m := map[string]string{"URL": "x://y", "HOST": "localhost"}
		return m[k]
	}
	offending, err := RequireExactlyOneGroup(lookup, "URL", "HOST", "PORT")
	if err == nil {
		t.Fatal("expected an error for mixed modes")
	}
	want := map[string]bool{"URL": true, "HOST": true}
	if len(offending) != len(want) {
		t.Fatalf("offending = %v, want %v", offending, want)
	}
	for _, k := range offending {
		if !want[k] {
			t.Errorf("unexpected offending key %q", k)
		}
	}
}

func TestRequireExactlyOneGroupNeither(t *testing.T) {
	lookup := func(string) string { return "" }
	offending, err := RequireExactlyOneGroup(lookup, "URL", "HOST", "PORT")
	if err == nil {
		t.Fatal("expected an error when neither mode is present")
	}
	if offending != nil {
		t.Errorf("offending = %v, want nil for the neither-mode case", offending)
	}
}

func TestRequireExactlyOneGroupIncompleteFields(t *testing.T) {
	lookup := func(k string) string {
		m := map[string]string{"HOST": "localhost"}
		return m[k]
	}
	offending, err := RequireExactlyOneGroup(lookup, "URL", "HOST", "PORT", "DB")
	if err == nil {
		t.Fatal("expected an error for an incomplete field set")
	}
	want := map[string]bool{"PORT": true, "DB": true}
	if len(offending) != len(want) {
		t.Fatalf("offending = %v, want %v", offending, want)
	}
	for _, k := range offending {
		if !want[k] {
			t.Errorf("unexpected offending key %q", k)
		}
	}
}
