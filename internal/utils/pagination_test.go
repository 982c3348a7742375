package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"42", 0, 42},
		{"", 10, 10},
		{"x", 5, 5},
		{"-3", 1, -3},
		{"4.2", 7, 7},
	}
	for _, c := range cases {
		if got := AtoiDefault(c.in, c.def); got != c.want {
			t.Errorf("AtoiDefault(%q, %d) = %d, want %d", c.in, c.def, got, c.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		pageStr, sizeStr   string
		wantPage, wantSize int
	}{
		{"", "", 1, 20},
		{"3", "50", 3, 50},
		{"-2", "0", 1, 1},
		{"x", "9999", 1, 100},
	}
	for _, c := range cases {
		page, size := ClampPage(c.pageStr, c.sizeStr, 1, 20, 100)
		if page != c.wantPage || size != c.wantSize {
			t.Errorf("ClampPage(%q, %q) = (%d, %d), want (%d, %d)",
				c.pageStr, c.sizeStr, page, size, c.wantPage, c.wantSize)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{45, 20, 3},
		{10, 0, 0},
	}
	for _, c := range cases {
		if got := TotalPages(c.total, c.size); got != c.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", c.total, c.size, got, c.want)
		}
	}
}
