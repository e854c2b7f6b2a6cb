package pdf

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func TestParsePages(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"", []int{}},
		{"   ", []int{}},
		{"1,3,5-8,3", []int{1, 3, 5, 6, 7, 8}},
		{"1 2 3", []int{1, 2, 3}},
		{"3, 1\t2", []int{3, 1, 2}},
		{"2-2", []int{2}},
		{"4-6,5,1", []int{4, 5, 6, 1}},
	}
	for _, tc := range cases {
		got, err := ParsePages(tc.in)
		if err != nil {
			t.Fatalf("ParsePages(%q) returned error: %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParsePages(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParsePagesIdempotent(t *testing.T) {
	first, err := ParsePages("9,1-3,2,7")
	if err != nil {
		t.Fatalf("ParsePages returned error: %v", err)
	}
	again, err := ParsePages(joinPages(first))
	if err != nil {
		t.Fatalf("ParsePages returned error: %v", err)
	}
	if !reflect.DeepEqual(first, again) {
		t.Fatalf("parse is not idempotent: %v vs %v", first, again)
	}
}

func TestParsePagesErrors(t *testing.T) {
	cases := []struct {
		in   string
		code string
	}{
		{"5-2", CodePageRangeOrder},
		{"0", CodePagesNotPositive},
		{"1,0-3", CodePagesNotPositive},
		{"a", CodeInvalidPages},
		{"1-", CodeInvalidPages},
		{"-3", CodeInvalidPages},
		{"1-2-3", CodeInvalidPages},
		{"999999999999999999999", CodePageTooLarge},
	}
	for _, tc := range cases {
		_, err := ParsePages(tc.in)
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("ParsePages(%q) error = %v, want *Error", tc.in, err)
		}
		if apiErr.Code != tc.code {
			t.Fatalf("ParsePages(%q) code = %s, want %s", tc.in, apiErr.Code, tc.code)
		}
	}
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
