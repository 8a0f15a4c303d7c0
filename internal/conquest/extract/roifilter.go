package extract

import (
	"fmt"
	"regexp"
)

// ROIFilter filters RTSTRUCT region names. Exclusion patterns run before
// inclusion patterns; an empty include list keeps everything that survived
// the exclusions. Matching is case-insensitive and anchored at the start of
// the name, so "NP" matches "NP boost" but not "Lung NP".
type ROIFilter struct {
	exclude []*regexp.Regexp
	include []*regexp.Regexp
}

// NewROIFilter compiles the given exclusion and inclusion patterns.
func NewROIFilter(exclude, include []string) (*ROIFilter, error) {
	f := &ROIFilter{}
	for _, p := range exclude {
		if p == "" {
			continue
		}
		re, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("bad exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, re)
	}
	for _, p := range include {
		if p == "" {
			continue
		}
		re, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("bad include pattern %q: %w", p, err)
		}
		f.include = append(f.include, re)
	}
	return f, nil
}

// patterns match from the start of the name only
func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)^(?:" + p + ")")
}

// Filter applies the exclusion then the inclusion patterns to names,
// preserving order.
func (f *ROIFilter) Filter(names []string) []string {
	var out []string
	for _, name := range names {
		if f.excluded(name) {
			continue
		}
		if len(f.include) == 0 || f.included(name) {
			out = append(out, name)
		}
	}
	return out
}

func (f *ROIFilter) excluded(name string) bool {
	for _, re := range f.exclude {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (f *ROIFilter) included(name string) bool {
	for _, re := range f.include {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
