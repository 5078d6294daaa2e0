package plot

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var nonAlnum = regexp.MustCompile("[^a-zA-Z0-9]+")

// Slug turns a chart title into a file name stem: transliterated, lower
// case, with runs of other characters collapsed to one underscore.
func Slug(title string) string {
	s := nonAlnum.ReplaceAllString(unidecode.Unidecode(title), "_")
	s = strings.Trim(strings.ToLower(s), "_")
	if s == "" {
		return "chart"
	}
	return s
}
