// internal/discovery/signatures.go
package discovery

import "regexp"

// Signature is one recognizable title/artist shape. Signatures are data
// evaluated in priority order, so newly discovered shapes extend the list
// without new executable logic.
type Signature struct {
	Name        string `yaml:"name" json:"name"`
	Pattern     string `yaml:"pattern" json:"pattern"`
	TitleGroup  int    `yaml:"title_group" json:"title_group"`
	ArtistGroup int    `yaml:"artist_group" json:"artist_group"`

	re *regexp.Regexp
}

// Compile prepares the signature's regular expression. Invalid patterns
// make the signature inert rather than failing the caller.
func (s *Signature) Compile() error {
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return err
	}
	s.re = re
	return nil
}

// Match applies the signature to one line of item text. It returns the
// captured title and artist, or ok=false when the shape does not apply.
func (s *Signature) Match(text string) (title, artist string, ok bool) {
	if s.re == nil {
		if err := s.Compile(); err != nil {
			return "", "", false
		}
	}
	m := s.re.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	if s.TitleGroup > 0 && s.TitleGroup < len(m) {
		title = m[s.TitleGroup]
	}
	if s.ArtistGroup > 0 && s.ArtistGroup < len(m) {
		artist = m[s.ArtistGroup]
	}
	if title == "" {
		return "", "", false
	}
	return title, artist, true
}

// DefaultSignatures returns the built-in separator corpus observed across
// music publications: dash forms, colon forms, "by" attribution, numbered
// lists and quoted titles.
func DefaultSignatures() []Signature {
	sigs := []Signature{
		{
			Name:        "numbered_artist_dash_title",
			Pattern:     `^\s*\d+[.)]\s*(.+?)\s+[-\x{2013}\x{2014}]\s+(.+)$`,
			TitleGroup:  2,
			ArtistGroup: 1,
		},
		{
			Name:        "quoted_title_by_artist",
			Pattern:     `^"(.+?)"\s+by\s+(.+)$`,
			TitleGroup:  1,
			ArtistGroup: 2,
		},
		{
			Name:        "quoted_title_dash_artist",
			Pattern:     `^"(.+?)"\s*[-\x{2013}\x{2014}]\s*(.+)$`,
			TitleGroup:  1,
			ArtistGroup: 2,
		},
		{
			Name:        "artist_dash_quoted_title",
			Pattern:     `^(.+?)\s*[-\x{2013}\x{2014}]\s*"(.+?)"$`,
			TitleGroup:  2,
			ArtistGroup: 1,
		},
		{
			Name:        "artist_colon_title",
			Pattern:     `^([^:]{1,100}):\s+(.+)$`,
			TitleGroup:  2,
			ArtistGroup: 1,
		},
		{
			Name:        "artist_dash_title",
			Pattern:     `^(.+?)\s+[-\x{2013}\x{2014}]\s+(.+)$`,
			TitleGroup:  2,
			ArtistGroup: 1,
		},
		{
			Name:        "title_by_artist",
			Pattern:     `^(.+?)\s+by\s+(.+)$`,
			TitleGroup:  1,
			ArtistGroup: 2,
		},
	}
	for i := range sigs {
		// Patterns above are static and known-good; Compile cannot fail.
		_ = sigs[i].Compile()
	}
	return sigs
}
