package domain

// QualityDefinition is one tier in a profile's ordered quality list.
type QualityDefinition struct {
	Quality  string `json:"quality" toml:"quality"`
	Allowed  bool   `json:"allowed" toml:"allowed"`
	Priority int    `json:"priority" toml:"priority"`
}

// QualityProfile is the operator's acceptance policy for download candidates.
// Sizes are megabytes and ages are days; zero disables the corresponding check.
type QualityProfile struct {
	ID                  int                 `json:"id" toml:"id"`
	Name                string              `json:"name" toml:"name"`
	Description         string              `json:"description,omitempty" toml:"description"`
	Qualities           []QualityDefinition `json:"qualities,omitempty" toml:"qualities"`
	CutoffQuality       string              `json:"cutoffQuality,omitempty" toml:"cutoff_quality"`
	MinimumSize         int                 `json:"minimumSize" toml:"minimum_size"`
	MaximumSize         int                 `json:"maximumSize" toml:"maximum_size"`
	PreferredFormats    []string            `json:"preferredFormats,omitempty" toml:"preferred_formats"`
	PreferredWords      []string            `json:"preferredWords,omitempty" toml:"preferred_words"`
	MustNotContain      []string            `json:"mustNotContain,omitempty" toml:"must_not_contain"`
	MustContain         []string            `json:"mustContain,omitempty" toml:"must_contain"`
	PreferredLanguages  []string            `json:"preferredLanguages,omitempty" toml:"preferred_languages"`
	MinimumSeeders      int                 `json:"minimumSeeders" toml:"minimum_seeders"`
	IsDefault           bool                `json:"isDefault" toml:"is_default"`
	PreferNewerReleases bool                `json:"preferNewerReleases" toml:"prefer_newer_releases"`
	MaximumAge          int                 `json:"maximumAge" toml:"maximum_age"`
}

func DefaultQualityProfile() QualityProfile {
	return QualityProfile{
		Name:                "Default",
		PreferredFormats:    []string{"m4b", "mp3", "m4a", "flac", "opus"},
		PreferredLanguages:  []string{"English"},
		MinimumSeeders:      1,
		PreferNewerReleases: true,
	}
}

// Indexer is the subset of indexer settings the scorers consult.
type Indexer struct {
	ID             int    `json:"id" toml:"id"`
	Name           string `json:"name" toml:"name"`
	Type           string `json:"type" toml:"type"`
	Implementation string `json:"implementation,omitempty" toml:"implementation"`
	Priority       int    `json:"priority" toml:"priority"`
	Retention      int    `json:"retention" toml:"retention"`
}

// Release is a downloadable candidate returned by an indexer search.
type Release struct {
	Title                 string `json:"title"`
	Size                  int64  `json:"size"`
	Seeders               *int   `json:"seeders,omitempty"`
	Leechers              *int   `json:"leechers,omitempty"`
	Grabs                 int    `json:"grabs,omitempty"`
	Quality               string `json:"quality,omitempty"`
	Format                string `json:"format,omitempty"`
	Language              string `json:"language,omitempty"`
	Source                string `json:"source,omitempty"`
	DownloadType          string `json:"downloadType,omitempty"`
	TorrentURL            string `json:"torrentUrl,omitempty"`
	NzbURL                string `json:"nzbUrl,omitempty"`
	ResultURL             string `json:"resultUrl,omitempty"`
	IndexerID             int    `json:"indexerId,omitempty"`
	IndexerImplementation string `json:"indexerImplementation,omitempty"`
	PublishedDate         string `json:"publishedDate,omitempty"`
}

// QualityVerdict tags an evaluation outcome.
type QualityVerdict string

const (
	VerdictAccepted QualityVerdict = "accepted"
	VerdictRejected QualityVerdict = "rejected"
)

// QualityScore is the outcome of evaluating one release against a profile.
// Score is meaningful only when Verdict is VerdictAccepted.
type QualityScore struct {
	Verdict          QualityVerdict `json:"verdict"`
	Score            int            `json:"score"`
	Breakdown        map[string]int `json:"breakdown,omitempty"`
	RejectionReasons []string       `json:"rejectionReasons,omitempty"`
}

func (q QualityScore) IsRejected() bool {
	return q.Verdict == VerdictRejected
}

// CompositeScore ranks already accepted releases; it never rejects.
type CompositeScore struct {
	Total     float64            `json:"total"`
	Breakdown map[string]float64 `json:"breakdown"`
}
