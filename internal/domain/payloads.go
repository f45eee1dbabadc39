package domain

// NamedRef is the {asin,name} shape both metadata APIs use for people, genres and series.
type NamedRef struct {
	ASIN     string `json:"asin,omitempty"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Position string `json:"position,omitempty"`
}

// AudimetaBook mirrors the audimeta.de /book/{asin} payload.
type AudimetaBook struct {
	ASIN          string     `json:"asin,omitempty"`
	Title         string     `json:"title,omitempty"`
	Subtitle      string     `json:"subtitle,omitempty"`
	Authors       []NamedRef `json:"authors,omitempty"`
	Narrators     []NamedRef `json:"narrators,omitempty"`
	Publisher     string     `json:"publisher,omitempty"`
	PublishDate   string     `json:"publishDate,omitempty"`
	ReleaseDate   string     `json:"releaseDate,omitempty"`
	Description   string     `json:"description,omitempty"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	LengthMinutes int        `json:"lengthMinutes,omitempty"`
	Language      string     `json:"language,omitempty"`
	Genres        []NamedRef `json:"genres,omitempty"`
	Series        []NamedRef `json:"series,omitempty"`
	Explicit      bool       `json:"explicit,omitempty"`
	ISBN          string     `json:"isbn,omitempty"`
	Region        string     `json:"region,omitempty"`
	BookFormat    string     `json:"bookFormat,omitempty"`
}

// AudnexusBook mirrors the api.audnex.us /books/{asin} payload.
type AudnexusBook struct {
	ASIN             string     `json:"asin,omitempty"`
	Title            string     `json:"title,omitempty"`
	Subtitle         string     `json:"subtitle,omitempty"`
	Authors          []NamedRef `json:"authors,omitempty"`
	Narrators        []NamedRef `json:"narrators,omitempty"`
	PublisherName    string     `json:"publisherName,omitempty"`
	ReleaseDate      string     `json:"releaseDate,omitempty"`
	Description      string     `json:"description,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	Image            string     `json:"image,omitempty"`
	RuntimeLengthMin int        `json:"runtimeLengthMin,omitempty"`
	Language         string     `json:"language,omitempty"`
	FormatType       string     `json:"formatType,omitempty"`
	Genres           []NamedRef `json:"genres,omitempty"`
	SeriesPrimary    *NamedRef  `json:"seriesPrimary,omitempty"`
	SeriesSecondary  *NamedRef  `json:"seriesSecondary,omitempty"`
	Copyright        int        `json:"copyright,omitempty"`
	ISBN             string     `json:"isbn,omitempty"`
	Region           string     `json:"region,omitempty"`
	IsAdult          bool       `json:"isAdult,omitempty"`
}
