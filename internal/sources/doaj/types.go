package doaj

// searchResponse is the DOAJ article search envelope.
type searchResponse struct {
	Total   int       `json:"total"`
	Results []article `json:"results"`
}

type article struct {
	ID      string  `json:"id"`
	BibJSON bibJSON `json:"bibjson"`
}

type bibJSON struct {
	Title      string       `json:"title"`
	Abstract   string       `json:"abstract"`
	Year       string       `json:"year"`
	Month      string       `json:"month"`
	Author     []author     `json:"author"`
	Journal    journal      `json:"journal"`
	Identifier []identifier `json:"identifier"`
	Link       []link       `json:"link"`
	Keywords   []string     `json:"keywords"`
}

type author struct {
	Name string `json:"name"`
}

type journal struct {
	Title string `json:"title"`
}

type identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type link struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}
