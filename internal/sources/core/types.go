package core

// searchResponse is the CORE v3 works search envelope.
type searchResponse struct {
	TotalHits int    `json:"totalHits"`
	Results   []work `json:"results"`
}

type work struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Abstract      string    `json:"abstract"`
	Authors       []author  `json:"authors"`
	DOI           string    `json:"doi"`
	PublishedDate string    `json:"publishedDate"`
	YearPublished int       `json:"yearPublished"`
	DownloadURL   string    `json:"downloadUrl"`
	Publisher     string    `json:"publisher"`
	Journals      []journal `json:"journals"`
	Links         []link    `json:"links"`
}

type author struct {
	Name string `json:"name"`
}

type journal struct {
	Title string `json:"title"`
}

type link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}
