package pmc

import "encoding/json"

// searchResponse is the esearch JSON envelope.
type searchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// summaryResponse is the esummary JSON envelope. Result maps each UID to its
// document summary, next to a "uids" list.
type summaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// documentSummary holds the esummary fields this adapter reads.
type documentSummary struct {
	UID             string      `json:"uid"`
	Title           string      `json:"title"`
	Authors         []author    `json:"authors"`
	FullJournalName string      `json:"fulljournalname"`
	Source          string      `json:"source"`
	PubDate         string      `json:"pubdate"`
	EPubDate        string      `json:"epubdate"`
	ELocationID     string      `json:"elocationid"`
	ArticleIDs      []articleID `json:"articleids"`
}

type author struct {
	Name string `json:"name"`
}

type articleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}
