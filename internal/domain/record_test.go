package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestSourceType_Label(t *testing.T) {
	assert.Equal(t, "Pubmed Central", SourcePubMedCentral.Label())
	assert.Equal(t, "Doaj", SourceDOAJ.Label())
	assert.Equal(t, "Arxiv", SourceArXiv.Label())
}

func TestSourceType_Kind(t *testing.T) {
	assert.Equal(t, KindNews, SourceNewsAPI.Kind())
	assert.Equal(t, KindEvent, SourceTicketmaster.Kind())
	assert.Equal(t, KindEvent, SourceAllEvents.Kind())
	assert.Equal(t, KindEvent, SourceManual.Kind())
	assert.Equal(t, KindPaper, SourceCORE.Kind())
}

func TestRecord_Validate(t *testing.T) {
	day := ptrTime(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name    string
		record  Record
		wantErr bool
	}{
		{"title only", Record{Kind: KindNews, Title: "Headline"}, false},
		{"date only", Record{Kind: KindEvent, PublishedAt: day}, false},
		{"title and date empty", Record{Kind: KindPaper, Title: "  "}, true},
		{"unknown kind", Record{Kind: "video", Title: "x"}, true},
		{"too many keywords", Record{Kind: KindPaper, Title: "x", Keywords: make([]string, 11)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRecord_NaturalKey(t *testing.T) {
	day := ptrTime(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		record Record
		want   string
	}{
		{"event title and date", Record{Kind: KindEvent, Title: " Jazz Night ", PublishedAt: day}, "event:Jazz Night|2024-06-01"},
		{"event without date", Record{Kind: KindEvent, Title: "Jazz Night"}, "event:Jazz Night|"},
		{"news url", Record{Kind: KindNews, Title: "x", SourceURL: "https://example.com/a"}, "news:https://example.com/a"},
		{"news without url", Record{Kind: KindNews, Title: "x"}, ""},
		{"paper doi lowercased", Record{Kind: KindPaper, DOI: "10.1000/ABC", ArXivID: "2401.1"}, "doi:10.1000/abc"},
		{"paper arxiv", Record{Kind: KindPaper, ArXivID: "2401.00001v1"}, "arxiv:2401.00001v1"},
		{"paper title fallback", Record{Kind: KindPaper, Title: "Graphene   Oxide\tFilms"}, "title:graphene oxide films"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.NaturalKey())
		})
	}
}
