//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// txPool adapts a pgxpool to Transactor for the tests.
type txPool struct {
	*pgxpool.Pool
}

func (p txPool) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, p.Pool, fn)
}

func startMigratedPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("materials"),
		tcpostgres.WithUsername("aggregator"),
		tcpostgres.WithPassword("password"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://"+filepath.Join("..", "database", "migrations"), dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPersister_Integration(t *testing.T) {
	pool := startMigratedPostgres(t)
	ctx := context.Background()
	persister := NewPersister(txPool{pool}, zerolog.Nop())

	published := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	records := []domain.Record{
		{
			Kind: domain.KindPaper, Source: domain.SourceDOAJ, Title: "Graphene membranes",
			DOI: "10.1000/ABC", PublishedAt: &published, VenueOrJournal: "DOAJ",
			MaterialsFocus: []string{"2D materials"}, Keywords: []string{"synthesis"},
		},
		{
			Kind: domain.KindPaper, Source: domain.SourcePubMedCentral, Title: "Graphene membranes (PMC copy)",
			DOI: "10.1000/abc", VenueOrJournal: "PubMed Central",
		},
		{
			Kind: domain.KindNews, Source: domain.SourceNewsAPI, Title: "Steel prices",
			SourceURL: "https://news.example/steel", PublishedAt: &published,
		},
		{
			Kind: domain.KindEvent, Source: domain.SourceAllEvents, Title: "Polymer Summit",
			PublishedAt: &published, StartTime: "09:00",
		},
	}

	first, err := persister.Upsert(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, 1, first.Duplicates)

	second, err := persister.Upsert(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 4, second.Duplicates)

	papers := NewPgPaperRepository(pool)
	page, err := papers.List(ctx, PaperFilter{MaterialsFocus: "2D materials"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Graphene membranes", page.Items[0].Title)
	assert.Equal(t, "10.1000/ABC", page.Items[0].DOI)

	found, err := papers.Search(ctx, "membrane", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	stats, err := NewPgNewsRepository(pool).Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalNews)

	_, err = NewPgEventRepository(pool).Create(ctx, domain.Record{Title: "Polymer Summit", PublishedAt: &published})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}
