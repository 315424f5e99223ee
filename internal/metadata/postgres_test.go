package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

func TestUpsertPageInsertsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "pages")
	require.NoError(t, err)

	key := scraper.DeriveKey("example.com", "https://example.com/")
	crawledAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO pages").
		WithArgs("https://example.com/", key.String(), "en", crawledAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.UpsertPage(context.Background(), "https://example.com/", key, "en", crawledAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageIsRepeatable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "pages")
	require.NoError(t, err)

	key := scraper.DeriveKey("example.com", "https://example.com/products")
	first := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	mock.ExpectExec("INSERT INTO pages").
		WithArgs("https://example.com/products", key.String(), "en", first).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// The conflict arm updates in place, so the same statement runs again.
	mock.ExpectExec("INSERT INTO pages").
		WithArgs("https://example.com/products", key.String(), "en", second).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpsertPage(context.Background(), "https://example.com/products", key, "en", first))
	require.NoError(t, store.UpsertPage(context.Background(), "https://example.com/products", key, "en", second))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "pages")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO pages").
		WillReturnError(errors.New("connection reset"))

	err = store.UpsertPage(
		context.Background(),
		"https://example.com/",
		scraper.DeriveKey("example.com", "https://example.com/"),
		"en",
		time.Now(),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert page")
}

func TestUpsertPageRequiresURL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "pages")
	require.NoError(t, err)

	err = store.UpsertPage(context.Background(), "", scraper.StorageKey{}, "en", time.Now())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStoreWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStoreWithPool(mock, "pages; drop table pages")
	require.Error(t, err)
}
