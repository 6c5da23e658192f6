package stats

import (
	"time"

	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/store"
)

func trackEntity(userID string, rng music.TimeRange, rank int, t music.Track, fetchedAt time.Time) store.TrackEntity {
	artistIDs := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artistIDs[i] = a.ID
	}
	return store.TrackEntity{
		UserID:     userID,
		TimeRange:  rng,
		Rank:       rank,
		ID:         t.ID,
		Name:       t.Name,
		Artists:    t.ArtistNames(),
		ArtistIDs:  artistIDs,
		Album:      t.Album.Name,
		ImageURL:   music.BestImage(t.Album.Images),
		PreviewURL: t.PreviewURL,
		DurationMs: t.DurationMs,
		Popularity: t.Popularity,
		FetchedAt:  fetchedAt,
	}
}

func trackInfo(e store.TrackEntity) music.TrackInfo {
	return music.TrackInfo{
		ID:         e.ID,
		Rank:       e.Rank,
		Name:       e.Name,
		Artists:    e.Artists,
		ArtistIDs:  e.ArtistIDs,
		Album:      e.Album,
		ImageURL:   e.ImageURL,
		PreviewURL: e.PreviewURL,
		DurationMs: e.DurationMs,
		Popularity: e.Popularity,
	}
}

func artistEntity(userID string, rng music.TimeRange, rank int, a music.Artist, fetchedAt time.Time) store.ArtistEntity {
	return store.ArtistEntity{
		UserID:     userID,
		TimeRange:  rng,
		Rank:       rank,
		ID:         a.ID,
		Name:       a.Name,
		Genres:     a.Genres,
		ImageURL:   music.BestImage(a.Images),
		Popularity: a.Popularity,
		Followers:  a.Followers,
		FetchedAt:  fetchedAt,
	}
}

func artistInfo(e store.ArtistEntity) music.ArtistInfo {
	genres := e.Genres
	if genres == nil {
		genres = []string{}
	}
	return music.ArtistInfo{
		ID:         e.ID,
		Rank:       e.Rank,
		Name:       e.Name,
		Genres:     genres,
		ImageURL:   e.ImageURL,
		Popularity: e.Popularity,
		Followers:  e.Followers,
	}
}
