package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/music"
)

// TopTracks returns the user's top tracks for rng. The first page is fetched
// with the maximum page size, then "next" pages are followed until the page
// limit is reached or the listing ends.
func (c *Client) TopTracks(ctx context.Context, rng music.TimeRange) ([]music.Track, error) {
	page, err := c.api.CurrentUsersTopTracks(ctx, spotify.Limit(pageSize), spotify.Timerange(spotify.Range(rng)))
	if err != nil {
		return nil, fmt.Errorf("fetching top tracks: %w", err)
	}

	var tracks []music.Track
	for fetched := 1; ; fetched++ {
		for _, t := range page.Tracks {
			tracks = append(tracks, toTrack(t))
		}

		if fetched >= c.maxPages {
			break
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching top tracks page %d: %w", fetched+1, err)
		}
	}

	c.logger.Debug("fetched top tracks",
		zap.String("time_range", rng.String()), zap.Int("count", len(tracks)))
	return tracks, nil
}

// TopArtists returns the user's top artists for rng, paging like TopTracks.
func (c *Client) TopArtists(ctx context.Context, rng music.TimeRange) ([]music.Artist, error) {
	page, err := c.api.CurrentUsersTopArtists(ctx, spotify.Limit(pageSize), spotify.Timerange(spotify.Range(rng)))
	if err != nil {
		return nil, fmt.Errorf("fetching top artists: %w", err)
	}

	var artists []music.Artist
	for fetched := 1; ; fetched++ {
		for _, a := range page.Artists {
			artists = append(artists, toArtist(a))
		}

		if fetched >= c.maxPages {
			break
		}
		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching top artists page %d: %w", fetched+1, err)
		}
	}

	c.logger.Debug("fetched top artists",
		zap.String("time_range", rng.String()), zap.Int("count", len(artists)))
	return artists, nil
}
