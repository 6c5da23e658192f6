package spotify

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
)

// CreatePlaylist creates a new playlist owned by userID and returns its ID.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error) {
	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist: %w", err)
	}
	return playlist.ID.String(), nil
}

// AddTracksToPlaylist appends tracks to a playlist in order, batching to the
// API limit of 100 tracks per request.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	ids := lo.Map(trackIDs, func(id string, _ int) spotify.ID { return spotify.ID(id) })

	for i, batch := range lo.Chunk(ids, maxIDsPerRequest) {
		if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...); err != nil {
			start := i*maxIDsPerRequest + 1
			return fmt.Errorf("adding tracks (batch %d-%d): %w", start, start+len(batch)-1, err)
		}
	}
	return nil
}

// DeletePlaylist removes a playlist from the current user's library. Spotify
// has no hard delete; unfollowing your own playlist is the equivalent.
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	if err := c.api.UnfollowPlaylist(ctx, spotify.ID(playlistID)); err != nil {
		return fmt.Errorf("deleting playlist %s: %w", playlistID, err)
	}
	return nil
}
