package spotify

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/music"
)

// maxIDsPerRequest is the Web API limit for batch endpoints.
const maxIDsPerRequest = 100

// AudioFeatures retrieves audio features for the given track IDs, batching
// requests to the API limit. Tracks without features are omitted from the
// result.
func (c *Client) AudioFeatures(ctx context.Context, trackIDs []string) ([]music.AudioFeatures, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}

	ids := lo.Map(trackIDs, func(id string, _ int) spotify.ID { return spotify.ID(id) })

	var out []music.AudioFeatures
	for i, batch := range lo.Chunk(ids, maxIDsPerRequest) {
		features, err := c.api.GetAudioFeatures(ctx, batch...)
		if err != nil {
			start := i*maxIDsPerRequest + 1
			return nil, fmt.Errorf("fetching audio features (batch %d-%d): %w", start, start+len(batch)-1, err)
		}
		for _, f := range features {
			if f == nil {
				continue
			}
			out = append(out, toAudioFeatures(f))
		}
	}

	c.logger.Debug("fetched audio features",
		zap.Int("requested", len(trackIDs)), zap.Int("found", len(out)))
	return out, nil
}
