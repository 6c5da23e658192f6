package spotify

import (
	"github.com/zmb3/spotify/v2"

	"github.com/justestif/spotify-stats/internal/music"
)

func toUserProfile(u *spotify.PrivateUser) *music.UserProfile {
	return &music.UserProfile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Country:     u.Country,
		Product:     u.Product,
		Followers:   int(u.Followers.Count),
		Images:      toImages(u.Images),
	}
}

func toTrack(t spotify.FullTrack) music.Track {
	track := toSimpleTrack(t.SimpleTrack)
	track.Album = toAlbum(t.Album)
	track.Popularity = int(t.Popularity)
	return track
}

// toSimpleTrack converts a track without album or popularity data.
func toSimpleTrack(t spotify.SimpleTrack) music.Track {
	artists := make([]music.Artist, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = music.Artist{ID: a.ID.String(), Name: a.Name}
	}
	return music.Track{
		ID:         t.ID.String(),
		Name:       t.Name,
		Artists:    artists,
		DurationMs: int(t.Duration),
		PreviewURL: t.PreviewURL,
		Explicit:   t.Explicit,
	}
}

func toAlbum(a spotify.SimpleAlbum) music.Album {
	return music.Album{
		ID:          a.ID.String(),
		Name:        a.Name,
		ReleaseDate: a.ReleaseDate,
		Images:      toImages(a.Images),
	}
}

func toArtist(a spotify.FullArtist) music.Artist {
	return music.Artist{
		ID:         a.ID.String(),
		Name:       a.Name,
		Genres:     a.Genres,
		Images:     toImages(a.Images),
		Popularity: int(a.Popularity),
		Followers:  int(a.Followers.Count),
	}
}

func toImages(images []spotify.Image) []music.Image {
	if len(images) == 0 {
		return nil
	}
	out := make([]music.Image, len(images))
	for i, img := range images {
		out[i] = music.Image{URL: img.URL, Width: int(img.Width), Height: int(img.Height)}
	}
	return out
}

func toAudioFeatures(f *spotify.AudioFeatures) music.AudioFeatures {
	return music.AudioFeatures{
		ID:               f.ID.String(),
		Acousticness:     f.Acousticness,
		Danceability:     f.Danceability,
		Energy:           f.Energy,
		Instrumentalness: f.Instrumentalness,
		Liveness:         f.Liveness,
		Loudness:         f.Loudness,
		Speechiness:      f.Speechiness,
		Tempo:            f.Tempo,
		Valence:          f.Valence,
		Key:              int(f.Key),
		Mode:             int(f.Mode),
		TimeSignature:    int(f.TimeSignature),
	}
}
