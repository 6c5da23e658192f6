package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/spotify-stats/internal/auth"
	"github.com/justestif/spotify-stats/internal/clustering"
	"github.com/justestif/spotify-stats/internal/music"
	"github.com/justestif/spotify-stats/internal/playlist"
	statsync "github.com/justestif/spotify-stats/internal/sync"
	"github.com/justestif/spotify-stats/internal/web"
)

func (a *app) serve(ctx context.Context) error {
	var sessions web.SessionManager
	if a.database != nil {
		sessions = web.NewDBSessionStore(a.database, a.cfg.Server.SessionTTL)
	} else {
		sessions = web.NewMemorySessionStore(a.cfg.Server.SessionTTL)
	}
	go a.pruneSessions(ctx, sessions)

	server, err := web.NewServer(web.ServerConfig{
		Addr:           a.cfg.Server.Addr,
		Auth:           a.auth,
		Sessions:       sessions,
		SessionTTL:     a.cfg.Server.SessionTTL,
		Store:          a.store,
		Sync:           a.syncService(),
		SpotifyOptions: a.spotifyOptions(),
		StatsOptions:   a.statsOptions(),
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return server.Run(ctx)
}

// pruneSessions deletes expired sessions every hour.
func (a *app) pruneSessions(ctx context.Context, sessions web.SessionManager) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := sessions.DeleteExpired(ctx)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("pruning sessions", zap.Error(err))
		} else if n > 0 {
			a.logger.Info("pruned expired sessions", zap.Int64("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) login(ctx context.Context) error {
	repo := a.tokenRepository()
	if err := repo.Logout(ctx); err != nil {
		return fmt.Errorf("clearing stored token: %w", err)
	}
	if err := a.cache.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	flow := auth.NewLoginFlow(a.auth, repo, a.cfg.Spotify.RedirectURL, a.out)
	if _, err := flow.Run(ctx); err != nil {
		return err
	}

	s, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", s.profile)
	fmt.Fprintf(a.out, "Token saved to %s\n", a.tokens.Path())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.tokenRepository().Logout(ctx); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	if err := a.cache.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// topArgs are the parsed arguments of the top command.
type topArgs struct {
	kind    string
	rng     music.TimeRange
	refresh bool
	json    bool
}

func parseTopArgs(args []string) (topArgs, error) {
	if len(args) == 0 {
		return topArgs{}, fmt.Errorf("%w: top needs one of tracks, artists, genres, moods", errUsage)
	}
	kind := args[0]
	switch kind {
	case "tracks", "artists", "genres", "moods":
	default:
		return topArgs{}, fmt.Errorf("%w: unknown top kind %q", errUsage, kind)
	}

	fs := flag.NewFlagSet("top "+kind, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rangeFlag := fs.String("range", string(music.MediumTerm), "time range")
	refresh := fs.Bool("refresh", false, "ignore stored statistics")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return topArgs{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	rng, err := music.ParseTimeRange(*rangeFlag)
	if err != nil {
		return topArgs{}, err
	}
	return topArgs{kind: kind, rng: rng, refresh: *refresh, json: *asJSON}, nil
}

func (a *app) top(ctx context.Context, args []string) error {
	ta, err := parseTopArgs(args)
	if err != nil {
		return err
	}

	s, err := a.signedIn(ctx)
	if err != nil {
		return err
	}

	switch ta.kind {
	case "tracks":
		tracks, err := s.stats.GetTopTracks(ctx, s.userID, ta.rng, ta.refresh)
		if err != nil {
			return err
		}
		if ta.json {
			return printJSON(a.out, tracks)
		}
		printTracks(a.out, tracks)
	case "artists":
		artists, err := s.stats.GetTopArtists(ctx, s.userID, ta.rng, ta.refresh)
		if err != nil {
			return err
		}
		if ta.json {
			return printJSON(a.out, artists)
		}
		printArtists(a.out, artists)
	case "genres":
		genres, err := s.stats.TopGenres(ctx, s.userID, ta.rng, ta.refresh)
		if err != nil {
			return err
		}
		if ta.json {
			return printJSON(a.out, genres)
		}
		printGenres(a.out, genres)
	case "moods":
		report, err := s.stats.Moods(ctx, s.userID, ta.rng, ta.refresh)
		if err != nil {
			return err
		}
		if ta.json {
			return printJSON(a.out, report)
		}
		fmt.Fprint(a.out, clustering.FormatMoodSummary(report.Moods, report.Outliers))
	}
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 10, "number of results")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	query := strings.Join(fs.Args(), " ")

	s, err := a.signedIn(ctx)
	if err != nil {
		return err
	}

	tracks, err := playlist.NewBuilder(s.client, a.store, a.logger).Search(ctx, query, *limit)
	if err != nil {
		return err
	}
	printSearchResults(a.out, tracks)
	return nil
}

func (a *app) sync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	force := fs.Bool("force", false, "ignore the cooldown")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	s, err := a.signedIn(ctx)
	if err != nil {
		return err
	}

	result, err := a.syncService().SyncAll(ctx, s.stats, s.userID, *force)
	if errors.Is(err, statsync.ErrSyncTooRecent) {
		return fmt.Errorf("%w (use -force to sync anyway)", err)
	}
	if err != nil {
		return err
	}
	for _, r := range result.Ranges {
		fmt.Fprintf(a.out, "%-12s %3d tracks  %3d artists\n", r.TimeRange, r.Tracks, r.Artists)
	}
	return nil
}

func (a *app) syncService() *statsync.Service {
	return statsync.New(a.store,
		statsync.WithSyncCooldown(a.cfg.Stats.SyncCooldown),
		statsync.WithLogger(a.logger))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTracks(w io.Writer, tracks []music.TrackInfo) {
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No tracks.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range tracks {
		fmt.Fprintf(tw, "%3d.\t%s\t%s\t%s\n", t.Rank, t.Name, t.Artists, formatDuration(t.DurationMs))
	}
	tw.Flush()
}

func printArtists(w io.Writer, artists []music.ArtistInfo) {
	if len(artists) == 0 {
		fmt.Fprintln(w, "No artists.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, a := range artists {
		fmt.Fprintf(tw, "%3d.\t%s\t%s\n", a.Rank, a.Name, strings.Join(a.Genres, ", "))
	}
	tw.Flush()
}

func printGenres(w io.Writer, genres []music.GenreInfo) {
	if len(genres) == 0 {
		fmt.Fprintln(w, "No genres.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, g := range genres {
		fmt.Fprintf(tw, "%3d.\t%s\t%d\t%s\n", i+1, g.Name, g.Count, strings.Join(g.Artists, ", "))
	}
	tw.Flush()
}

func printSearchResults(w io.Writer, tracks []music.Track) {
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range tracks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.ArtistNames(), t.Album.Name)
	}
	tw.Flush()
}

// formatDuration renders milliseconds as m:ss.
func formatDuration(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
