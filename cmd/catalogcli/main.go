// Package main provides the catalog maintenance CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/catalog"
	"github.com/osa030/playdeck/internal/infra/logger"
	"github.com/osa030/playdeck/internal/infra/spotify"
)

var (
	app     = kingpin.New("playdeck-catalog", "playdeck song catalog tool")
	dbPath  = app.Flag("db", "Catalog database path (default: XDG data dir)").Envar("PLAYDECK_CATALOG_PATH").String()
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	importCmd  = app.Command("import", "Import songs from a YAML manifest")
	importFile = importCmd.Arg("file", "Manifest path").Required().ExistingFile()

	spotifyCmd      = app.Command("import-spotify", "Import the previews of a Spotify playlist")
	spotifyPlaylist = spotifyCmd.Arg("playlist", "Playlist URL, URI or ID").Required().String()
	spotifyUser     = spotifyCmd.Flag("user", "User id the songs are filed under").Required().String()
	spotifyMarket   = spotifyCmd.Flag("market", "Spotify market").Default("JP").String()

	spotifyClientID     = spotifyCmd.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	spotifyClientSecret = spotifyCmd.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	spotifyRefreshToken = spotifyCmd.Flag("refresh-token", "Spotify refresh token").Envar("SPOTIFY_REFRESH_TOKEN").Required().String()

	listCmd   = app.Command("list", "List songs")
	listUser  = listCmd.Flag("user", "Only songs uploaded by this user").String()
	listQuery = listCmd.Flag("query", "Title substring").String()

	deleteCmd = app.Command("delete", "Delete songs")
	deleteIDs = deleteCmd.Arg("ids", "Song ids").Required().Strings()

	pathCmd = app.Command("path", "Print the catalog database path")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "info"
	if *verbose {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	store, err := catalog.Open(*dbPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to open catalog: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	switch command {
	case importCmd.FullCommand():
		err = importManifest(ctx, store, *importFile)
	case spotifyCmd.FullCommand():
		err = importSpotify(ctx, store, *spotifyPlaylist, *spotifyUser)
	case listCmd.FullCommand():
		err = list(ctx, store, *listUser, *listQuery)
	case deleteCmd.FullCommand():
		err = remove(ctx, store, *deleteIDs)
	case pathCmd.FullCommand():
		fmt.Println(store.Path())
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}

func importManifest(ctx context.Context, store *catalog.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	songs, err := catalog.ParseManifest(data)
	if err != nil {
		return err
	}
	if err := store.SaveSongs(ctx, songs); err != nil {
		return err
	}
	fmt.Printf("Imported %d songs from %s\n", len(songs), path)
	return nil
}

func importSpotify(ctx context.Context, store *catalog.Store, playlist, userID string) error {
	client, err := spotify.New(ctx, spotify.Config{
		ClientID:     *spotifyClientID,
		ClientSecret: *spotifyClientSecret,
		RefreshToken: *spotifyRefreshToken,
		Market:       *spotifyMarket,
	})
	if err != nil {
		return err
	}

	tracks, err := client.GetPlaylistTracks(ctx, playlist)
	if err != nil {
		return err
	}
	songs, skipped := catalog.SongsFromSpotify(tracks, userID, time.Now())
	for _, id := range skipped {
		zlog.Warn().Msgf("No preview available, skipped: track_id=%s", id)
	}
	if len(songs) == 0 {
		fmt.Println("No importable tracks in playlist")
		return nil
	}
	if err := store.SaveSongs(ctx, songs); err != nil {
		return err
	}
	fmt.Printf("Imported %d songs for %s (%d without preview)\n", len(songs), userID, len(skipped))
	return nil
}

func list(ctx context.Context, store *catalog.Store, userID, query string) error {
	var (
		songs []track.Song
		err   error
	)
	switch {
	case userID != "":
		songs, err = store.ListByUser(ctx, userID)
		if err == nil && query != "" {
			var matched []track.Song
			for _, s := range songs {
				if s.MatchesTitle(query) {
					matched = append(matched, s)
				}
			}
			songs = matched
		}
	case query != "":
		songs, err = store.SearchByTitle(ctx, query)
	default:
		songs, err = store.ListAll(ctx)
	}
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Author", "User", "Length", "Path", "Added"})
	for _, s := range songs {
		t.AppendRow(table.Row{
			s.ID, s.Title, s.Author, s.UserID,
			track.FormatClock(s.Duration), s.SongPath, humanize.Time(s.CreatedAt),
		})
	}
	t.SetCaption("%d songs in %s", len(songs), store.Path())
	t.Render()
	return nil
}

func remove(ctx context.Context, store *catalog.Store, ids []string) error {
	n, err := store.DeleteSongs(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d of %d songs\n", n, len(ids))
	return nil
}
