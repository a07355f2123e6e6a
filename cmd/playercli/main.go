// Package main provides the player CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	apiconnect "github.com/osa030/playdeck/internal/api/connect"
	"github.com/osa030/playdeck/internal/domain/track"
)

var (
	app    = kingpin.New("playdeck-cli", "playdeck player client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set PLAYDECK_CONTROL_TOKEN env)").Envar("PLAYDECK_CONTROL_TOKEN").String()

	statusCmd = app.Command("status", "Show player status")

	playCmd   = app.Command("play", "Start or resume playback")
	pauseCmd  = app.Command("pause", "Pause playback")
	toggleCmd = app.Command("toggle", "Toggle play/pause")
	stopCmd   = app.Command("stop", "Stop playback")
	nextCmd   = app.Command("next", "Play the next track")
	prevCmd   = app.Command("prev", "Play the previous track").Alias("previous")
	fwdCmd    = app.Command("forward", "Skip forward").Alias("fwd")
	backCmd   = app.Command("back", "Skip backward")
	muteCmd   = app.Command("mute", "Toggle mute")

	seekCmd      = app.Command("seek", "Seek to a position")
	seekPosition = seekCmd.Arg("position", "Seconds, or a percentage such as 50%").Required().String()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()

	queueCmd = app.Command("queue", "Show the queue")

	setQueueCmd = app.Command("set-queue", "Replace the queue")
	setQueueIDs = setQueueCmd.Arg("ids", "Track ids in order").Required().Strings()

	activateCmd = app.Command("activate", "Play a queued track")
	activateID  = activateCmd.Arg("id", "Track id").Required().String()

	playFromCmd = app.Command("play-from", "Replace the queue and play one of its tracks")
	playFromID  = playFromCmd.Arg("id", "Track id to play").Required().String()
	playFromIDs = playFromCmd.Arg("ids", "Track ids in order").Required().Strings()

	songsCmd  = app.Command("songs", "List catalog songs")
	songsUser = songsCmd.Flag("user", "Only songs uploaded by this user").String()

	searchCmd   = app.Command("search", "Search catalog songs by title")
	searchQuery = searchCmd.Arg("query", "Title substring").String()

	playUserCmd   = app.Command("play-user", "Play a user's library, newest first")
	playUserID    = playUserCmd.Arg("user-id", "User id").Required().String()
	playUserStart = playUserCmd.Flag("start", "Track id to start from").String()

	playSearchCmd   = app.Command("play-search", "Play the songs matching a title search")
	playSearchQuery = playSearchCmd.Arg("query", "Title substring").String()
	playSearchStart = playSearchCmd.Flag("start", "Track id to start from").String()

	watchCmd = app.Command("watch", "Subscribe to player notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerGetStatusProcedure, nil))
	case playCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerPlayProcedure, nil))
	case pauseCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerPauseProcedure, nil))
	case toggleCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerToggleProcedure, nil))
	case stopCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerStopProcedure, nil))
	case nextCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerNextProcedure, nil))
	case prevCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerPreviousProcedure, nil))
	case fwdCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerSkipForwardProcedure, nil))
	case backCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerSkipBackwardProcedure, nil))
	case muteCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerToggleMuteProcedure, nil))
	case seekCmd.FullCommand():
		seek(ctx, client, *seekPosition)
	case volumeCmd.FullCommand():
		printStatus(call(ctx, client, apiconnect.PlayerSetVolumeProcedure, map[string]any{"volume": *volumeLevel}))

	case queueCmd.FullCommand():
		printQueue(call(ctx, client, apiconnect.QueueGetQueueProcedure, nil))
	case setQueueCmd.FullCommand():
		printQueue(call(ctx, client, apiconnect.QueueSetQueueProcedure, map[string]any{"ids": lo.ToAnySlice(*setQueueIDs)}))
	case activateCmd.FullCommand():
		printQueue(call(ctx, client, apiconnect.QueueSetActiveProcedure, map[string]any{"id": *activateID}))
	case playFromCmd.FullCommand():
		printQueue(call(ctx, client, apiconnect.QueuePlayFromProcedure, map[string]any{
			"id":  *playFromID,
			"ids": lo.ToAnySlice(*playFromIDs),
		}))

	case songsCmd.FullCommand():
		printSongs(call(ctx, client, apiconnect.LibraryListSongsProcedure, map[string]any{"user_id": *songsUser}))
	case searchCmd.FullCommand():
		printSongs(call(ctx, client, apiconnect.LibrarySearchSongsProcedure, map[string]any{"query": *searchQuery}))
	case playUserCmd.FullCommand():
		printQueue(call(ctx, client, apiconnect.LibraryPlayUserProcedure, map[string]any{
			"user_id":  *playUserID,
			"start_id": *playUserStart,
		}))
	case playSearchCmd.FullCommand():
		printQueue(call(ctx, client, apiconnect.LibraryPlaySearchProcedure, map[string]any{
			"query":    *playSearchQuery,
			"start_id": *playSearchStart,
		}))

	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func call(ctx context.Context, client *apiconnect.Client, procedure string, args map[string]any) map[string]any {
	resp, err := client.Call(ctx, procedure, args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return resp
}

func seek(ctx context.Context, client *apiconnect.Client, position string) {
	if n := len(position); n > 1 && position[n-1] == '%' {
		pct, err := strconv.ParseFloat(position[:n-1], 64)
		if err != nil {
			fmt.Printf("Error: invalid percentage: %s\n", position)
			os.Exit(1)
		}
		printStatus(call(ctx, client, apiconnect.PlayerSeekFractionProcedure, map[string]any{"fraction": pct / 100}))
		return
	}

	secs, err := strconv.ParseFloat(position, 64)
	if err != nil {
		fmt.Printf("Error: invalid position: %s\n", position)
		os.Exit(1)
	}
	printStatus(call(ctx, client, apiconnect.PlayerSeekProcedure, map[string]any{"position": secs}))
}

func watch(ctx context.Context, client *apiconnect.Client) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")
	err := client.Subscribe(ctx, func(n map[string]any) bool {
		printNotification(n)
		return true
	})
	if err != nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nUnsubscribed")
}

func printNotification(n map[string]any) {
	payload, _ := n["payload"].(map[string]any)
	fmt.Printf("[Sequence: %.0f] %s ", number(n["sequence_no"]), n["kind"])

	switch n["kind"] {
	case "initial":
		fmt.Println("=== INITIAL STATE ===")
		printStatus(payload)
	case "status":
		fmt.Printf("%s: %s -> %s\n", payload["track_id"], payload["previous"], formatStatus(payload["status"]))
	case "progress":
		fmt.Printf("%s %s\n", payload["track_id"], formatProgress(payload))
	case "volume":
		fmt.Printf("volume=%.2f muted=%v\n", number(payload["volume"]), payload["muted"])
	case "queue":
		fmt.Printf("%s active=%s ids=%v\n", payload["change"], payload["active"], payload["ids"])
	case "error":
		fmt.Printf("%s failed (%s): %s\n", payload["track_id"], payload["reason"], payload["message"])
	default:
		fmt.Printf("%v\n", payload)
	}
}

func printStatus(s map[string]any) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	progress, _ := s["progress"].(map[string]any)
	volume := fmt.Sprintf("%.0f%%", number(s["volume"])*100)
	if muted, _ := s["muted"].(bool); muted {
		volume += " (muted)"
	}

	t.AppendRows([]table.Row{
		{"Status", formatStatus(s["status"])},
		{"Track", s["track_id"]},
		{"Source", s["source_url"]},
		{"Progress", formatProgress(progress)},
		{"Volume", volume},
		{"Subscribers", fmt.Sprintf("%.0f", number(s["subscribers"]))},
	})
	if e, ok := s["error"].(map[string]any); ok {
		t.AppendRow(table.Row{"Error", fmt.Sprintf("%s: %s", e["reason"], e["message"])})
	}
	t.Render()

	if q, ok := s["queue"].(map[string]any); ok {
		printQueue(q)
	}
}

func printQueue(q map[string]any) {
	ids, _ := q["ids"].([]any)
	active, _ := q["active"].(string)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "", "Track"})
	for i, id := range ids {
		marker := ""
		if id == active {
			marker = "▶"
		}
		t.AppendRow(table.Row{i + 1, marker, id})
	}
	t.SetCaption("%d tracks", len(ids))
	t.Render()
}

func printSongs(resp map[string]any) {
	songs, _ := resp["songs"].([]any)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Author", "User", "Length", "Added"})
	for _, raw := range songs {
		s, _ := raw.(map[string]any)
		added := ""
		if created, ok := s["created_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, created); err == nil {
				added = humanize.Time(ts)
			}
		}
		t.AppendRow(table.Row{
			s["id"], s["title"], s["author"], s["user_id"],
			track.FormatClock(seconds(s["duration"])), added,
		})
	}
	t.SetCaption("%d songs", len(songs))
	t.Render()
}

func formatStatus(v any) string {
	switch v {
	case "idle":
		return "⏹  Idle"
	case "loading":
		return "⏳ Loading"
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "ended":
		return "🔚 Ended"
	case "errored":
		return "❗ Errored"
	default:
		return "❓ Unknown"
	}
}

func formatProgress(p map[string]any) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%s / %s (%.0f%%)",
		track.FormatClock(seconds(p["current"])),
		track.FormatClock(seconds(p["duration"])),
		number(p["fraction"])*100)
}

func number(v any) float64 {
	f, _ := v.(float64)
	return f
}

func seconds(v any) time.Duration {
	return time.Duration(number(v) * float64(time.Second))
}
