// Command client is a load and smoke test bot. It joins (or creates) a room,
// optionally starts the match once both teams are filled, and clicks on a
// fixed interval whenever a round is live.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/network"
	"github.com/wfunc/tugofwar/reflector"
)

type options struct {
	url      string
	room     string
	name     string
	team     string
	create   bool
	start    bool
	clicks   int
	interval time.Duration
	verbose  bool
}

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "client",
		Short:         "Join a tug-of-war room and click.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := "info"
			if opts.verbose {
				level = "debug"
			}
			logger.Init(level, true)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.url, "url", "u", "ws://localhost:8080/ws", "server websocket url")
	fs.StringVarP(&opts.room, "room", "r", "", "room code to join")
	fs.StringVarP(&opts.name, "name", "n", "bot", "display name")
	fs.StringVarP(&opts.team, "team", "t", "A", "team to join: A, B or empty for unassigned")
	fs.BoolVar(&opts.create, "create", false, "create a new room and host it")
	fs.BoolVar(&opts.start, "start", false, "as host, start once both teams have a player")
	fs.IntVarP(&opts.clicks, "clicks", "c", 5, "clicks per batch")
	fs.DurationVarP(&opts.interval, "interval", "i", 200*time.Millisecond, "time between click batches")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log every update")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	if !opts.create && opts.room == "" {
		return errors.New("either --room or --create is required")
	}
	team := game.TeamUnassigned
	if opts.team != "" {
		t, ok := game.ParseTeam(opts.team)
		if !ok {
			return fmt.Errorf("unknown team %q", opts.team)
		}
		team = t
	}

	c, err := reflector.Dial(ctx, opts.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.url, err)
	}
	defer c.Close()

	updates := c.Subscribe()
	roomID := opts.room
	if opts.create {
		if err := c.CreateRoom(opts.name); err != nil {
			return err
		}
		if roomID, err = waitRoom(ctx, updates); err != nil {
			return err
		}
		logger.Log.Infof("Hosting room %s", roomID)
	}
	if err := c.JoinLobby(roomID, opts.name, team); err != nil {
		return err
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	started := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return c.Err()
		case <-ticker.C:
			view := c.View()
			if view.Status == game.StatusPlaying && team.Playing() {
				if err := c.Click(roomID, opts.clicks); err != nil {
					return err
				}
			}
		case u, ok := <-updates:
			if !ok {
				return c.Err()
			}
			logger.Log.Debugf("%s: status=%s core=%.1f", u.Event, u.View.Status, u.View.CorePosition)

			switch u.Event {
			case network.EventError:
				logger.Log.Warnf("Server: %s", u.View.LastError)
				if u.View.RoomID == "" {
					return errors.New(u.View.LastError)
				}
			case network.EventLobbyUpdate:
				lobby := u.View.Lobby
				if opts.create && opts.start && !started && len(lobby.TeamA) > 0 && len(lobby.TeamB) > 0 {
					started = true
					if err := c.StartGame(roomID); err != nil {
						return err
					}
				}
			case network.EventRoundOver:
				logger.Log.Infof("Round %d to team %s (%d-%d)",
					u.View.Stats.CurrentRound, u.View.LastWinner, u.View.Stats.WinsA, u.View.Stats.WinsB)
			case network.EventGameOver:
				logger.Log.Infof("Team %s wins the match", u.View.LastWinner)
				for i, p := range u.View.Leaderboard {
					logger.Log.Infof("%2d. %-24s %d", i+1, p.Username, p.Score)
				}
				return nil
			case network.EventRoomClosed:
				logger.Log.Info("Room closed")
				return nil
			}
		}
	}
}

func waitRoom(ctx context.Context, updates <-chan reflector.Update) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for {
		u, err := reflector.Next(ctx, updates)
		if err != nil {
			return "", err
		}
		switch u.Event {
		case network.EventRoomCreated:
			return u.View.RoomID, nil
		case network.EventError:
			return "", errors.New(u.View.LastError)
		}
	}
}
