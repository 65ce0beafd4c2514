package reflector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/network"
)

var ErrClientClosed = errors.New("client closed")

// Client is a websocket connection whose inbound envelopes feed a Reflector.
type Client struct {
	*Reflector

	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	err     error
}

// Dial connects to a room server websocket URL such as ws://host/ws.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		Reflector: New(),
		conn:      conn,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.Reflector.Close()
	for {
		var env network.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.err = err
			return
		}
		_, _ = c.Apply(&env)
	}
}

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop stopped. Valid after Done is closed.
func (c *Client) Err() error {
	return c.err
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Send writes one command frame. payload is marshalled as the packet data;
// a json.RawMessage is sent as is.
func (c *Client) Send(event network.Event, payload any) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	packet := network.Packet{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		packet.Data = data
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(packet)
}

func wireTeam(team game.Team) *string {
	if !team.Playing() {
		return nil
	}
	s := string(team)
	return &s
}

func (c *Client) Heartbeat() error {
	return c.Send(network.EventHeartbeat, nil)
}

func (c *Client) CreateRoom(username string) error {
	return c.Send(network.EventCreateRoom, network.CreateRoomRequest{Username: username})
}

func (c *Client) CheckRoom(roomID string) error {
	return c.Send(network.EventCheckRoom, roomID)
}

func (c *Client) JoinLobby(roomID, username string, team game.Team) error {
	if v := c.View(); v.RoomID != roomID || v.Closed {
		c.Forget(roomID)
	}
	return c.Send(network.EventJoinLobby, network.JoinLobbyRequest{
		RoomID:   roomID,
		Username: username,
		Team:     wireTeam(team),
	})
}

func (c *Client) MovePlayer(roomID, targetID string, team game.Team) error {
	return c.Send(network.EventAdminMovePlayer, network.AdminMovePlayerRequest{
		RoomID:   roomID,
		TargetID: targetID,
		Team:     wireTeam(team),
	})
}

func (c *Client) UpdateSettings(roomID string, targetWins int) error {
	return c.Send(network.EventUpdateSettings, network.UpdateSettingsRequest{
		RoomID:     roomID,
		TargetWins: float64(targetWins),
	})
}

func (c *Client) StartGame(roomID string) error {
	return c.Send(network.EventStartGame, roomID)
}

func (c *Client) Click(roomID string, clicks int) error {
	return c.Send(network.EventClickAction, network.ClickActionRequest{RoomID: roomID, Clicks: network.ClickCount(clicks)})
}

// Next waits for the next update on ch.
func Next(ctx context.Context, ch <-chan Update) (Update, error) {
	select {
	case <-ctx.Done():
		return Update{}, ctx.Err()
	case u, ok := <-ch:
		if !ok {
			return Update{}, ErrClientClosed
		}
		return u, nil
	}
}
