package main

import (
	"flag"
	"fmt"
	"image/color"
	"net/url"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"plaza/server/internal/client"
	"plaza/server/internal/clock"
	"plaza/server/internal/proto"
	"plaza/server/logging"
)

const (
	screenWidth  = 800
	screenHeight = 600
	spriteSize   = 32
)

// Game wires the local sender, the receiver, and the session into an ebiten
// render loop.
type Game struct {
	session *client.Session
	recv    *client.Receiver
	sender  *client.Sender

	status     client.Status
	lastUpdate time.Time
}

func (g *Game) Update() error {
	now := time.Now()
	dt := now.Sub(g.lastUpdate).Seconds()
	if g.lastUpdate.IsZero() || dt > 0.25 {
		dt = 1.0 / 60.0
	}
	g.lastUpdate = now

	var dx, dy float64
	if ebiten.IsKeyPressed(ebiten.KeyW) || ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		dy -= 1
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) || ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		dy += 1
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		dx -= 1
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) || ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		dx += 1
	}

	if st, send := g.sender.Sample(now, dx, dy, dt); send {
		g.session.SendState(st)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		g.session.QueryOnlineCount()
	}
	g.status = g.session.Status()
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 24, G: 26, B: 32, A: 255})

	now := time.Now()
	for _, avatar := range g.recv.Poll(now) {
		drawAvatar(screen, avatar.State, avatar.Anim == client.AnimWalking, avatar.Phase)
	}

	self := g.sender.State()
	selfPhase := 0.0
	if self.Walking {
		selfPhase = float64(now.UnixMilli()%400) / 400
	}
	drawAvatar(screen, self, self.Walking, selfPhase)

	line := fmt.Sprintf("status: %s  online: %d", g.status, len(g.recv.Roster()))
	if count, _ := g.recv.OnlineCount(); count > 0 {
		line += fmt.Sprintf("  server count: %d", count)
	}
	ebitenutil.DebugPrint(screen, line)
}

// drawAvatar renders one avatar as a colored box with a subtle walk bob and
// the display name above it.
func drawAvatar(screen *ebiten.Image, st proto.PlayerState, walking bool, phase float64) {
	bob := 0.0
	if walking {
		// Two bounces per cycle.
		if phase < 0.25 || (phase >= 0.5 && phase < 0.75) {
			bob = -2
		}
	}
	vector.DrawFilledRect(screen, float32(st.X), float32(st.Y+bob), spriteSize, spriteSize, parseColor(st.Color), false)
	ebitenutil.DebugPrintAt(screen, st.Name, int(st.X), int(st.Y)-14)
}

func parseColor(hex string) color.RGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{R: 200, G: 200, B: 200, A: 255}
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	var serverURL, token string
	flag.StringVar(&serverURL, "server", "ws://localhost:8080/ws", "presence service websocket URL")
	flag.StringVar(&token, "token", "", "identity token (required)")
	flag.Parse()

	logger := logging.New("", false)
	defer logger.Sync()

	endpoint, err := url.Parse(serverURL)
	if err != nil {
		logger.Fatalf("invalid server URL: %v", err)
	}
	query := endpoint.Query()
	if token != "" {
		query.Set("token", token)
	}
	endpoint.RawQuery = query.Encode()

	recv := client.NewReceiver(clock.System(), client.DefaultInterpolator(), client.DefaultAnimConfig())
	sender := client.NewSender(client.DefaultSenderConfig())

	var session *client.Session
	session = client.NewSession(client.SessionConfig{
		URL:    endpoint.String(),
		Logger: logger,
		OnStatus: func(status client.Status) {
			if status == client.StatusConnected {
				// Correct stale remote copies as soon as the transport is back.
				session.SendState(sender.Republish(time.Now()))
			}
		},
		OnMessage: func(env proto.ServerEnvelope) {
			recv.Apply(env)
			if env.Type == proto.TypeJoin {
				for _, st := range env.Players {
					if st.ID == env.ID {
						sender.Adopt(st)
						break
					}
				}
			}
		},
	})
	go session.Run()
	defer session.Close()

	game := &Game{session: session, recv: recv, sender: sender}

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("Plaza")
	if err := ebiten.RunGame(game); err != nil {
		logger.Fatalf("client exited: %v", err)
	}
}
