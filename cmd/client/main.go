// Command client joins a room from the terminal: it connects to the
// relay, builds the peer mesh and prints chat, presence and link state
// as they happen. Lines typed on stdin are sent as chat.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Coderoom/internal/client"
	"github.com/dkeye/Coderoom/internal/client/rtc"
	"github.com/dkeye/Coderoom/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/api/ws/signal", "signaling relay url")
		room     = flag.String("room", "", "room id to join (required)")
		token    = flag.String("token", "", "identity token")
		password = flag.String("password", "", "room password, if any")
		watchdog = flag.Duration("watchdog", 3*time.Second, "per-link connection watchdog")
		retries  = flag.Int("retries", 3, "per-link retry budget")
		debug    = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *room == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess := client.NewSession(*url)
	if *token != "" {
		sess.SetCookie("ct=" + *token)
	}
	if err := sess.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer sess.Disconnect()

	mesh := client.NewMesh(client.MeshConfig{
		Signaler:   sess,
		Factory:    rtc.Factory(rtc.DefaultConfig(nil)),
		Watchdog:   *watchdog,
		MaxRetries: *retries,
		OnLink: func(remote string, s client.LinkState) {
			log.Info().Str("module", "client").Str("remote", remote).
				Str("state", s.String()).Msg("link")
		},
	})
	defer mesh.Close()

	if err := sess.Join(*room, *token, *password); err != nil {
		log.Fatal().Err(err).Msg("join")
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := sess.Chat(line); err != nil {
				log.Warn().Err(err).Msg("chat send")
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			sess.Leave()
			return
		case in, ok := <-sess.Inbound():
			if !ok {
				log.Info().Msg("connection closed")
				return
			}
			mesh.HandleMessage(in.Env, in.Msg)
			printMessage(in)
		}
	}
}

func printMessage(in client.Inbound) {
	switch m := in.Msg.(type) {
	case *protocol.Welcome:
		fmt.Printf("* joined %s as %s, %d online\n", m.Room, m.You, len(m.Presence))
		for _, msg := range m.Messages {
			fmt.Printf("[%s] %s\n", msg.Sender, msg.Content)
		}
	case *protocol.ChatBroadcast:
		fmt.Printf("[%s] %s\n", m.Message.Sender, m.Message.Content)
	case *protocol.MemberJoined:
		fmt.Printf("* %s joined\n", m.Member.User.Username)
	case *protocol.MemberLeft:
		fmt.Printf("* %s left\n", m.User)
	case *protocol.Error:
		fmt.Printf("! %s: %s\n", m.Code, m.Reason)
	}
}
