package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/MikeSquared-Agency/macha/internal/attachments"
	"github.com/MikeSquared-Agency/macha/internal/audio"
	"github.com/MikeSquared-Agency/macha/internal/chat"
	"github.com/MikeSquared-Agency/macha/internal/config"
	"github.com/MikeSquared-Agency/macha/internal/flows"
	"github.com/MikeSquared-Agency/macha/internal/session"
	"github.com/MikeSquared-Agency/macha/internal/speech"
)

var (
	topicFlag = flag.String("topic", "tech", "Starting topic")
	userFlag  = flag.String("user", "", "User id to chat as (empty chats anonymously)")
	envFile   = flag.String("env", ".env", "Dotenv file to load")
	verbose   = flag.Bool("v", false, "Log flow calls to stderr")
)

var (
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	boldYellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	boldRed    = color.New(color.FgRed, color.Bold).SprintFunc()
	faint      = color.New(color.Faint).SprintFunc()
)

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	cfg := config.Load()

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, err := newEngine(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sess := session.NewManager(engine, logger).Create()
	if t, err := flows.ParseTopic(*topicFlag); err == nil {
		_ = sess.SetTopic(t)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v, staying on %s\n", err, sess.Topic())
	}
	id := session.Identity{UserID: *userFlag}

	fmt.Println(boldGreen("🔥 Gugan's AI Macha"))
	fmt.Printf("Topic: %s. Commands: /topic <name>, /topics, /upload <path>, /speak [file.wav], /history, /quit\n", boldCyan(sess.Topic()))
	fmt.Println()
	printMessage(sess.Snapshot().Messages[0])

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(boldGreen("You: "))
		if !in.Scan() || ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "/quit" {
			break
		}

		if cmd, arg, ok := parseCommand(line); ok {
			runCommand(ctx, sess, id, cmd, arg)
			continue
		}

		res, err := sess.SendMessage(ctx, id, line)
		if err != nil {
			printError(err)
			continue
		}
		printResult(res)
	}
	fmt.Println("\nPoi varen macha!")
}

func newEngine(cfg config.Config, logger *slog.Logger) (*session.Engine, error) {
	invoker, _ := flows.FromConfig(cfg, logger)

	store, err := attachments.NewDiskStore(cfg.UploadDir, "file://"+mustAbs(cfg.UploadDir))
	if err != nil {
		return nil, err
	}
	synth := speech.NewSynthesizer(cfg.GoogleAPIKey, cfg.TTSModel, cfg.TTSVoice, logger)
	synth.SetBaseURL(cfg.GeminiBaseURL)

	return session.NewEngine(session.Deps{
		Asker:  flows.NewRouter(invoker, logger),
		Store:  store,
		Speech: synth,
	}, session.Options{Greeting: cfg.Greeting}, logger), nil
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func parseCommand(line string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

func runCommand(ctx context.Context, sess *session.Session, id session.Identity, cmd, arg string) {
	switch cmd {
	case "topic":
		t, err := flows.ParseTopic(arg)
		if err == nil {
			err = sess.SetTopic(t)
		}
		if err != nil {
			printError(err)
			return
		}
		fmt.Printf("Topic is now %s\n", boldCyan(t))
	case "topics":
		for _, t := range flows.Topics {
			marker := " "
			if t == sess.Topic() {
				marker = "*"
			}
			route, _ := flows.RouteFor(t)
			fmt.Printf(" %s %s %s\n", marker, t, faint("("+route.Flow+")"))
		}
	case "history":
		for _, m := range sess.Snapshot().Messages {
			printMessage(m)
		}
	case "upload":
		res, err := upload(ctx, sess, id, arg)
		if err != nil {
			printError(err)
			return
		}
		printResult(res)
	case "speak":
		if err := speak(ctx, sess, id, arg); err != nil {
			printError(err)
		}
	default:
		printError(fmt.Errorf("unknown command /%s", cmd))
	}
}

func upload(ctx context.Context, sess *session.Session, id session.Identity, path string) (*session.TurnResult, error) {
	if path == "" {
		return nil, errors.New("usage: /upload <path>")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return sess.UploadImage(ctx, id, session.Upload{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        f,
		Size:        info.Size(),
	})
}

// speak voices the latest assistant reply and writes the WAV to out.
func speak(ctx context.Context, sess *session.Session, id session.Identity, out string) error {
	if out == "" {
		out = "macha.wav"
	}
	msgs := sess.Snapshot().Messages
	var last *chat.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant && msgs[i].Pending == "" {
			last = &msgs[i]
			break
		}
	}
	if last == nil {
		return errors.New("nothing to speak yet")
	}

	uri, err := sess.Speak(ctx, id, last.ID, speech.EncodingPCM)
	if err != nil {
		return err
	}
	_, wav, err := audio.ParseDataURI(uri)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, wav, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("%s wrote %s (%d bytes)\n", boldYellow("🔊"), out, len(wav))
	return nil
}

func printResult(res *session.TurnResult) {
	if res.Notice != nil {
		printNotice(*res.Notice)
	}
	if res.Reply != nil {
		printMessage(*res.Reply)
	}
	fmt.Println()
}

func printMessage(m chat.Message) {
	who := boldGreen("You: ")
	if m.Role == chat.RoleAssistant {
		who = boldCyan("Macha: ")
	}
	fmt.Print(who)
	fmt.Println(m.Content)
	if m.ImageURL != "" {
		fmt.Println(faint("  " + m.ImageURL))
	}
}

func printNotice(n session.Notice) {
	paint := boldYellow
	if n.Destructive {
		paint = boldRed
	}
	text := n.Title
	if n.Description != "" {
		text += " " + n.Description
	}
	fmt.Println(paint(text))
}

func printError(err error) {
	switch {
	case errors.Is(err, session.ErrSignInRequired):
		printNotice(session.NoticeSignIn)
	case errors.Is(err, attachments.ErrNotImage):
		printNotice(session.NoticeNotImage)
	default:
		fmt.Fprintf(os.Stderr, "%s %v\n", boldRed("Error:"), err)
	}
}
