package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ThomasConway01/OutfitMatcher/capture"
	"github.com/ThomasConway01/OutfitMatcher/config"
	"github.com/ThomasConway01/OutfitMatcher/credentials"
	metrics "github.com/ThomasConway01/OutfitMatcher/metrics/prometheus"
	"github.com/ThomasConway01/OutfitMatcher/session"

	// Register the provider factories. Mock is included so a `type: mock`
	// config, which validation accepts, works offline.
	_ "github.com/ThomasConway01/OutfitMatcher/providers/gemini"
	_ "github.com/ThomasConway01/OutfitMatcher/providers/mock"
	_ "github.com/ThomasConway01/OutfitMatcher/providers/openrouter"
	"github.com/ThomasConway01/OutfitMatcher/statestore"
	"github.com/ThomasConway01/OutfitMatcher/types"
	"github.com/ThomasConway01/OutfitMatcher/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := metrics.Register(nil); err != nil {
		return err
	}

	source, err := capture.NewDirectorySource(cfg.Capture.Root, cfg.FrameConfig())
	if err != nil {
		return fmt.Errorf("capture source: %w", err)
	}

	storePath := cfg.PreferencesPath
	if storePath == "" {
		storePath, err = credentials.DefaultStorePath()
		if err != nil {
			return err
		}
	}
	prefs, err := credentials.NewStore(storePath)
	if err != nil {
		return err
	}

	rl, err := readline.New("outfit> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	promptKey := func() (string, error) {
		key, err := rl.ReadPassword("API key: ")
		if err != nil {
			return "", err
		}
		return string(key), nil
	}

	ctrl := session.New(cfg, source, prefs, statestore.NewMemoryStore(),
		session.WithPrompt(promptKey))
	defer func() {
		_ = ctrl.Close()
	}()

	fmt.Println("OutfitMatcher console. Type 'help' for commands.")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		if cmd == "quit" || cmd == "exit" {
			break
		}
		if err := dispatch(ctrl, rl, cmd, arg); err != nil {
			fmt.Println("error:", err)
		}
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func dispatch(ctrl *session.Controller, rl *readline.Instance, cmd, arg string) error {
	ctx := context.Background()

	switch cmd {
	case "help":
		printHelp()
		return nil

	case "home", "capture", "wardrobe":
		return ctrl.Navigate(session.View(cmd))

	case "devices":
		devices, err := ctrl.Devices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			label := d.Label
			if label == "" {
				label = "(label hidden until permission granted)"
			}
			fmt.Printf("  %s  %s\n", d.ID, label)
		}
		return nil

	case "device":
		if arg == "" {
			return fmt.Errorf("usage: device <id>")
		}
		return ctrl.SelectDevice(arg)

	case "scan":
		result, err := ctrl.Scan(ctx)
		if err != nil {
			return err
		}
		return printResult(result)

	case "retry":
		result, err := ctrl.Retry(ctx)
		if err != nil {
			return err
		}
		return printResult(result)

	case "chat":
		if arg == "" {
			return fmt.Errorf("usage: chat <message>")
		}
		result, err := ctrl.Chat(ctx, arg)
		if err != nil {
			return err
		}
		return printResult(result)

	case "visualize":
		result, err := ctrl.Visualize(ctx)
		if err != nil {
			return err
		}
		return printResult(result)

	case "status":
		fmt.Println("  view:    ", ctrl.ActiveView())
		fmt.Println("  capture: ", ctrl.State(session.SlotCapture))
		fmt.Println("  wardrobe:", ctrl.State(session.SlotWardrobe))
		return nil

	case "set-key":
		key, err := rl.ReadPassword("new API key: ")
		if err != nil {
			return err
		}
		return ctrl.SetCredential(string(key))

	case "clear-data":
		return ctrl.ClearData()

	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func printResult(result types.Result) error {
	if result.Kind() == types.ResultText {
		fmt.Println(result.Text)
		return nil
	}
	path, err := saveImage(result.Image)
	if err != nil {
		return err
	}
	fmt.Println("generated image saved to", path)
	return nil
}

// saveImage writes an image result to the working directory so the console
// user can open it. Results arrive either as inline base64 data or as a
// data URL.
func saveImage(media *types.MediaContent) (string, error) {
	if media == nil {
		return "", fmt.Errorf("image result has no content")
	}
	dataURL, err := media.DataURL()
	if err != nil {
		return "", err
	}
	_, encoded, found := strings.Cut(dataURL, ";base64,")
	if !found {
		return "", fmt.Errorf("image result is not inline: %s", dataURL)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode image data: %w", err)
	}
	ext := ".png"
	if media.MIMEType == types.MIMETypeImageJPEG {
		ext = ".jpg"
	}
	path := "outfit" + ext
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func printHelp() {
	fmt.Print(`commands:
  home | capture | wardrobe   switch view
  devices                     list capture devices
  device <id>                 select a capture device
  scan                        analyze the current frame
  retry                       re-analyze the retained frame for a different answer
  chat <message>              follow-up question (wardrobe view)
  visualize                   generate an image of the suggested outfit (wardrobe view)
  status                      show session state
  set-key                     store a new API key
  clear-data                  wipe persisted preferences and session state
  quit
`)
}
