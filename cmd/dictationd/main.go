package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"dictation/internal/autocomplete"
	"dictation/internal/config"
	"dictation/internal/dialog"
	"dictation/internal/dictation"
	"dictation/internal/ipc"
	"dictation/internal/nlu"
	"dictation/internal/notify"
	"dictation/internal/proxy"
	"dictation/internal/storage"
	"dictation/pkg/protocol"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfgFile := cli.StringP("config", "c", "", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cli.StringP("log", "l", "info", "Log level")
	cli.StringP("bus", "b", "", "Url of the assistant message bus")
	cli.StringP("socket", "s", "", "Control socket path")
	cli.StringP("proxy", "p", "", "Socks proxy address for network backends")
	cli.StringP("dir", "d", "", "Dictation directory")
	offline := cli.Bool("offline", false, "Do not connect to the message bus")
	cli.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load env file", "path", *envFile, "err", err)
	}

	cfg, err := config.Load(*cfgFile, cli.CommandLine)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[cfg.Log.Level],
		TimeFormat: time.TimeOnly,
	})))

	log.Info("Booting up")
	dialog.SetLanguage(dialog.Language(cfg.Feedback.Lang))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewClient(cfg.Proxy.Addr, cfg.Autocomplete.Timeout)
	if err != nil {
		log.Error("Failed to set up proxy", "proxy", cfg.Proxy.Addr, "err", err)
		os.Exit(1)
	}

	var journal *storage.Journal
	if cfg.Journal.Enabled {
		journal, err = storage.OpenJournal(cfg.Journal.Path)
		if err != nil {
			log.Warn("Journal disabled", "path", cfg.Journal.Path, "err", err)
			journal = nil
		} else {
			defer journal.Close()
			log.Debug("Loaded journal", "path", cfg.Journal.Path)
		}
	}
	archive := storage.NewArchive(cfg.Dictation.Dir, journal)

	completer, err := autocomplete.New(autocomplete.Config{
		Provider: cfg.Autocomplete.Provider,
		URL:      cfg.Autocomplete.URL,
		Path:     cfg.Autocomplete.Path,
		Model:    cfg.Autocomplete.Model,
		APIKey:   apiKey(cfg.Autocomplete.Provider),
		Timeout:  cfg.Autocomplete.Timeout,
		Client:   httpClient,
	})
	if err != nil {
		log.Error("Failed to set up autocomplete", "err", err)
		os.Exit(1)
	}

	events := ipc.NewBroadcaster()
	hosts := dictation.Hosts{events}

	var ptcl *protocol.Protocol
	if !*offline {
		ptcl, err = protocol.NewProtocol(ctx, protocol.PtclConfig{
			Url:     cfg.Bus.URL,
			Reconn:  cfg.Bus.Reconnect,
			Timeout: cfg.Bus.Timeout,
			Shard:   cfg.Bus.Shard,
		})
		if err != nil {
			log.Error("Failed to connect to bus", "url", cfg.Bus.URL, "err", err)
			os.Exit(1)
		}
		defer ptcl.Close()
		hosts = append(hosts, protocol.NewBusHost(ptcl))
		log.Debug("Connected to bus", "url", cfg.Bus.URL)
	}
	if cfg.Feedback.Earcon != "" {
		hosts = append(hosts, notify.NewEarcon(cfg.Feedback.Earcon))
	}
	if cfg.Feedback.Desktop {
		hosts = append(hosts, notify.NewDesktop())
	}

	mgr := dictation.NewManager(hosts, archive, dictation.Options{
		StopKeywords:    cfg.Dictation.StopKeywords,
		RestartPolicy:   dictation.RestartPolicy(cfg.Dictation.RestartPolicy),
		DefaultMode:     cfg.DefaultMode(),
		CompleteTimeout: cfg.Autocomplete.Timeout,
	})
	if completer != nil {
		mgr.WithCompleter(completer)
	}

	classifier, err := newClassifier(cfg, httpClient)
	if err != nil {
		log.Error("Failed to set up nlu", "err", err)
		os.Exit(1)
	}
	disp := nlu.NewDispatcher(mgr, classifier)

	var history ipc.History
	if journal != nil {
		history = journal
	}
	srv := ipc.NewServer(cfg.IPC.Socket, mgr, disp, history, events)
	if err := srv.Listen(); err != nil {
		log.Error("Failed ipc server", "socket", cfg.IPC.Socket, "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful", "dir", cfg.Dictation.Dir, "socket", cfg.IPC.Socket)

	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error("Control socket stopped", "err", err)
		}
	}()
	if ptcl != nil {
		h := &busHandler{bus: ptcl, mgr: mgr, disp: disp}
		go func() {
			if err := ptcl.Run(ctx, h.Handle); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Bus loop stopped", "err", err)
			}
		}()
	}
	if cfg.Dictation.EvictAfter > 0 {
		go evictLoop(ctx, mgr, cfg.Dictation.EvictAfter)
	}

	<-ctx.Done()
	log.Info("Shutting down")

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n := mgr.StopAll(shutdown); n > 0 {
		log.Info("Saved open dictations", "count", n)
	}
	srv.Close()
}

func apiKey(provider string) string {
	switch provider {
	case autocomplete.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case autocomplete.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

func newClassifier(cfg *config.Config, httpClient *http.Client) (nlu.Classifier, error) {
	if cfg.NLU.Provider != "openai" {
		return nlu.NewKeywords(nlu.English), nil
	}
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithHTTPClient(httpClient),
	)
	return nlu.NewLLM(client, cfg.NLU.Model), nil
}

func evictLoop(ctx context.Context, mgr *dictation.Manager, after time.Duration) {
	t := time.NewTicker(after / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := mgr.Evict(now.Add(-after)); n > 0 {
				log.Debug("Evicted idle sessions", "count", n)
			}
		}
	}
}
