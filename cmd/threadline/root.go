package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/abelbrown/threadline/internal/api"
	"github.com/abelbrown/threadline/internal/config"
	"github.com/abelbrown/threadline/internal/feedstore"
	"github.com/abelbrown/threadline/internal/fetch"
	"github.com/abelbrown/threadline/internal/logging"
	"github.com/abelbrown/threadline/internal/optimistic"
	"github.com/abelbrown/threadline/internal/pagination"
	"github.com/abelbrown/threadline/internal/store"
	"github.com/abelbrown/threadline/internal/ui"
)

// positionTTL is how long an unused scroll position is remembered.
const positionTTL = 30 * 24 * time.Hour

type options struct {
	dataDir       string
	configPath    string
	server        string
	token         string
	keysFile      string
	manual        bool
	hideDownvotes bool
	debug         bool
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "threadline",
		Short:         "Terminal client for link-aggregator feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       logging.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runTUI(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.dataDir, "data-dir", config.Dir(), "Directory for the database, logs and config")
	pf.StringVar(&o.configPath, "config", "", "Config file (default <data-dir>/config.json)")
	pf.StringVar(&o.server, "server", "", "Server base URL, overrides the config")
	pf.StringVar(&o.token, "token", "", "API token, overrides the config")
	pf.StringVar(&o.keysFile, "keys", "", "Shell file with export THREADLINE_*=... lines")

	f := cmd.Flags()
	f.BoolVar(&o.manual, "manual", false, "Disable infinite scrolling; press m to load more")
	f.BoolVar(&o.hideDownvotes, "hide-downvotes", false, "Score items by upvotes only")
	f.BoolVar(&o.debug, "debug", false, "Log at debug level")

	cmd.AddCommand(newPruneCmd(o), newConfigCmd(o))
	return cmd
}

func (o *options) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return filepath.Join(o.dataDir, "config.json")
}

// loadConfig reads the config file and applies, in order, the keys file
// and command line overrides.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFrom(o.path())
	if err != nil {
		return nil, err
	}
	if o.keysFile != "" {
		if err := cfg.LoadKeysFromFile(o.keysFile); err != nil {
			return nil, fmt.Errorf("load keys: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.BaseURL = o.server
	}
	if flags.Changed("token") {
		cfg.Server.Token = o.token
	}
	if o.manual {
		cfg.Settings.InfiniteScrollingDisabled = true
	}
	if o.hideDownvotes {
		cfg.Settings.HideDownvotes = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", o.path(), err)
	}
	return cfg, nil
}

func (o *options) openStore() (*store.Store, error) {
	if err := os.MkdirAll(o.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.Open(filepath.Join(o.dataDir, "threadline.db"))
}

func (o *options) runTUI(cmd *cobra.Command) error {
	ctx := cmd.Context()

	level := log.InfoLevel
	if o.debug {
		level = log.DebugLevel
	}
	if err := logging.Init(o.dataDir, level); err != nil {
		return err
	}
	defer logging.Close()

	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := o.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	if n, err := st.Prune(time.Now().Add(-positionTTL)); err != nil {
		logging.Warn("prune positions", "error", err)
	} else if n > 0 {
		logging.Info("pruned positions", "feeds", n)
	}

	fs := feedstore.New()
	defer fs.Close()

	client := api.NewClient(cfg.Server.BaseURL, cfg.Server.Token, cfg.Server.RequestsPerSecond)
	rss := fetch.NewFetcher(30 * time.Second)

	app := ui.NewApp(ctx, buildTabs(cfg, client, rss), ui.Deps{
		Controller:     pagination.New(fs),
		Bridge:         optimistic.New(fs),
		Server:         client,
		Positions:      st,
		Settings:       cfg.Settings,
		PrefetchMargin: cfg.Scroll.PrefetchMargin,
	})

	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// buildTabs turns configured feeds into UI tabs. A server tab's feed id is
// fixed by its first sort; cycling sorts replaces the same feed.
func buildTabs(cfg *config.Config, client *api.Client, rss *fetch.Fetcher) []ui.Tab {
	tabs := make([]ui.Tab, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		switch f.Kind {
		case config.KindServer:
			base := api.Source{
				Endpoint: f.Endpoint,
				Sort:     f.Sort(0),
				Filters:  f.Filters,
				Limit:    cfg.Scroll.PageSize,
			}
			tabs = append(tabs, ui.Tab{
				Name:   f.Name,
				FeedID: base.ID(),
				Sorts:  f.Sorts,
				Source: func(sort string) pagination.Fetcher {
					src := base
					src.Sort = sort
					return client.Fetcher(src)
				},
			})
		case config.KindRSS:
			src := fetch.Source{Name: f.Name, URL: f.URL}
			tabs = append(tabs, ui.Tab{
				Name:     f.Name,
				FeedID:   src.ID(),
				ReadOnly: true,
				Source: func(string) pagination.Fetcher {
					return rss.For(src)
				},
			})
		}
	}
	return tabs
}
