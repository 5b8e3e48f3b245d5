package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"blackboard/internal/canvas"
	"blackboard/internal/config"
	"blackboard/internal/ingest"
	"blackboard/internal/logging"
	"blackboard/internal/persist"
	"blackboard/internal/room"
	"blackboard/internal/session"
	"blackboard/internal/transport"
)

func canvasConfig(cfg *config.Config) (canvas.Config, error) {
	theme, err := canvas.ParseTheme(cfg.Board.Theme)
	if err != nil {
		return canvas.Config{}, err
	}
	return canvas.Config{
		Width:          cfg.Board.VirtualWidth,
		Height:         cfg.Board.VirtualHeight,
		Theme:          theme,
		ThicknessScale: cfg.Board.ThicknessScale,
	}, nil
}

func remoteStore(cfg *config.Config) *persist.RemoteStore {
	return persist.NewRemoteStore(persist.RemoteConfig{
		BaseURL: cfg.Client.APIURL,
		Token:   cfg.Client.Token,
	})
}

// participant is a joined headless session and everything it owns.
type participant struct {
	session *session.Session
	bridge  *persist.Bridge
	closers []func() error
}

func openParticipant(ctx context.Context, cfg *config.Config, roomID string) (*participant, error) {
	cc, err := canvasConfig(cfg)
	if err != nil {
		return nil, err
	}
	p := &participant{}

	var store persist.Store = remoteStore(cfg)
	if cfg.Client.CachePath != "" {
		db, err := persist.OpenBadger(cfg.Client.CachePath, false)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, db.Close)
		store = persist.NewTieredStore(store, persist.NewBadgerStore(db))
	}
	p.bridge = persist.NewBridge(store, cfg.Client.FlushTimeout)

	p.session = session.New(session.Config{
		Canvas:         cc,
		CommitQuality:  cfg.Board.CommitQuality,
		SyncQuality:    cfg.Board.SyncQuality,
		StoreQuality:   cfg.Board.StoreQuality,
		SyncOnNavigate: cfg.Board.SyncOnNavigate,
		MaxPages:       cfg.Board.MaxPages,
	}, &transport.WebSocket{
		URL:   cfg.Client.RelayURL,
		Token: cfg.Client.Token,
	}, p.bridge)

	if err := p.session.Join(ctx, roomID); err != nil {
		_ = p.close()
		return nil, err
	}
	return p, nil
}

// close leaves the room and drains pending persistence writes.
func (p *participant) close() error {
	errs := []error{p.session.Leave(), p.bridge.Close()}
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// writePages renders n pages into dir as page-001.png, page-002.png, ...
func writePages(dir string, n int, render func(i int, w io.Writer) error) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("page-%03d.png", i+1))
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("export page %d: %w", i+1, err)
		}
		err = render(i, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, fmt.Errorf("export page %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (cli *commandLine) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	base := fs.String("base", "http://127.0.0.1:8080/", "base URL of the whiteboard page for invite links")
	cfg, err := cli.setup(fs, args)
	if err != nil {
		return err
	}

	id := ""
	if rec, err := remoteStore(cfg).Create(ctx); err != nil {
		id = room.NewCode()
		logging.Warn().Err(err).Str("room", id).Msg("rooms API unavailable, using a local room code")
	} else {
		id = rec.RoomID
	}
	invite, err := room.InviteURL(*base, id)
	if err != nil {
		return fmt.Errorf("invite url: %w", err)
	}
	fmt.Fprintln(cli.stdout, id)
	fmt.Fprintln(cli.stdout, invite)
	return nil
}

// roomFlags registers -room and -invite and resolves them after parsing.
func roomFlags(fs *flag.FlagSet) func() (string, error) {
	id := fs.String("room", "", "room id")
	invite := fs.String("invite", "", "invite link carrying the room id")
	return func() (string, error) {
		if *id == "" && *invite != "" {
			if v, ok := room.FromURL(*invite); ok {
				*id = v
			}
		}
		if !room.Valid(*id) {
			fs.Usage()
			return "", errHelp
		}
		return *id, nil
	}
}

func (cli *commandLine) join(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	roomID := roomFlags(fs)
	out := fs.String("out", ".", "directory for exported pages")
	dur := fs.Duration("for", 0, "stay joined this long (0: until interrupted)")
	cfg, err := cli.setup(fs, args)
	if err != nil {
		return err
	}
	id, err := roomID()
	if err != nil {
		return err
	}

	p, err := openParticipant(ctx, cfg, id)
	if err != nil {
		return err
	}
	logging.Info().Str("room", id).Msg("mirroring room")

	wait := ctx
	if *dur > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, *dur)
		defer cancel()
	}
	<-wait.Done()

	paths, exportErr := writePages(*out, p.session.PageCount(), p.session.ExportPage)
	for _, path := range paths {
		fmt.Fprintln(cli.stdout, path)
	}
	return errors.Join(exportErr, p.close())
}

func (cli *commandLine) ingest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	roomID := roomFlags(fs)
	file := fs.String("file", "", "image or PDF file")
	page := fs.Int("page", 1, "PDF page to render (1-based)")
	pageRange := fs.String("pages", "", "PDF pages to render, one board page each: N, A-B or A- for the rest")
	newPage := fs.Bool("new-page", false, "append a page and ingest onto it")
	settle := fs.Duration("settle", 2*time.Second, "time to receive peer state before drawing")
	linger := fs.Duration("linger", time.Second, "time to let broadcasts reach peers before leaving")
	cfg, err := cli.setup(fs, args)
	if err != nil {
		return err
	}
	id, err := roomID()
	if err != nil {
		return err
	}
	if *file == "" {
		fs.Usage()
		return errHelp
	}
	first, last := *page, *page
	if *pageRange != "" {
		if first, last, err = parsePageRange(*pageRange); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	p, err := openParticipant(ctx, cfg, id)
	if err != nil {
		return err
	}
	if err := wait(ctx, *settle); err != nil {
		return errors.Join(err, p.close())
	}
	if *newPage {
		if _, err := p.session.AddPage(); err != nil {
			return errors.Join(err, p.close())
		}
	}

	in := ingest.New(p.session, ingest.PdftoppmRasterizer{Scale: cfg.Board.PDFScale})
	var ingestErr error
	if ingest.IsPDF(data) {
		var n int
		n, ingestErr = in.IngestPDFPages(ctx, data, first, last)
		if n > 0 {
			logging.Info().Str("room", id).Str("file", *file).Int("first", first).Int("pages", n).Msg("ingested pdf")
		}
	} else {
		ingestErr = in.IngestFile(ctx, data, first)
		if ingestErr == nil {
			logging.Info().Str("room", id).Str("file", *file).Int("page", p.session.CurrentPage()).Msg("ingested")
		}
	}
	return errors.Join(ingestErr, wait(ctx, *linger), p.close())
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parsePageRange parses "N", "A-B" or "A-". An open end is returned as 0.
func parsePageRange(s string) (first, last int, err error) {
	lo, hi, isRange := strings.Cut(s, "-")
	if first, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil || first < 1 {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	if !isRange {
		return first, first, nil
	}
	if strings.TrimSpace(hi) == "" {
		return first, 0, nil
	}
	if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || last < first {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	return first, last, nil
}

func (cli *commandLine) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	roomID := roomFlags(fs)
	out := fs.String("out", ".", "directory for exported pages")
	cfg, err := cli.setup(fs, args)
	if err != nil {
		return err
	}
	id, err := roomID()
	if err != nil {
		return err
	}
	cc, err := canvasConfig(cfg)
	if err != nil {
		return err
	}

	rec, err := remoteStore(cfg).Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load room %s: %w", id, err)
	}
	paths, err := writePages(*out, len(rec.Pages), func(i int, w io.Writer) error {
		return canvas.ExportSnapshot(cc, rec.Pages[i], w)
	})
	for _, path := range paths {
		fmt.Fprintln(cli.stdout, path)
	}
	return err
}
