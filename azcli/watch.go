package azcli

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"

	"oss.terrastruct.com/util-go/xbrowser"

	"oss.terrastruct.com/util-go/xhttp"

	"oss.terrastruct.com/util-go/xmain"

	"github.com/dylanowen/archi-zoom/azbundle"
)

// devMode is set by the "dev" build tag, see watch_dev.go. It serves the
// static assets from disk instead of the embed so edits to them do not
// need a rebuild.
var devMode = false

//go:embed static
var staticFS embed.FS

type watcherOpts struct {
	host       string
	port       string
	inputPath  string
	outputPath string
	pkgDir     string
	bundleOpts azbundle.Opts
}

type watcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	devMode bool

	ms *xmain.State
	watcherOpts

	// pkgPath is pkgDir resolved against the page's directory. /pkg/
	// requests are served from it so the page can load a viewer built
	// anywhere.
	pkgPath string

	bundleCh chan struct{}

	fw               *fsnotify.Watcher
	l                net.Listener
	staticFileServer http.Handler
	pageFileServer   http.Handler

	wsclientsMu sync.Mutex
	closing     bool
	wsclientsWG sync.WaitGroup
	wsclients   map[*wsclient]struct{}

	errMu sync.Mutex
	err   error

	resMu sync.Mutex
	res   *bundleResult
}

type bundleResult struct {
	// Page stays server side. Clients reload to pick it up; the socket
	// only carries the signal and any bundle failure.
	Page string `json:"-"`
	Err  string `json:"err"`
}

func newWatcher(ctx context.Context, ms *xmain.State, opts watcherOpts) (*watcher, error) {
	ctx, cancel := context.WithCancel(ctx)

	pkgPath := opts.pkgDir
	if !filepath.IsAbs(pkgPath) {
		pkgPath = filepath.Join(filepath.Dir(opts.inputPath), pkgPath)
	}

	w := &watcher{
		ctx:     ctx,
		cancel:  cancel,
		devMode: devMode,

		ms:          ms,
		watcherOpts: opts,

		pkgPath: pkgPath,

		bundleCh:  make(chan struct{}, 1),
		wsclients: make(map[*wsclient]struct{}),
	}
	err := w.init()
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *watcher) init() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fw = fw
	err = w.initStaticFileServer()
	if err != nil {
		return err
	}
	w.pageFileServer = http.FileServer(http.Dir(w.pageDir()))
	return w.listen()
}

func (w *watcher) pageDir() string {
	return filepath.Dir(w.inputPath)
}

func (w *watcher) initStaticFileServer() error {
	if w.devMode {
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			return errors.New("archi-zoom: runtime failed to provide path of watch.go")
		}

		staticFilesDir := filepath.Join(filepath.Dir(file), "./static")
		w.staticFileServer = http.FileServer(http.Dir(staticFilesDir))
		return nil
	}

	sfs, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}
	w.staticFileServer = http.FileServer(http.FS(sfs))
	return nil
}

func (w *watcher) run() error {
	defer w.close()

	w.goFunc(w.watchLoop)
	w.goFunc(w.bundleLoop)

	err := w.goServe()
	if err != nil {
		return err
	}

	w.wg.Wait()
	w.close()
	return w.err
}

func (w *watcher) close() {
	w.wsclientsMu.Lock()
	closing := w.closing
	w.closing = true
	w.wsclientsMu.Unlock()
	if closing {
		return
	}

	w.cancel()
	if w.fw != nil {
		w.setErr(w.fw.Close())
	}
	if w.l != nil {
		w.setErr(w.l.Close())
	}

	w.wsclientsWG.Wait()
}

func (w *watcher) setErr(err error) {
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *watcher) goFunc(fn func(context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.cancel()

		err := fn(w.ctx)
		w.setErr(err)
	}()
}

// watchLoop is written around the quirks of file system notification APIs:
// editors that replace files instead of writing them, bursts of events for
// one logical edit, benign Chmods and watches that drop silently.
// https://github.com/fsnotify/fsnotify/issues/372 is a good survey.
func (w *watcher) watchLoop(ctx context.Context) error {
	lastModified := make(map[string]time.Time)

	mt, err := w.ensureAddWatch(ctx, w.inputPath)
	if err != nil {
		return err
	}
	lastModified[w.inputPath] = mt
	w.ms.Log.Info.Printf("bundling %v...", w.ms.HumanPath(w.inputPath))
	w.requestBundle()

	eatBurstTimer := time.NewTimer(0)
	<-eatBurstTimer.C
	pollTicker := time.NewTicker(time.Second * 10)
	defer pollTicker.Stop()

	changed := make(map[string]struct{})

	for {
		select {
		case <-pollTicker.C:
			// Watches drop without a goodbye event. Re-add every watch and
			// compare modified times to catch anything missed meanwhile.
			missedChanges := false
			for _, watched := range w.fw.WatchList() {
				mt, err := w.ensureAddWatch(ctx, watched)
				if err != nil {
					return err
				}
				if mt2, ok := lastModified[watched]; !ok || !mt.Equal(mt2) {
					missedChanges = true
					lastModified[watched] = mt
				}
			}
			if missedChanges {
				w.requestBundle()
			}
		case ev, ok := <-w.fw.Events:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Debug.Printf("received file system event %v", ev)
			mt, err := w.ensureAddWatch(ctx, ev.Name)
			if err != nil {
				return err
			}
			if ev.Op == fsnotify.Chmod {
				if mt.Equal(lastModified[ev.Name]) {
					// Chmod with an unchanged mtime carries no content
					// change, see fsnotify issue 15.
					continue
				}
				// The content changed under a Chmod we would have skipped.
				lastModified[ev.Name] = mt
			}
			changed[ev.Name] = struct{}{}
			// Wait for the burst of events from one logical edit to settle
			// so that a half written file is never bundled.
			eatBurstTimer.Reset(time.Millisecond * 16)
		case <-eatBurstTimer.C:
			changedList := make([]string, 0, len(changed))
			for p := range changed {
				changedList = append(changedList, w.ms.HumanPath(p))
				delete(changed, p)
			}
			sort.Strings(changedList)
			w.ms.Log.Info.Printf("detected change in %s: rebundling...", strings.Join(changedList, ", "))
			w.requestBundle()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Error.Printf("fsnotify error: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *watcher) requestBundle() {
	select {
	case w.bundleCh <- struct{}{}:
	default:
	}
}

func (w *watcher) ensureAddWatch(ctx context.Context, path string) (time.Time, error) {
	interval := time.Millisecond * 16
	tc := time.NewTimer(0)
	<-tc.C
	for {
		mt, err := w.addWatch(ctx, path)
		if err == nil {
			return mt, nil
		}
		if interval >= time.Second {
			w.ms.Log.Error.Printf("failed to watch %q: %v (retrying in %v)", w.ms.HumanPath(path), err, interval)
		}

		tc.Reset(interval)
		select {
		case <-tc.C:
			if interval < time.Second {
				interval = time.Second
			}
			if interval < time.Second*16 {
				interval *= 2
			}
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
}

func (w *watcher) addWatch(ctx context.Context, path string) (time.Time, error) {
	err := w.fw.Add(path)
	if err != nil {
		return time.Time{}, err
	}
	var d os.FileInfo
	d, err = os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return d.ModTime(), nil
}

// replaceWatchList points the watcher at exactly paths plus the page
// itself, dropping stale watches best effort.
func (w *watcher) replaceWatchList(ctx context.Context, paths []string) error {
	want := make(map[string]struct{}, len(paths)+1)
	want[w.inputPath] = struct{}{}
	for _, p := range paths {
		want[p] = struct{}{}
	}

	watched := make(map[string]struct{})
	for _, p := range w.fw.WatchList() {
		watched[p] = struct{}{}
		if _, ok := want[p]; !ok {
			w.fw.Remove(p)
		}
	}
	for p := range want {
		if _, ok := watched[p]; !ok {
			if _, err := w.ensureAddWatch(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *watcher) bundleLoop(ctx context.Context) error {
	firstBundle := true
	for {
		select {
		case <-w.bundleCh:
		case <-ctx.Done():
			return ctx.Err()
		}

		rebundledPrefix := ""
		if !firstBundle {
			rebundledPrefix = "re"
		}

		start := time.Now()
		var page []byte
		var deps []string
		input, err := os.ReadFile(w.inputPath)
		if err == nil {
			page, deps, err = azbundle.Bundle(ctx, os.DirFS(w.pageDir()), input, w.bundleOpts)
		}
		if len(page) > 0 {
			err = multierr.Combine(err, Write(w.ms, w.outputPath, page))
		}
		errs := ""
		if err != nil {
			if len(page) > 0 {
				err = fmt.Errorf("failed to fully %sbundle (serving partial page): %w", rebundledPrefix, err)
			} else {
				err = fmt.Errorf("failed to %sbundle: %w", rebundledPrefix, err)
			}
			errs = err.Error()
			w.ms.Log.Error.Print(errs)
		} else {
			w.ms.Log.Success.Printf("successfully %sbundled %s to %s in %s", rebundledPrefix, w.ms.HumanPath(w.inputPath), w.ms.HumanPath(w.outputPath), time.Since(start))
		}

		watchPaths := make([]string, 0, len(deps)+1)
		for _, dep := range deps {
			watchPaths = append(watchPaths, filepath.Join(w.pageDir(), dep))
		}
		// The built viewer only joins the watch list once it exists;
		// ensureAddWatch would otherwise retry a missing pkg dir forever.
		if _, serr := os.Stat(w.pkgPath); serr == nil {
			watchPaths = append(watchPaths, w.pkgPath)
		}
		err = w.replaceWatchList(ctx, watchPaths)
		if err != nil {
			return err
		}

		w.broadcast(&bundleResult{
			Page: string(w.injectReload(ctx, page)),
			Err:  errs,
		})

		if firstBundle {
			firstBundle = false
			url := fmt.Sprintf("http://%s", w.l.Addr())
			err = xbrowser.Open(ctx, w.ms.Env, url)
			if err != nil {
				w.ms.Log.Warn.Printf("failed to open browser to %v: %v", url, err)
			}
		}
	}
}

// injectReload adds the reload client to the served copy of the page. The
// copy written to outputPath stays clean. The page is already bundled so
// this pass only touches scripts; its failures duplicate ones already
// reported and are dropped.
func (w *watcher) injectReload(ctx context.Context, page []byte) []byte {
	if len(page) == 0 {
		return nil
	}
	served, _, _ := azbundle.Bundle(ctx, os.DirFS(w.pageDir()), page, azbundle.Opts{
		Prefix:        w.bundleOpts.Prefix,
		InjectScripts: []string{"/static/watch.js"},
	})
	if len(served) == 0 {
		return page
	}
	return served
}

func (w *watcher) listen() error {
	l, err := net.Listen("tcp", net.JoinHostPort(w.host, w.port))
	if err != nil {
		return err
	}
	w.l = l
	w.ms.Log.Success.Printf("listening on http://%v", w.l.Addr())
	return nil
}

func (w *watcher) goServe() error {
	m := http.NewServeMux()
	m.HandleFunc("/", w.handleRoot)
	m.Handle("/static/", http.StripPrefix("/static", w.staticFileServer))
	m.Handle("/pkg/", http.StripPrefix("/pkg", http.FileServer(http.Dir(w.pkgPath))))
	m.Handle("/watch", xhttp.HandlerFuncAdapter{Log: w.ms.Log, Func: w.handleWatch})

	s := xhttp.NewServer(w.ms.Log.Warn, xhttp.Log(w.ms.Log, m))
	w.goFunc(func(ctx context.Context) error {
		return xhttp.Serve(ctx, time.Second*30, s, w.l)
	})

	return nil
}

func (w *watcher) getRes() *bundleResult {
	w.resMu.Lock()
	defer w.resMu.Unlock()
	return w.res
}

func (w *watcher) handleRoot(hw http.ResponseWriter, r *http.Request) {
	// Only the page itself is bundled; everything else it references is
	// served straight from its directory.
	if r.URL.Path != "/" && r.URL.Path != "/"+filepath.Base(w.inputPath) {
		w.pageFileServer.ServeHTTP(hw, r)
		return
	}

	hw.Header().Set("Content-Type", "text/html; charset=utf-8")
	res := w.getRes()
	if res == nil || res.Page == "" {
		// Nothing bundled yet. Serve a shell that reloads itself once the
		// first bundle lands.
		fmt.Fprintf(hw, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>%s</title>
	<script src="/static/watch.js"></script>
	<link rel="stylesheet" href="/static/watch.css">
</head>
<body></body>
</html>`, filepath.Base(w.outputPath))
		return
	}
	fmt.Fprint(hw, res.Page)
}

func (w *watcher) handleWatch(hw http.ResponseWriter, r *http.Request) error {
	w.wsclientsMu.Lock()
	if w.closing {
		w.wsclientsMu.Unlock()
		return xhttp.Errorf(http.StatusServiceUnavailable, "server shutting down...", "server shutting down...")
	}
	// Register before the upgrade hijacks the connection so that w.close()
	// cannot return without waiting for this client.
	w.wsclientsWG.Add(1)
	w.wsclientsMu.Unlock()

	c, err := websocket.Accept(hw, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		w.wsclientsWG.Done()
		return err
	}

	cl := &wsclient{
		w:         w,
		resultsCh: make(chan struct{}, 1),
		c:         c,
	}
	go cl.serve()
	return nil
}

func (cl *wsclient) serve() {
	w := cl.w
	defer w.wsclientsWG.Done()
	defer cl.c.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithTimeout(w.ctx, time.Hour)
	defer cancel()

	w.wsclientsMu.Lock()
	w.wsclients[cl] = struct{}{}
	w.wsclientsMu.Unlock()
	defer func() {
		w.wsclientsMu.Lock()
		delete(w.wsclients, cl)
		w.wsclientsMu.Unlock()
	}()

	ctx = cl.c.CloseRead(ctx)
	go wsHeartbeat(ctx, cl.c)
	_ = cl.writeLoop(ctx)
}

type wsclient struct {
	w         *watcher
	resultsCh chan struct{}
	c         *websocket.Conn
}

func (cl *wsclient) writeLoop(ctx context.Context) error {
	// A fresh client is already looking at the latest page, so replaying
	// the last result would reload it in a loop. Only a standing failure
	// is worth replaying.
	if res := cl.w.getRes(); res != nil && res.Err != "" {
		err := cl.write(ctx, res)
		if err != nil {
			return err
		}
	}

	for {
		select {
		case <-cl.resultsCh:
		case <-ctx.Done():
			cl.c.Close(websocket.StatusGoingAway, "server shutting down...")
			return ctx.Err()
		}

		if res := cl.w.getRes(); res != nil {
			if err := cl.write(ctx, res); err != nil {
				return err
			}
		}
	}
}

func (cl *wsclient) write(ctx context.Context, res *bundleResult) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	return wsjson.Write(ctx, cl.c, res)
}

func (w *watcher) broadcast(res *bundleResult) {
	w.resMu.Lock()
	w.res = res
	w.resMu.Unlock()

	w.wsclientsMu.Lock()
	defer w.wsclientsMu.Unlock()
	plural := "s"
	if len(w.wsclients) == 1 {
		plural = ""
	}
	w.ms.Log.Info.Printf("broadcasting update to %d client%s", len(w.wsclients), plural)
	for cl := range w.wsclients {
		// Drop the nudge if one is already pending; writeLoop reads the
		// latest result either way.
		select {
		case cl.resultsCh <- struct{}{}:
		default:
		}
	}
}

func wsHeartbeat(ctx context.Context, c *websocket.Conn) {
	defer c.Close(websocket.StatusInternalError, "internal error")

	t := time.NewTimer(0)
	<-t.C
	for {
		if c.Ping(ctx) != nil {
			return
		}

		t.Reset(time.Second * 30)
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
}
