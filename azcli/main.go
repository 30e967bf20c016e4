package azcli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"oss.terrastruct.com/util-go/go2"
	"oss.terrastruct.com/util-go/xmain"

	"github.com/dylanowen/archi-zoom/azbundle"
	"github.com/dylanowen/archi-zoom/azloader"
	"github.com/dylanowen/archi-zoom/lib/log"
	timelib "github.com/dylanowen/archi-zoom/lib/time"
	"github.com/dylanowen/archi-zoom/lib/version"
)

func Run(ctx context.Context, ms *xmain.State) (err error) {
	ctx = log.WithDefault(ctx)
	watchFlag, err := ms.Opts.Bool("ARCHIZOOM_WATCH", "watch", "w", false, "watch for changes to the page and its diagrams and live reload. Use $HOST and $PORT to specify the listening address.\n(default localhost:0, which will open on a randomly available local port).")
	if err != nil {
		return err
	}
	hostFlag := ms.Opts.String("HOST", "host", "h", "localhost", "host listening address when used with watch")
	portFlag := ms.Opts.String("PORT", "port", "p", "0", "port listening address when used with watch")
	debugFlag, err := ms.Opts.Bool("DEBUG", "debug", "d", false, "print debug logs.")
	if err != nil {
		ms.Log.Warn.Printf("Invalid DEBUG flag value ignored")
		debugFlag = go2.Pointer(false)
	}
	prefixFlag := ms.Opts.String("ARCHIZOOM_PREFIX", "prefix", "", azloader.DefaultPrefix, "name of the viewer script and module pair that the injected loader boots from the page's pkg directory")
	pkgFlag := ms.Opts.String("ARCHIZOOM_PKG", "pkg", "", azloader.PkgDir, "directory next to the page holding the built viewer")
	svgCacheFlag, err := ms.Opts.Bool("ARCHIZOOM_SVG_CACHE", "svg-cache", "", true, "in watch mode, remote diagrams are cached for subsequent bundles. This should be disabled if remote diagrams might change.")
	if err != nil {
		return err
	}
	timeoutFlag, err := ms.Opts.Int64("ARCHIZOOM_TIMEOUT", "timeout", "", 120, "the maximum number of seconds that archi-zoom runs for before timing out and exiting. When bundling a page with many remote diagrams, it is recommended to increase this value")
	if err != nil {
		return err
	}
	versionFlag, err := ms.Opts.Bool("", "version", "v", false, "get the version")
	if err != nil {
		return err
	}
	browserFlag := ms.Opts.String("BROWSER", "browser", "", "", "browser executable that watch opens. Setting to 0 opens no browser.")

	err = ms.Opts.Flags.Parse(ms.Opts.Args)
	if !errors.Is(err, pflag.ErrHelp) && err != nil {
		return xmain.UsageErrorf("failed to parse flags: %v", err)
	}

	if errors.Is(err, pflag.ErrHelp) {
		help(ms)
		return nil
	}

	if len(ms.Opts.Flags.Args()) > 0 {
		switch ms.Opts.Flags.Arg(0) {
		case "check":
			return checkCmd(ctx, ms, *prefixFlag, *pkgFlag)
		case "version":
			if len(ms.Opts.Flags.Args()) > 1 {
				return xmain.UsageErrorf("version subcommand accepts no arguments")
			}
			fmt.Println(version.Version)
			return nil
		}
	}

	if *debugFlag {
		ctx = log.Leveled(ctx, slog.LevelDebug)
		ms.Env.Setenv("DEBUG", "1")
	}
	if *browserFlag != "" {
		ms.Env.Setenv("BROWSER", *browserFlag)
	}
	if timeoutFlag != nil {
		os.Setenv("ARCHIZOOM_TIMEOUT", fmt.Sprintf("%d", *timeoutFlag))
	}

	var inputPath string
	var outputPath string

	if len(ms.Opts.Flags.Args()) == 0 {
		if versionFlag != nil && *versionFlag {
			fmt.Println(version.Version)
			return nil
		}
		help(ms)
		return nil
	} else if len(ms.Opts.Flags.Args()) >= 3 {
		return xmain.UsageErrorf("too many arguments passed")
	}

	inputPath = ms.Opts.Flags.Arg(0)
	if len(ms.Opts.Flags.Args()) >= 2 {
		outputPath = ms.Opts.Flags.Arg(1)
	} else {
		if inputPath == "-" {
			outputPath = "-"
		} else {
			outputPath = bundledPath(inputPath)
		}
	}
	if inputPath != "-" {
		inputPath = ms.AbsPath(inputPath)
		d, err := os.Stat(inputPath)
		if err == nil && d.IsDir() {
			inputPath = filepath.Join(inputPath, "index.html")
		}
	}
	if outputPath != "-" {
		outputPath = ms.AbsPath(outputPath)
	}

	bundleOpts := azbundle.Opts{
		Prefix:      *prefixFlag,
		CacheRemote: *svgCacheFlag,
	}

	if *watchFlag {
		if inputPath == "-" {
			return xmain.UsageErrorf("-w[atch] cannot be combined with reading input from stdin")
		}
		w, err := newWatcher(ctx, ms, watcherOpts{
			host:       *hostFlag,
			port:       *portFlag,
			inputPath:  inputPath,
			outputPath: outputPath,
			pkgDir:     *pkgFlag,
			bundleOpts: bundleOpts,
		})
		if err != nil {
			return err
		}
		return w.run()
	}

	ctx, cancel := timelib.WithTimeout(ctx, time.Minute*2)
	defer cancel()

	_, written, err := bundle(ctx, ms, inputPath, outputPath, bundleOpts)
	if err != nil {
		if written {
			return fmt.Errorf("failed to fully bundle (partial page written) %s: %w", ms.HumanPath(inputPath), err)
		}
		return fmt.Errorf("failed to bundle %s: %w", ms.HumanPath(inputPath), err)
	}
	return nil
}

// bundledPath derives the default output path, page.html -> page.bundle.html.
func bundledPath(fp string) string {
	ext := filepath.Ext(fp)
	if ext == "" {
		return fp + ".bundle.html"
	}
	return strings.TrimSuffix(fp, ext) + ".bundle" + ext
}

func Write(ms *xmain.State, path string, out []byte) error {
	err := ms.AtomicWritePath(path, out)
	if err == nil {
		return nil
	}
	ms.Log.Debug.Printf("atomic write failed: %s, trying non-atomic write", err.Error())
	return ms.WritePath(path, out)
}
