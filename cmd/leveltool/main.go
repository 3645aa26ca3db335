// Command leveltool creates, edits, and inspects level files, and moves
// levels between the levels directory and the level store.
//
//	leveltool new      -name "Ridge" -rows 8 -cols 12 [-height 1] [-gradient]
//	leveltool generate -name "Hills" -rows 16 -cols 16 [-seed 42] [-max-height 6]
//	leveltool set      -file assets/levels/ridge.toml -row 2 -col 3 -height 4
//	leveltool show     -file assets/levels/ridge.toml
//	leveltool layout   -file assets/levels/ridge.toml [-json]
//	leveltool stats    -file assets/levels/ridge.toml
//	leveltool import   [-dir assets/levels] [-replace]   (files -> store)
//	leveltool export   [-dir assets/levels]              (store -> files)
//	leveltool stored
//	leveltool delete   -name "Ridge"
//	leveltool remote   [-url http://localhost:8080] <status|levels|get|set|select|next|prev> [flags]
//
// Defaults for directories, the store, and the hex layout come from the same
// environment as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/system-tactics/internal/client"
	"github.com/talgya/system-tactics/internal/config"
	"github.com/talgya/system-tactics/internal/geometry"
	"github.com/talgya/system-tactics/internal/hexgrid"
	"github.com/talgya/system-tactics/internal/level"
	"github.com/talgya/system-tactics/internal/logging"
	"github.com/talgya/system-tactics/internal/persistence"
)

var errUsage = errors.New("usage: leveltool <new|generate|set|show|layout|stats|import|export|stored|delete|remote> [flags]")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(cfg.Logging)

	if err := run(cfg, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}
}

func run(cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmds := map[string]func(*config.Config, []string, io.Writer) error{
		"new":      cmdNew,
		"generate": cmdGenerate,
		"set":      cmdSet,
		"show":     cmdShow,
		"layout":   cmdLayout,
		"stats":    cmdStats,
		"import":   cmdImport,
		"export":   cmdExport,
		"stored":   cmdStored,
		"delete":   cmdDelete,
		"remote":   cmdRemote,
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
	return cmd(cfg, args[1:], out)
}

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("leveltool "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// heightValue is a flag.Value for a height level. Values that do not fit a
// uint32 are parse errors.
type heightValue uint32

func (h *heightValue) String() string {
	if h == nil {
		return "0"
	}
	return strconv.FormatUint(uint64(*h), 10)
}

func (h *heightValue) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fmt.Errorf("height must be an integer from 0 to %d", uint32(math.MaxUint32))
	}
	*h = heightValue(v)
	return nil
}

func heightFlag(fs *flag.FlagSet, name string, value uint32, usage string) *uint32 {
	p := new(uint32)
	*p = value
	fs.Var((*heightValue)(p), name, usage)
	return p
}

// layoutFlags registers -orientation and -radius, defaulting to cfg, and
// returns a func resolving them after parsing.
func layoutFlags(fs *flag.FlagSet, cfg *config.Config) func() (hexgrid.Layout, error) {
	orient := fs.String("orientation", cfg.Levels.Orientation.String(), "hex orientation: pointy or flat")
	radius := fs.Float64("radius", cfg.Levels.CellRadius, "cell radius in world units")
	return func() (hexgrid.Layout, error) {
		o, err := hexgrid.ParseOrientation(*orient)
		if err != nil {
			return hexgrid.Layout{}, err
		}
		if *radius <= 0 {
			return hexgrid.Layout{}, fmt.Errorf("radius must be positive, got %v", *radius)
		}
		return hexgrid.Layout{Orientation: o, CellRadius: *radius}, nil
	}
}

func cmdNew(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("new", out)
	dir := fs.String("dir", cfg.Levels.Dir, "levels directory")
	name := fs.String("name", "", "level name (required)")
	rows := fs.Int("rows", 10, "row count")
	cols := fs.Int("cols", 10, "column count")
	height := heightFlag(fs, "height", 1, "height of every cell")
	gradient := fs.Bool("gradient", false, "slope from front-left (low) to back-right (high) instead of a flat fill")
	scale := fs.Float64("scale", float64(level.DefaultScale), "world units per height level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var l *level.Level
	var err error
	if *gradient {
		l, err = level.NewGradient(*name, *rows, *cols)
	} else {
		l, err = level.New(*name, *rows, *cols, *height)
	}
	if err != nil {
		return err
	}
	if err := l.SetScale(float32(*scale)); err != nil {
		return err
	}
	return writeLevel(*dir, l, out)
}

func cmdGenerate(cfg *config.Config, args []string, out io.Writer) error {
	gen := level.DefaultGenConfig()
	gen.Orientation = cfg.Levels.Orientation

	fs := newFlags("generate", out)
	dir := fs.String("dir", cfg.Levels.Dir, "levels directory")
	fs.StringVar(&gen.Name, "name", gen.Name, "level name")
	fs.IntVar(&gen.Rows, "rows", gen.Rows, "row count")
	fs.IntVar(&gen.Columns, "cols", gen.Columns, "column count")
	fs.Int64Var(&gen.Seed, "seed", 0, "noise seed (0 = random)")
	maxHeight := heightFlag(fs, "max-height", gen.MaxHeight, "highest height level")
	fs.Float64Var(&gen.Frequency, "frequency", gen.Frequency, "noise frequency")
	fs.IntVar(&gen.Octaves, "octaves", gen.Octaves, "noise octaves")
	if err := fs.Parse(args); err != nil {
		return err
	}
	gen.MaxHeight = *maxHeight

	l, err := level.Generate(gen)
	if err != nil {
		return err
	}
	return writeLevel(*dir, l, out)
}

func cmdSet(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("set", out)
	file := fs.String("file", "", "level file (required)")
	row := fs.Int("row", -1, "row index")
	col := fs.Int("col", -1, "column index")
	height := heightFlag(fs, "height", 0, "new height")
	if err := fs.Parse(args); err != nil {
		return err
	}

	l, err := loadFlagFile(*file)
	if err != nil {
		return err
	}
	if err := l.SetHeight(*row, *col, *height); err != nil {
		return err
	}
	if _, err := geometry.GenerateLevelLayout(l, cfg.Layout()); err != nil {
		return err
	}
	if err := level.SaveFile(filepath.Dir(*file), filepath.Base(*file), l); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: (%d,%d) = %d\n", l.Name(), *row, *col, *height)
	return nil
}

func cmdShow(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("show", out)
	file := fs.String("file", "", "level file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	l, err := loadFlagFile(*file)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s  %dx%d  scale %g\n", l.Name(), l.Rows(), l.Columns(), l.Scale())
	drawHeights(out, l, cfg.Levels.Orientation)
	return nil
}

// drawHeights prints the height field as text. Pointy-top grids indent odd
// rows; flat-top grids stagger odd columns onto a second line.
func drawHeights(out io.Writer, l *level.Level, o hexgrid.Orientation) {
	for row := 0; row < l.Rows(); row++ {
		var line strings.Builder
		if o == hexgrid.PointyTop {
			if row&1 == 1 {
				line.WriteString("  ")
			}
			for col := 0; col < l.Columns(); col++ {
				h, _ := l.Height(row, col)
				fmt.Fprintf(&line, "%4d", h)
			}
			fmt.Fprintln(out, strings.TrimRight(line.String(), " "))
			continue
		}

		var odd strings.Builder
		for col := 0; col < l.Columns(); col++ {
			h, _ := l.Height(row, col)
			if col&1 == 0 {
				fmt.Fprintf(&line, "%4d    ", h)
			} else {
				fmt.Fprintf(&odd, "    %4d", h)
			}
		}
		fmt.Fprintln(out, strings.TrimRight(line.String(), " "))
		if odd.Len() > 0 {
			fmt.Fprintln(out, strings.TrimRight(odd.String(), " "))
		}
	}
}

func cmdLayout(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("layout", out)
	file := fs.String("file", "", "level file (required)")
	asJSON := fs.Bool("json", false, "print cells as JSON")
	resolve := layoutFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	layout, err := resolve()
	if err != nil {
		return err
	}

	l, err := loadFlagFile(*file)
	if err != nil {
		return err
	}
	cells, err := geometry.GenerateLevelLayout(l, layout)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cells)
	}
	for _, c := range cells {
		fmt.Fprintf(out, "(%d,%d)\t%s\th=%d\t(%.3f, %.3f, %.3f)\n",
			c.Row, c.Col, c.Coord, c.Height, c.Position.X, c.Position.Y, c.Position.Z)
	}
	return nil
}

func cmdStats(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("stats", out)
	file := fs.String("file", "", "level file (required)")
	resolve := layoutFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	layout, err := resolve()
	if err != nil {
		return err
	}

	l, err := loadFlagFile(*file)
	if err != nil {
		return err
	}
	cells, err := geometry.GenerateLevelLayout(l, layout)
	if err != nil {
		return err
	}

	st := summarize(cells)
	bounds := geometry.WorldBounds(l, layout)
	size := bounds.Size()

	fmt.Fprintf(out, "level      %s\n", l.Name())
	fmt.Fprintf(out, "cells      %s (%dx%d)\n", humanize.Comma(int64(len(cells))), l.Rows(), l.Columns())
	fmt.Fprintf(out, "heights    %d distinct, max %d\n", st.meshes, l.MaxHeight())
	fmt.Fprintf(out, "vertices   %s unique, %s drawn\n", humanize.Comma(int64(st.uniqueVertices)), humanize.Comma(int64(st.drawnVertices)))
	fmt.Fprintf(out, "triangles  %s drawn\n", humanize.Comma(int64(st.drawnTriangles)))
	fmt.Fprintf(out, "mesh data  %s\n", humanize.Bytes(st.meshBytes))
	fmt.Fprintf(out, "extent     %.2f x %.2f x %.2f\n", size.X, size.Y, size.Z)
	return nil
}

type layoutStats struct {
	meshes         int
	uniqueVertices int
	drawnVertices  int
	drawnTriangles int
	meshBytes      uint64
}

// Per-vertex position, normal, and UV as float32; indices as uint16.
const (
	bytesPerVertex = (3 + 3 + 2) * 4
	bytesPerIndex  = 2
)

func summarize(cells []geometry.Cell) layoutStats {
	var st layoutStats
	seen := make(map[*geometry.ColumnMesh]bool)
	for _, c := range cells {
		m := c.Mesh
		st.drawnVertices += len(m.Vertices)
		st.drawnTriangles += m.TriangleCount()
		if seen[m] {
			continue
		}
		seen[m] = true
		st.meshes++
		st.uniqueVertices += len(m.Vertices)
		st.meshBytes += uint64(len(m.Vertices)*bytesPerVertex + (len(m.Indices)+len(m.EdgeIndices))*bytesPerIndex)
	}
	return st
}

// cmdImport copies level files into the store. With -replace the store ends
// up holding exactly the directory's levels.
func cmdImport(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("import", out)
	dir := fs.String("dir", cfg.Levels.Dir, "levels directory")
	replace := fs.Bool("replace", false, "delete stored levels that are not in -dir")
	if err := fs.Parse(args); err != nil {
		return err
	}

	levels, err := level.ReadDirectory(*dir)
	if err != nil {
		return err
	}
	if len(levels) == 0 {
		return fmt.Errorf("no valid %s files in %s", level.FileExt, *dir)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if *replace {
		if err := db.SaveLevels(levels); err != nil {
			return err
		}
	} else {
		for _, l := range levels {
			if err := db.SaveLevel(l); err != nil {
				return err
			}
		}
	}
	for _, l := range levels {
		fmt.Fprintf(out, "imported %s\n", l.Name())
	}
	return nil
}

func cmdExport(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("export", out)
	dir := fs.String("dir", cfg.Levels.Dir, "levels directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	levels, err := db.LoadLevels()
	if err != nil {
		return err
	}
	if err := checkFileNames(levels); err != nil {
		return err
	}
	for _, l := range levels {
		if err := writeLevel(*dir, l, out); err != nil {
			return err
		}
	}
	return nil
}

// checkFileNames fails if two levels would be written to the same file.
func checkFileNames(levels []*level.Level) error {
	owner := make(map[string]string, len(levels))
	var clashes []string
	for _, l := range levels {
		file := level.FileName(l.Name())
		if prev, ok := owner[file]; ok {
			clashes = append(clashes, fmt.Sprintf("%q and %q -> %s", prev, l.Name(), file))
			continue
		}
		owner[file] = l.Name()
	}
	if len(clashes) > 0 {
		return fmt.Errorf("levels share a file name: %s", strings.Join(clashes, "; "))
	}
	return nil
}

func cmdStored(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("stored", out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	levels, err := db.ListLevels()
	if err != nil {
		return err
	}
	for _, s := range levels {
		fmt.Fprintf(out, "%-24s %3dx%-3d updated %s\n", s.Name, s.Rows, s.Columns, humanize.Time(s.UpdatedAt))
	}
	return nil
}

func cmdDelete(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("delete", out)
	name := fs.String("name", "", "stored level name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("-name is required")
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteLevel(*name); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", *name)
	return nil
}

func openStore(cfg *config.Config) (*persistence.DB, error) {
	if cfg.Storage.Driver == "" {
		return nil, errors.New("no level store configured (DB_DRIVER=none)")
	}
	if cfg.Storage.Driver == persistence.DriverSQLite {
		os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0755)
	}
	return persistence.Open(cfg.Storage.Driver, cfg.Storage.DSN)
}

func loadFlagFile(path string) (*level.Level, error) {
	if path == "" {
		return nil, errors.New("-file is required")
	}
	return level.LoadFile(path)
}

func writeLevel(dir string, l *level.Level, out io.Writer) error {
	name := level.FileName(l.Name())
	if err := level.SaveFile(dir, name, l); err != nil {
		return err
	}
	slog.Debug("level written", "name", l.Name(), "dir", dir)
	fmt.Fprintln(out, filepath.Join(dir, name))
	return nil
}

// cmdRemote runs one action against a running server.
func cmdRemote(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlags("remote", out)
	baseURL := fs.String("url", "http://localhost"+cfg.Server.Addr, "server base URL")
	key := fs.String("key", cfg.Server.AdminKey, "admin bearer token")
	name := fs.String("level", "", "level name (default: the server's current level)")
	row := fs.Int("row", -1, "row index")
	col := fs.Int("col", -1, "column index")
	height := heightFlag(fs, "height", 0, "new height (set)")
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("remote needs exactly one action: status, levels, get, set, select, next, or prev")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := client.New(strings.TrimRight(*baseURL, "/"), *key)
	if err := c.WaitReady(ctx); err != nil {
		return err
	}

	levelName := func() (string, error) {
		if *name != "" {
			return *name, nil
		}
		st, err := c.Status(ctx)
		if err != nil {
			return "", err
		}
		return st.CurrentLevel, nil
	}

	switch action := fs.Arg(0); action {
	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d levels, current %q, %s hexes r=%g, up %s\n",
			st.Name, st.Levels, st.CurrentLevel, st.Orientation, st.CellRadius, st.Uptime)
	case "levels":
		levels, err := c.Levels(ctx)
		if err != nil {
			return err
		}
		for _, l := range levels {
			mark := " "
			if l.Current {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-24s %3dx%-3d max %d\n", mark, l.Name, l.Rows, l.Columns, l.MaxHeight)
		}
	case "get", "set":
		lvl, err := levelName()
		if err != nil {
			return err
		}
		var cell *client.CellInfo
		if action == "get" {
			cell, err = c.Cell(ctx, lvl, *row, *col)
		} else {
			cell, err = c.SetHeight(ctx, lvl, *row, *col, *height)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%d,%d) axial (%d,%d) h=%d at (%.3f, %.3f, %.3f)\n",
			cell.Level, cell.Row, cell.Col, cell.Coord.Q, cell.Coord.R, cell.Height,
			cell.Position.X, cell.Position.Y, cell.Position.Z)
	case "select", "next", "prev":
		var current string
		var err error
		if action == "select" {
			if *name == "" {
				return errors.New("select needs -level")
			}
			current, err = c.Select(ctx, *name)
		} else {
			current, err = c.Step(ctx, action)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "current level: %s\n", current)
	default:
		return fmt.Errorf("unknown remote action %q", action)
	}
	return nil
}
