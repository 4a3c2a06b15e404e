package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gertd/go-pluralize"
	"github.com/rodaine/table"

	"github.com/lantern-mud/lanternmush/pkg/archive"
	"github.com/lantern-mud/lanternmush/pkg/attrstore"
	"github.com/lantern-mud/lanternmush/pkg/boltstore"
	"github.com/lantern-mud/lanternmush/pkg/config"
	"github.com/lantern-mud/lanternmush/pkg/create"
	"github.com/lantern-mud/lanternmush/pkg/dbsafe"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
	"github.com/lantern-mud/lanternmush/pkg/logger"
	"github.com/lantern-mud/lanternmush/pkg/validate"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}
	switch args[0] {
	case "info":
		return cmdInfo(args[1:], out, errOut)
	case "list":
		return cmdList(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "set":
		return cmdSet(args[1:], out, errOut)
	case "find":
		return cmdFind(args[1:], out, errOut)
	case "validate":
		return cmdValidate(args[1:], out, errOut)
	case "create-account":
		return cmdCreateAccount(args[1:], out, errOut)
	case "backup":
		return cmdBackup(args[1:], out, errOut)
	case "restore":
		return cmdRestore(args[1:], out, errOut)
	case "archives":
		return cmdArchives(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command %q\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "lanterndb: LanternMUSH database maintenance CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  lanterndb info [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb list <objects|scripts|accounts|channels|msgs|help> [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb get -ref <#n> -name <attr> [-category <c>] [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb set -ref <#n> -name <attr> -value <literal> [-category <c>] [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb find -name <attr> (-value <literal> | -null) [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb validate [-fix] [-json] [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb create-account -username <u> -email <e> -password <p> [-superuser] [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb backup [-out <dir>] [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb restore -archive <file> [-keep-conf] [-conf <file>]")
	fmt.Fprintln(w, "  lanterndb archives [-dir <dir>] [-prune <n>] [-conf <file>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - lanterndb opens the data files directly; stop the server first.")
	fmt.Fprintln(w, "  - Attribute values use the literal form: 42, 3.14, true, \"text\",")
	fmt.Fprintln(w, "    [1, 2], {\"key\": \"value\"}, #12, none.")
	fmt.Fprintln(w, "  - -conf falls back to the LANTERN_CONF environment variable.")
}

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func confFlag(fs *flag.FlagSet) *string {
	return fs.String("conf", envDefault("LANTERN_CONF", ""), "Path to game config file (env: LANTERN_CONF)")
}

// world bundles the opened stores behind one close.
type world struct {
	cfg   *config.Config
	store *boltstore.Store
	attrs *attrstore.Store
}

// openWorld loads the configured stores. It refuses to run against a
// tree the server has never booted so a mistyped path cannot spawn a
// second, empty database.
func openWorld(confPath string) (*world, error) {
	cfg, err := config.Load(confPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.BoltFile); err != nil {
		return nil, fmt.Errorf("no database at %s (has the server booted?)", cfg.BoltFile)
	}

	store, err := boltstore.Open(cfg.BoltFile)
	if err != nil {
		return nil, err
	}
	if store.HasData() {
		if err := store.LoadAll(); err != nil {
			store.Close()
			return nil, err
		}
	}

	attrs, err := attrstore.Open(cfg.AttrFile,
		attrstore.WithCompress(cfg.CompressAttrs),
		attrstore.WithResolver(gamedb.Resolver{DB: store.DB()}),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &world{cfg: cfg, store: store, attrs: attrs}, nil
}

func (w *world) Close() {
	w.attrs.Close()
	w.store.Close()
}

func cmdInfo(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()

	counts := w.store.DB().Counts()
	attrCount, err := w.attrs.Count()
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	pl := pluralize.NewClient()
	fmt.Fprintln(out, "=== DATABASE SUMMARY ===")
	fmt.Fprintf(out, "Mud name:    %s\n", w.cfg.MudName)
	fmt.Fprintf(out, "Record file: %s\n", w.cfg.BoltFile)
	fmt.Fprintf(out, "Attr file:   %s\n", w.cfg.AttrFile)
	fmt.Fprintf(out, "Next ref:    %s\n", w.store.DB().NextRef)
	fmt.Fprintln(out)
	for _, kind := range []struct{ key, word string }{
		{gamedb.TableObject, "object"},
		{gamedb.TableScript, "script"},
		{gamedb.TableAccount, "account"},
		{gamedb.TableChannel, "channel"},
		{gamedb.TableMsg, "message"},
		{gamedb.TableHelp, "help entry"},
	} {
		fmt.Fprintf(out, "  %s\n", pl.Pluralize(kind.word, counts[kind.key], true))
	}
	fmt.Fprintf(out, "\nStored attributes: %s\n", pl.Pluralize("row", attrCount, true))
	return 0
}

func cmdList(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: lanterndb list <objects|scripts|accounts|channels|msgs|help>")
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()
	db := w.store.DB()

	kind := strings.TrimSuffix(strings.ToLower(fs.Arg(0)), "s")
	switch kind {
	case "object":
		t := table.New("Ref", "Key", "Type", "Location", "Home").WithWriter(out)
		for _, o := range sortedByRef(db.Objects) {
			t.AddRow(o.Ref, truncate(o.Key, 25), o.TypePath, o.Location, o.Home)
		}
		t.Print()
		fmt.Fprintf(out, "\nTotal objects: %d\n", len(db.Objects))
	case "script":
		t := table.New("Ref", "Key", "Type", "Interval", "Repeats", "Active", "Attached").WithWriter(out)
		for _, s := range sortedByRef(db.Scripts) {
			t.AddRow(s.Ref, truncate(s.Key, 25), s.TypePath, s.Interval, s.Repeats, s.Active, attachedTo(s))
		}
		t.Print()
		fmt.Fprintf(out, "\nTotal scripts: %d\n", len(db.Scripts))
	case "account":
		t := table.New("Ref", "Username", "Email", "Superuser", "Last Login").WithWriter(out)
		for _, a := range sortedByRef(db.Accounts) {
			last := "never"
			if !a.LastLogin.IsZero() {
				last = a.LastLogin.Format("2006-01-02 15:04")
			}
			t.AddRow(a.Ref, truncate(a.Username, 25), truncate(a.Email, 30), a.IsSuperuser, last)
		}
		t.Print()
		fmt.Fprintf(out, "\nTotal accounts: %d\n", len(db.Accounts))
	case "channel":
		t := table.New("Ref", "Key", "Aliases", "Log", "Subscribers").WithWriter(out)
		for _, c := range sortedByRef(db.Channels) {
			t.AddRow(c.Ref, truncate(c.Key, 25), strings.Join(c.Aliases, ","), c.KeepLog, len(c.Subscribers))
		}
		t.Print()
		fmt.Fprintf(out, "\nTotal channels: %d\n", len(db.Channels))
	case "msg", "message":
		t := table.New("Ref", "Date", "Header", "Body", "Channels").WithWriter(out)
		for _, m := range sortedByRef(db.Msgs) {
			t.AddRow(m.Ref, m.Date.Format("2006-01-02 15:04"), truncate(m.Header, 20), truncate(m.Body, 40), refList(m.Channels))
		}
		t.Print()
		fmt.Fprintf(out, "\nTotal messages: %d\n", len(db.Msgs))
	case "help":
		t := table.New("Ref", "Key", "Category", "Aliases").WithWriter(out)
		for _, h := range sortedByRef(db.Help) {
			t.AddRow(h.Ref, truncate(h.Key, 25), h.Category, strings.Join(h.Aliases, ","))
		}
		t.Print()
		fmt.Fprintf(out, "\nTotal help entries: %d\n", len(db.Help))
	default:
		fmt.Fprintf(errOut, "unknown kind %q\n", fs.Arg(0))
		return 2
	}
	return 0
}

func cmdGet(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	refStr := fs.String("ref", "", "Record ref, #n form")
	name := fs.String("name", "", "Attribute name")
	category := fs.String("category", "", "Attribute category")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *refStr == "" || *name == "" {
		fmt.Fprintln(errOut, "usage: lanterndb get -ref <#n> -name <attr> [-category <c>]")
		return 2
	}
	ref, err := gamedb.ParseRef(*refStr)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()

	v, ok, err := w.attrs.Get(ref, *name, *category)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintf(errOut, "No attribute %q on %s\n", *name, ref)
		return 1
	}
	text, err := w.attrs.Field().RenderForm(v)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, text)
	return 0
}

func cmdSet(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	refStr := fs.String("ref", "", "Record ref, #n form")
	name := fs.String("name", "", "Attribute name")
	category := fs.String("category", "", "Attribute category")
	value := fs.String("value", "", "New value in literal form")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *refStr == "" || *name == "" {
		fmt.Fprintln(errOut, "usage: lanterndb set -ref <#n> -name <attr> -value <literal> [-category <c>]")
		return 2
	}
	ref, err := gamedb.ParseRef(*refStr)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()

	v, err := w.attrs.Field().ParseForm(*name, *value)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	if err := w.attrs.Set(ref, *name, *category, v); err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	text, err := w.attrs.Field().RenderForm(v)
	if err != nil {
		text = *value
	}
	fmt.Fprintf(out, "%s %s = %s\n", ref, *name, text)
	return 0
}

func cmdFind(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	name := fs.String("name", "", "Attribute name")
	value := fs.String("value", "", "Value to match in literal form")
	null := fs.Bool("null", false, "Match attributes stored as none")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" || (*value == "" && !*null) {
		fmt.Fprintln(errOut, "usage: lanterndb find -name <attr> (-value <literal> | -null)")
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()

	kind := dbsafe.LookupExact
	var rhs any
	if *null {
		kind = dbsafe.LookupIsNull
	} else {
		rhs, err = w.attrs.Field().ParseForm(*name, *value)
		if err != nil {
			fmt.Fprintf(errOut, "ERROR: %v\n", err)
			return 1
		}
	}

	refs, err := w.attrs.Find(*name, kind, rhs)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	if len(refs) == 0 {
		fmt.Fprintln(out, "No matches.")
		return 0
	}

	db := w.store.DB()
	t := table.New("Ref", "Kind", "Key").WithWriter(out)
	for _, ref := range refs {
		recKind, key := describeRef(db, ref)
		t.AddRow(ref, recKind, truncate(key, 40))
	}
	t.Print()
	fmt.Fprintf(out, "\nTotal matches: %d\n", len(refs))
	return 0
}

func cmdValidate(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	fix := fs.Bool("fix", false, "Apply fixes and save the database")
	asJSON := fs.Bool("json", false, "Emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()

	v := validate.New(validate.Input{
		DB:    w.store.DB(),
		Attrs: w.attrs,
		Index: w.store,
	})
	findings := v.Run()

	if *fix {
		if fixed := v.ApplyAll(); fixed > 0 {
			if err := w.store.SaveAll(w.store.DB()); err != nil {
				fmt.Fprintf(errOut, "ERROR: %v\n", err)
				return 1
			}
		}
	}

	unfixedErrors := 0
	errors, warnings := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case validate.SevError:
			errors++
			if !f.Fixed {
				unfixedErrors++
			}
		case validate.SevWarning:
			warnings++
		}
	}

	if *asJSON {
		if err := validate.GenerateReport(v).WriteJSON(out); err != nil {
			fmt.Fprintf(errOut, "ERROR: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintln(out, "=== VALIDATION ===")
		for _, f := range findings {
			line := fmt.Sprintf("%s [%s]: %s", strings.ToUpper(f.Severity.String()), f.ID, f.Description)
			if f.Fixed {
				line += " (fixed)"
			}
			fmt.Fprintln(out, line)
		}
		pl := pluralize.NewClient()
		fmt.Fprintf(out, "\nValidation complete: %s, %s\n",
			pl.Pluralize("error", errors, true), pl.Pluralize("warning", warnings, true))
	}

	if unfixedErrors > 0 {
		return 1
	}
	return 0
}

func cmdCreateAccount(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	username := fs.String("username", "", "Login name")
	email := fs.String("email", "", "Contact address")
	password := fs.String("password", "", "Initial password")
	superuser := fs.Bool("superuser", false, "Grant superuser")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *username == "" || *password == "" {
		fmt.Fprintln(errOut, "usage: lanterndb create-account -username <u> -email <e> -password <p> [-superuser]")
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()

	// Account creations land in the same audit log the server writes.
	lg := logger.NewServerLog(filepath.Join(w.cfg.LogDir, "server.log"), w.cfg.ServerLogMaxMB, w.cfg.ServerLogBackups)
	defer lg.Close()

	creator := &create.Creator{
		DB:    w.store.DB(),
		Store: w.store,
		Attrs: w.attrs,
		Log:   lg,
	}
	a, err := creator.Account(*username, *email, *password, create.AccountOpts{IsSuperuser: *superuser})
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created account %s (%s)\n", a.Username, a.Ref)
	return 0
}

func cmdBackup(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	outDir := fs.String("out", "", "Archive output directory (default <data_dir>/backups)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	w, err := openWorld(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	defer w.Close()

	dir := *outDir
	if dir == "" {
		dir = filepath.Join(w.cfg.DataDir, "backups")
	}

	start := time.Now()
	path, err := archive.Create(archive.Params{
		BoltSnapshot:   w.store.Backup,
		AttrPath:       w.cfg.AttrFile,
		AttrCheckpoint: w.attrs.Checkpoint,
		HelpDir:        w.cfg.HelpDir,
		ConfPath:       *conf,
		OutDir:         dir,
		MudName:        w.cfg.MudName,
		Counts:         w.store.DB().Counts(),
	})
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Archive written in %v: %s\n", time.Since(start).Round(time.Millisecond), path)
	return 0
}

func cmdRestore(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	archivePath := fs.String("archive", "", "Archive .tar.gz to restore")
	keepConf := fs.Bool("keep-conf", false, "Keep the live config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *archivePath == "" {
		fmt.Fprintln(errOut, "usage: lanterndb restore -archive <file> [-keep-conf]")
		return 2
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	res, err := archive.Restore(archive.RestoreParams{
		ArchivePath: *archivePath,
		BoltDest:    cfg.BoltFile,
		AttrDest:    cfg.AttrFile,
		HelpDest:    cfg.HelpDir,
		ConfDest:    *conf,
		KeepConf:    *keepConf,
	})
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Restore complete: %d files restored\n", res.FilesRestored)
	for _, warning := range res.Warnings {
		fmt.Fprintf(out, "WARNING: %s\n", warning)
	}
	return 0
}

func cmdArchives(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("archives", flag.ContinueOnError)
	fs.SetOutput(errOut)
	conf := confFlag(fs)
	dir := fs.String("dir", "", "Archive directory (default <data_dir>/backups)")
	prune := fs.Int("prune", 0, "Keep only the newest n archives")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	d := *dir
	if d == "" {
		d = filepath.Join(cfg.DataDir, "backups")
	}

	archives, err := archive.List(d)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	if len(archives) == 0 {
		fmt.Fprintf(out, "No archives in %s\n", d)
		return 0
	}

	t := table.New("File", "Created", "Mud", "Records", "Size").WithWriter(out)
	for _, ai := range archives {
		t.AddRow(ai.Filename, ai.Timestamp, ai.MudName, ai.Records, fmt.Sprintf("%.1f MB", float64(ai.Size)/1e6))
	}
	t.Print()

	if *prune > 0 {
		removed, err := archive.Prune(d, *prune)
		if err != nil {
			fmt.Fprintf(errOut, "ERROR: %v\n", err)
			return 1
		}
		for _, p := range removed {
			fmt.Fprintf(out, "Pruned %s\n", filepath.Base(p))
		}
	}
	return 0
}

// sortedByRef flattens a record map into a ref-ordered slice.
func sortedByRef[T any](m map[gamedb.DBRef]T) []T {
	refs := make([]gamedb.DBRef, 0, len(m))
	for ref := range m {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	out := make([]T, 0, len(refs))
	for _, ref := range refs {
		out = append(out, m[ref])
	}
	return out
}

// attachedTo names what a script hangs off, if anything.
func attachedTo(s *gamedb.Script) string {
	switch {
	case s.Obj != gamedb.Nothing:
		return "obj " + s.Obj.String()
	case s.Account != gamedb.Nothing:
		return "account " + s.Account.String()
	default:
		return "global"
	}
}

// refList renders a ref slice as a compact comma list.
func refList(refs []gamedb.DBRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// describeRef identifies which record, of any kind, owns a ref.
func describeRef(db *gamedb.Database, ref gamedb.DBRef) (kind, key string) {
	if o, ok := db.Objects[ref]; ok {
		return gamedb.TableObject, o.Key
	}
	if s, ok := db.Scripts[ref]; ok {
		return gamedb.TableScript, s.Key
	}
	if a, ok := db.Accounts[ref]; ok {
		return gamedb.TableAccount, a.Username
	}
	if c, ok := db.Channels[ref]; ok {
		return gamedb.TableChannel, c.Key
	}
	if m, ok := db.Msgs[ref]; ok {
		return gamedb.TableMsg, m.Header
	}
	if h, ok := db.Help[ref]; ok {
		return gamedb.TableHelp, h.Key
	}
	return "?", "(vanished)"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
