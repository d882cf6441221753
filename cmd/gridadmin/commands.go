package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/crystal-mush/gridadmin/pkg/admin"
	"github.com/crystal-mush/gridadmin/pkg/archive"
	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/boltstore"
	"github.com/crystal-mush/gridadmin/pkg/validate"
	"github.com/crystal-mush/gridadmin/pkg/web"
	"github.com/crystal-mush/gridadmin/pkg/world"
	"github.com/crystal-mush/gridadmin/pkg/worldfile"
)

func cmdImport(e *env, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", e.cfg.WorldFile, "YAML world file to import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("no world file given")
	}
	w, err := worldfile.Load(*file)
	if err != nil {
		return err
	}

	v := validate.New(w)
	for _, f := range v.Run() {
		if f.Severity == validate.SevError {
			e.log.Warn().Str("finding", f.ID).Str("category", f.Category.String()).Msg(f.Description)
		}
	}

	store, err := boltstore.Open(e.cfg.BoltPath)
	if err != nil {
		return err
	}
	e.store = store
	if err := store.ImportWorld(w); err != nil {
		return err
	}
	printSummary(w)
	return nil
}

func cmdSummary(e *env, args []string) error {
	store, err := e.openStore()
	if err != nil {
		return err
	}
	printSummary(store.World())
	if at := store.SavedAt(); !at.IsZero() {
		fmt.Printf("\nSnapshot saved %s\n", at.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printSummary(w *world.World) {
	grids, blocks, objects := w.Len()
	fmt.Println("=== World Summary ===")
	fmt.Printf("Grids:   %d\n", grids)
	fmt.Printf("Blocks:  %d\n", blocks)
	fmt.Printf("Objects: %d\n", objects)
	fmt.Println()
	fmt.Println("=== Grids ===")

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBLOCKS\tSTATIC\tMOVING\tOWNERS")
	for _, g := range w.GetGrids(nil) {
		moving := g.Physics != nil && g.Physics.Moving()
		fmt.Fprintf(tw, "%d\t%s\t%d\t%v\t%v\t%s\n",
			g.ID, g.Name, len(g.GetBlocks(nil)), g.IsStatic, moving, admin.FormatIDs(g.Owners()))
	}
	tw.Flush()
}

func cmdOwned(e *env, args []string) error {
	if len(args) < 1 {
		return errors.New("missing player id")
	}
	p, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid player id %q", args[0])
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	fmt.Println(admin.FormatIDs(store.GridsOwnedBy(world.PlayerID(p))))
	return nil
}

func cmdAttached(e *env, args []string) error {
	fs := flag.NewFlagSet("attached", flag.ContinueOnError)
	modeStr := fs.String("mode", e.cfg.DefaultMode, "traversal mode: all or static")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, err := attach.ParseMode(*modeStr)
	if err != nil {
		return err
	}
	id, err := parseID(fs.Args(), "grid")
	if err != nil {
		return err
	}
	svc, _, err := e.service()
	if err != nil {
		return err
	}
	set, err := svc.AttachedGrids(id, mode)
	if err != nil {
		return err
	}
	fmt.Printf("%d (%s): %s\n", id, mode, admin.FormatIDs(set.IDs()))
	return nil
}

func cmdOwners(e *env, args []string) error {
	id, err := parseID(args, "grid")
	if err != nil {
		return err
	}
	svc, _, err := e.service()
	if err != nil {
		return err
	}
	owners, err := svc.AllSmallOwners(id)
	if err != nil {
		return err
	}
	fmt.Println(admin.FormatIDs(owners))
	return nil
}

func cmdStop(e *env, args []string) error {
	id, err := parseID(args, "entity")
	if err != nil {
		return err
	}
	svc, store, err := e.service()
	if err != nil {
		return err
	}
	w := svc.World()

	if g := w.Grid(id); g != nil {
		rep, err := svc.StopShip(id)
		if err != nil {
			return err
		}
		if err := persistGrids(store, w, rep.Halted); err != nil {
			return err
		}
		fmt.Printf("Stopped %d grid(s) of a %d-grid structure: %s\n", len(rep.Halted), rep.Structure, admin.FormatIDs(rep.Halted))
		if len(rep.Dampened) > 0 {
			fmt.Printf("Dampeners switched on: %s\n", admin.FormatIDs(rep.Dampened))
		}
		if len(rep.Static) > 0 {
			fmt.Printf("Static, left alone: %s\n", admin.FormatIDs(rep.Static))
		}
		return nil
	}

	stopped, err := svc.Stop(id)
	if err != nil {
		return err
	}
	if !stopped {
		fmt.Printf("Entity %d cannot move.\n", id)
		return nil
	}
	if o := w.Object(id); o != nil {
		if err := store.PutObject(o); err != nil {
			return err
		}
	}
	fmt.Printf("Stopped entity %d.\n", id)
	return nil
}

func cmdEject(e *env, args []string) error {
	id, err := parseID(args, "grid")
	if err != nil {
		return err
	}
	svc, store, err := e.service()
	if err != nil {
		return err
	}
	ejected, err := svc.EjectControllingPlayers(id)
	if err != nil {
		return err
	}
	if len(ejected) == 0 {
		fmt.Println("No pilots on that grid.")
		return nil
	}
	if err := persistGrids(store, svc.World(), []world.EntityID{id}); err != nil {
		return err
	}
	fmt.Printf("Ejected: %s\n", admin.FormatIDs(ejected))
	return nil
}

func cmdPower(e *env, args []string) error {
	id, err := parseID(args, "block")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("missing on|off")
	}
	var on bool
	switch args[1] {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("expected on or off, got %q", args[1])
	}

	// The CLI applies changes locally; there is no bus to replicate through.
	svc, store, err := e.service(admin.WithMultiplayer(false))
	if err != nil {
		return err
	}
	if err := svc.SetPower(id, on); err != nil {
		return err
	}
	b := svc.World().Block(id)
	if err := persistGrids(store, svc.World(), []world.EntityID{b.Grid}); err != nil {
		return err
	}
	fmt.Printf("Block %d enabled=%v working=%v\n", id, b.Enabled, b.Working)
	return nil
}

func cmdValidate(e *env, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fix := fs.Bool("fix", false, "apply every available fix and save the world")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	w := store.World()
	v := validate.New(w)
	v.Run()

	fixed := 0
	if *fix {
		for _, cat := range []validate.Category{validate.CatDanglingJoint, validate.CatForeignGrid} {
			fixed += v.ApplyAll(cat)
		}
		if fixed > 0 {
			if err := store.PutGrids(w.GetGrids(nil)...); err != nil {
				return err
			}
		}
	}

	if *asJSON {
		return validate.GenerateReport(v).WriteJSON(os.Stdout)
	}

	findings := v.Findings()
	if len(findings) == 0 {
		fmt.Println("No problems found.")
		return nil
	}
	fmt.Println("=== Validation ===")
	for _, f := range findings {
		mark := ""
		if f.Fixed {
			mark = " [fixed]"
		} else if f.Fixable {
			mark = " [fixable]"
		}
		fmt.Printf("%-8s %-10s %-17s %s%s\n", f.Severity, f.ID, f.Category, f.Description, mark)
	}
	fmt.Println()
	for cat, n := range v.Summary() {
		fmt.Printf("%s: %d\n", cat, n)
	}
	if fixed > 0 {
		fmt.Printf("Applied %d fix(es).\n", fixed)
	}
	if n := v.Errors(); n > 0 {
		return fmt.Errorf("%d unresolved error(s)", n)
	}
	return nil
}

func cmdAudit(e *env, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	n := fs.Int("n", 20, "number of entries")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := e.openAudit()
	if err != nil {
		return err
	}
	if a == nil {
		return errors.New("no audit database configured")
	}
	entries, err := a.Recent(context.Background(), *n)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tACTOR\tACTION\tORIGIN\tGRIDS\tDETAIL")
	for _, en := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%s\t%s\n",
			en.ID, en.At.Format("2006-01-02 15:04:05"), en.Actor, en.Action, en.Origin, admin.FormatIDs(en.Grids), en.Detail)
	}
	return tw.Flush()
}

func cmdArchive(e *env, args []string) error {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	list := fs.Bool("list", false, "list existing archives instead of writing one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *list {
		infos, err := archive.ListArchives(e.cfg.ArchiveDir)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Printf("No archives in %s\n", e.cfg.ArchiveDir)
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tSIZE\tTAKEN\tGRIDS\tBLOCKS")
		for _, in := range infos {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\n", in.Filename, in.Size, in.Timestamp, in.Grids, in.Blocks)
		}
		return tw.Flush()
	}

	store, err := e.openStore()
	if err != nil {
		return err
	}
	a, err := e.openAudit()
	if err != nil {
		return err
	}
	grids, blocks, _ := store.World().Len()
	path, err := writeArchive(e, store, a, grids, blocks)
	if err != nil {
		return err
	}
	fmt.Printf("Archive written: %s\n", path)
	return nil
}

func cmdRestore(e *env, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	overwrite := fs.Bool("overwrite", false, "replace world and config files that differ from the archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("missing archive path")
	}
	res, err := archive.RestoreArchive(archive.RestoreParams{
		ArchivePath: fs.Arg(0),
		BoltDest:    e.cfg.BoltPath,
		AuditDest:   e.cfg.AuditDB,
		WorldDest:   e.cfg.WorldFile,
		ConfDest:    e.cfg.Path(),
		Overwrite:   *overwrite,
	})
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	fmt.Printf("Restored %d file(s) from archive taken %s (%d grids, %d blocks)\n",
		res.FilesRestored, res.Manifest.Timestamp, res.Manifest.Grids, res.Manifest.Blocks)
	return nil
}

func cmdToken(e *env, args []string) error {
	if len(args) < 1 {
		return errors.New("missing actor id")
	}
	actor, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid actor id %q", args[0])
	}
	if e.cfg.JWTSecret == "" {
		return errors.New("jwt_secret is not configured; tokens would not survive a restart")
	}
	auth := web.NewAuthService(e.cfg.JWTSecret, e.cfg.JWTExpiry, "")
	tok, err := auth.Issue(world.PlayerID(actor))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func cmdHashPassword(e *env, args []string) error {
	if len(args) < 1 || args[0] == "" {
		return errors.New("missing password")
	}
	hash, err := web.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func cmdGenSecret(e *env, args []string) error {
	fmt.Println(web.GenerateSecret())
	return nil
}

// persistGrids writes the listed grids back to the store.
func persistGrids(store *boltstore.Store, w *world.World, ids []world.EntityID) error {
	grids := make([]*world.Grid, 0, len(ids))
	for _, id := range ids {
		if g := w.Grid(id); g != nil {
			grids = append(grids, g)
		}
	}
	return store.PutGrids(grids...)
}
