package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/identity"
)

// PutResult reports what a put applied.
type PutResult struct {
	Table    string   `json:"table"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Deleted  int      `json:"deleted"`
	Skipped  int      `json:"skipped"`
	IDs      []string `json:"ids,omitempty"` // identities of the saved records, in input order
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var deletes []string

	cmd := &cobra.Command{
		Use:   "put <table> [records.yaml|-]",
		Short: "Insert, update and delete entities in one transaction",
		Long: `Save a YAML list of records into a table.

Each record maps field names to values. A record carrying the identity
field updates the stored entity, or is inserted under that identity when
none is stored. A record without it is inserted with a generated
identity. Stream fields take either inline text or {file: path}, with
paths relative to the records file.

  - name: apple
    size: 3
  - id: 7
    name: pear
    body: {file: pear.txt}

--delete removes identities after the records are saved.`,
		Example: `  entitydb put items items.yaml
  entitydb put items - < items.yaml
  entitydb put items --delete 3 --delete 4`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && len(deletes) == 0 {
				return NewExitError(ExitCommandError, "nothing to put: pass a records file or --delete")
			}
			return runPut(cmd, rootOpts, args, deletes)
		},
	}

	cmd.Flags().StringArrayVar(&deletes, "delete", nil, "identity to delete (repeatable)")
	return cmd
}

func runPut(cmd *cobra.Command, opts *RootOptions, args, deletes []string) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts, cmd)

	var records []map[string]any
	baseDir := "."
	if len(args) == 2 {
		var err error
		records, baseDir, err = readRecords(args[1], cmd.InOrStdin())
		if err != nil {
			_ = formatter.Error(ErrCodeUsage, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read records", err)
		}
	}

	sess, err := OpenSession(ctx, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open session", err)
	}
	defer sess.Close()

	t, err := sess.Table(args[0])
	if err != nil {
		return err
	}

	entities := make([]*entity.Entity, len(records))
	for i, rec := range records {
		e, err := buildEntity(t, rec, baseDir)
		if err != nil {
			return formatter.Fail(ExitCommandError, fmt.Sprintf("record %d", i), err)
		}
		entities[i] = e
	}
	ids := make([]identity.ID, len(deletes))
	for i, raw := range deletes {
		id, err := t.ParseID(raw)
		if err != nil {
			return formatter.Fail(ExitCommandError, "invalid --delete", err)
		}
		ids[i] = id
	}

	res, err := putEntities(ctx, sess.DB, t, entities, ids)
	if err != nil {
		return formatter.Fail(ExitFailure, "put failed", err)
	}
	formatter.VerboseLog("Put %d record(s) into %s", len(records), t.Name())

	out := PutResult{
		Table:    t.Name(),
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Deleted:  res.Deleted,
		Skipped:  res.Skipped,
	}
	for _, e := range entities {
		out.IDs = append(out.IDs, e.ID().String())
	}
	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	fmt.Fprintf(formatter.Writer, "%s: %d inserted, %d updated, %d deleted, %d skipped\n",
		out.Table, out.Inserted, out.Updated, out.Deleted, out.Skipped)
	return nil
}

// putEntities saves entities and deletes ids in one transaction. Records
// with an identity that is not stored yet are inserted under it; the
// rest go through an Updater.
func putEntities(ctx context.Context, db *entitydb.Database, t *entitydb.Table, entities []*entity.Entity, ids []identity.ID) (entitydb.Result, error) {
	var res entitydb.Result
	err := db.RunInTransaction(ctx, func(ctx context.Context) error {
		u := entitydb.NewUpdater(db, t)
		preassigned := 0
		for _, e := range entities {
			if !e.ID().IsZero() {
				found, err := t.Contains(ctx, e.ID())
				if err != nil {
					return err
				}
				if !found {
					if err := t.Insert(ctx, e); err != nil {
						return fmt.Errorf("insert %s: %w", e.ID(), err)
					}
					preassigned++
					continue
				}
			}
			u.Add(e)
		}
		u.Delete(ids...)

		var err error
		res, err = u.SaveOrUpdate(ctx)
		res.Inserted += preassigned
		return err
	})
	return res, err
}

// readRecords decodes a YAML list of records from path, or from stdin
// when path is "-". It returns the directory stream paths resolve
// against.
func readRecords(path string, stdin io.Reader) ([]map[string]any, string, error) {
	var (
		data []byte
		err  error
		base = "."
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
		base = filepath.Dir(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read records: %w", err)
	}

	var records []map[string]any
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, "", fmt.Errorf("failed to parse records: %w", err)
	}
	return records, base, nil
}

// buildEntity turns one decoded record into a detached entity of t.
func buildEntity(t *entitydb.Table, rec map[string]any, baseDir string) (*entity.Entity, error) {
	e := t.NewEntity()
	for name, v := range rec {
		switch {
		case name == t.IdentityField():
			id, err := t.ParseID(fmt.Sprint(v))
			if err != nil {
				return nil, err
			}
			if err := e.SetID(id); err != nil {
				return nil, err
			}
		case t.Schema().HasStream(name):
			if err := setStream(e, name, v, baseDir); err != nil {
				return nil, err
			}
		default:
			if err := e.Set(name, v); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

func setStream(e *entity.Entity, name string, v any, baseDir string) error {
	switch src := v.(type) {
	case string:
		return e.SetStreamBytes(name, []byte(src))
	case map[string]any:
		path, ok := src["file"].(string)
		if !ok || len(src) != 1 {
			return dberr.New(dberr.CodeSchema, "stream %s: want text or {file: path}", name).OnField(name)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return e.SetStreamFile(afero.NewOsFs(), name, path)
	default:
		return dberr.New(dberr.CodeSchema, "stream %s: unsupported value %T", name, v).OnField(name)
	}
}
