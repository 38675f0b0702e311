package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/entitydb/internal/compiler"
	"github.com/roach88/entitydb/internal/config"
	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/store"
	"github.com/roach88/entitydb/internal/streamstore"
)

// Session is an opened database with every declared table created.
type Session struct {
	Config *config.Config
	DB     *entitydb.Database
	Decls  []compiler.TableDecl
}

// LoadConfig reads the configuration named by the --config flag, or the
// defaults when none is given.
func LoadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, withCode(ErrCodeConfig, err)
	}
	return cfg, nil
}

// LoadDeclarations compiles and validates the CUE table declarations in
// dir. Validation problems are joined into one error.
func LoadDeclarations(dir string) ([]compiler.TableDecl, error) {
	decls, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, withCode(ErrCodeSchemas, err)
	}
	if verrs := compiler.Validate(decls); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, verr := range verrs {
			errs[i] = verr
		}
		return nil, errors.Join(errs...)
	}
	return decls, nil
}

// OpenSession loads the configuration and declarations, opens the backend
// and creates every declared table.
func OpenSession(ctx context.Context, opts *RootOptions) (*Session, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	decls, err := LoadDeclarations(cfg.Schemas.Dir)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, withCode(ErrCodeBackend, err)
	}

	for _, decl := range decls {
		spec := decl.TableSpec()
		if spec.Cache && spec.CacheSize == 0 {
			spec.CacheSize = cfg.Cache.Size
		}
		if _, err := db.CreateTable(ctx, spec); err != nil {
			db.Close()
			return nil, err
		}
	}
	slog.Debug("session opened", "driver", cfg.Database.Driver, "tables", len(decls))
	return &Session{Config: cfg, DB: db, Decls: decls}, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*entitydb.Database, error) {
	var streams streamstore.Store = streamstore.NewMem()
	if cfg.Streams.Dir != "" {
		streams = streamstore.NewOS(cfg.Streams.Dir)
	}

	if cfg.Database.Driver == config.DriverMemory {
		return entitydb.Open(entitydb.Options{
			Manager: entitydb.NewNopManager(cfg.Database.ReadOnly),
			Streams: streams,
		}), nil
	}

	var sopts []store.Option
	if cfg.Database.ReadOnly {
		sopts = append(sopts, store.ReadOnly())
	}
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, sopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return entitydb.Open(entitydb.Options{
		Manager: st,
		Streams: streams,
		Maps:    st.Factory(),
	}), nil
}

// Table returns a declared table, or a command error naming it.
func (s *Session) Table(name string) (*entitydb.Table, error) {
	t, ok := s.DB.Table(name)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown table %q", name))
	}
	return t, nil
}

// Close closes the database.
func (s *Session) Close() error {
	return s.DB.Close()
}
