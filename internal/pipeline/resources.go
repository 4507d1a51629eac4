package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cormorant-bio/indelclass/internal/classify"
	"github.com/cormorant-bio/indelclass/internal/datasource/clinvar"
	"github.com/cormorant-bio/indelclass/internal/datasource/dbsnp"
	"github.com/cormorant-bio/indelclass/internal/datasource/exondb"
	"github.com/cormorant-bio/indelclass/internal/datasource/panel"
	"github.com/cormorant-bio/indelclass/internal/evidence"
)

// Resources are the run-wide read-only inputs: annotation databases,
// the optional panel, and the model ensemble. Loaded once, shared by
// every worker, never mutated after LoadResources returns.
type Resources struct {
	Exons    *exondb.DB
	DBSNP    *dbsnp.Store
	Clinvar  *clinvar.Store
	Panel    *panel.Panel // nil when no panel is configured
	Ensemble *classify.Ensemble
}

// LoadResources opens and preloads everything the workers share.
// Loads run concurrently; the first failure wins and whatever already
// loaded is closed. Call Validate on the config first.
func LoadResources(ctx context.Context, cfg *Config, log *zap.Logger) (*Resources, error) {
	res := &Resources{}
	start := time.Now()

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		db, err := exondb.Load(cfg.ExonPath())
		if err != nil {
			return fmt.Errorf("load exon bundle: %w", err)
		}
		res.Exons = db
		log.Info("loaded exon bundle",
			zap.String("path", cfg.ExonPath()),
			zap.Int("exons", db.Count()))
		return nil
	})

	g.Go(func() error {
		store, err := dbsnp.Open(cfg.DBSNPPath())
		if err != nil {
			return fmt.Errorf("open dbsnp bundle: %w", err)
		}
		res.DBSNP = store
		if !store.Loaded() {
			return fmt.Errorf("dbsnp bundle %s is empty; run indelclass prepare dbsnp", cfg.DBSNPPath())
		}
		if err := store.PreloadToMemory(); err != nil {
			return fmt.Errorf("preload dbsnp bundle: %w", err)
		}
		log.Info("loaded dbsnp bundle",
			zap.String("path", cfg.DBSNPPath()),
			zap.Int64("indels", store.MemCacheSize()))
		if info, ok := store.BuildInfo(); ok {
			log.Debug("dbsnp bundle provenance",
				zap.String("source", info.Source.Path),
				zap.Time("built", info.BuiltAt),
				zap.String("tool", info.Tool))
		}
		return nil
	})

	g.Go(func() error {
		store, err := clinvar.Open(cfg.ClinvarPath())
		if err != nil {
			return fmt.Errorf("open clinvar bundle: %w", err)
		}
		res.Clinvar = store
		if !store.Loaded() {
			return fmt.Errorf("clinvar bundle %s is empty; run indelclass prepare clinvar", cfg.ClinvarPath())
		}
		if err := store.PreloadToMemory(); err != nil {
			return fmt.Errorf("preload clinvar bundle: %w", err)
		}
		log.Info("loaded clinvar bundle",
			zap.String("path", cfg.ClinvarPath()),
			zap.Int64("indels", store.MemCacheSize()))
		if info, ok := store.BuildInfo(); ok {
			log.Debug("clinvar bundle provenance",
				zap.String("source", info.Source.Path),
				zap.Time("built", info.BuiltAt),
				zap.String("tool", info.Tool))
		}
		return nil
	})

	g.Go(func() error {
		ens, err := classify.LoadEnsemble(cfg.ModelsPath())
		if err != nil {
			return fmt.Errorf("load models: %w", err)
		}
		res.Ensemble = ens
		log.Info("loaded models", zap.String("dir", cfg.ModelsPath()))
		return nil
	})

	if cfg.Panel != "" {
		g.Go(func() error {
			ref, err := evidence.OpenFasta(cfg.Reference)
			if err != nil {
				return err
			}
			defer ref.Close()

			p, err := panel.Load(cfg.Panel, ref)
			if err != nil {
				return fmt.Errorf("load panel: %w", err)
			}
			res.Panel = p
			log.Info("loaded panel",
				zap.String("path", cfg.Panel),
				zap.Int("indels", p.Count()),
				zap.Int("skipped", p.Skipped()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		res.Close()
		return nil, err
	}

	log.Info("resources ready", zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// Close releases the database handles and model sessions.
func (r *Resources) Close() error {
	var err error
	if r.DBSNP != nil {
		err = multierr.Append(err, r.DBSNP.Close())
	}
	if r.Clinvar != nil {
		err = multierr.Append(err, r.Clinvar.Close())
	}
	if r.Ensemble != nil {
		err = multierr.Append(err, r.Ensemble.Close())
	}
	return err
}
