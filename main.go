package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"churngen/pkg/config"
	"churngen/pkg/database"
	apperr "churngen/pkg/errors"
	"churngen/pkg/generator"
	"churngen/pkg/logger"
	"churngen/pkg/models"
	"churngen/pkg/output"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	fs := config.NewFlagSet("churngen")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	settings, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config [%s]: %v\n", apperr.CodeOf(err), err)
		os.Exit(1)
	}

	log, err := logger.New(settings.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), settings, log); err != nil {
		log.Error("generation failed", zap.String("code", apperr.CodeOf(err)), zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, s *config.Settings, log *zap.Logger) error {
	log.Info("starting", zap.String("params", s.Describe()))

	g, err := generator.New(s.Generation, log)
	if err != nil {
		return err
	}
	var progress io.Writer
	if s.Progress {
		progress = os.Stderr
	}
	res, err := g.WithProgress(progress).Run()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	// Both files are written only after everything above succeeded.
	paths, err := output.WriteCSV(res.Dataset, s.OutputDir)
	if err != nil {
		return err
	}
	log.Info("files written", zap.String("customers", paths.Customers), zap.String("orders", paths.Orders))

	if s.Workbook != "" {
		if err := output.WriteWorkbook(res.Dataset, s.Workbook); err != nil {
			return fmt.Errorf("workbook: %w", err)
		}
		log.Info("workbook written", zap.String("path", s.Workbook))
	}

	if s.DSN != "" {
		if err := loadIntoDatabase(ctx, s, res, log); err != nil {
			return err
		}
	}

	// one line per artifact, semicolon separated
	fmt.Printf("%s ; rows=%d\n", paths.Customers, len(res.Dataset.Customers))
	fmt.Printf("%s ; rows=%d\n", paths.Orders, len(res.Dataset.Orders))
	fmt.Printf("churn ; first_half=%d ; churned=%d ; rate=%.1f%%\n",
		res.Report.FirstHalfCustomers, res.Report.Churned, res.Report.Rate*100)
	return nil
}

func loadIntoDatabase(ctx context.Context, s *config.Settings, res *generator.Result, log *zap.Logger) error {
	db, _, err := database.Open(s.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	loader, err := database.NewLoader(db, database.DefaultTables(), log)
	if err != nil {
		return err
	}
	if err := loader.LoadDataset(ctx, res.Dataset); err != nil {
		return err
	}

	remote, err := loader.DeriveChurn(ctx, s.Generation.Calendar)
	if err != nil {
		return err
	}
	if mismatch := compareReports(res.Report, remote); mismatch > 0 {
		log.Warn("database churn differs from in-memory churn", zap.Int("mismatches", mismatch))
	} else {
		log.Info("database churn matches", zap.Int("churned", remote.Churned), zap.Float64("rate", remote.Rate))
	}
	return nil
}

func compareReports(local, remote models.ChurnReport) int {
	mismatch := 0
	for id, churned := range local.Labels {
		if got, ok := remote.Labels[id]; !ok || got != churned {
			mismatch++
		}
	}
	for id := range remote.Labels {
		if _, ok := local.Labels[id]; !ok {
			mismatch++
		}
	}
	return mismatch
}
