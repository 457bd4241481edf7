// Command folio is a thin CLI over pkg/pipeline: convert, validate, and
// repair ebook files from the shell without linking against any host
// service. It mirrors the teacher's cmd/migrations CLI shape — logger,
// config, then a urfave/cli App with one Action per subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"

	"github.com/folioglyph/folioglyph/pkg/config"
	"github.com/folioglyph/folioglyph/pkg/detect"
	"github.com/folioglyph/folioglyph/pkg/optimize"
	"github.com/folioglyph/folioglyph/pkg/pipeline"
	"github.com/folioglyph/folioglyph/pkg/repair"
	"github.com/folioglyph/folioglyph/pkg/validate"
	"github.com/folioglyph/folioglyph/pkg/version"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	app := &cli.App{
		Name:        "folio",
		Usage:       "convert, validate, and repair ebook files",
		Description: "CLI to drive the folioglyph ebook pipeline",
		Version:     version.Version,
		Commands: []*cli.Command{
			convertCommand(log, cfg),
			validateCommand(log, cfg),
			repairCommand(log, cfg),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func convertCommand(log logger.Logger, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "convert an ebook file to another format",
		ArgsUsage: "<input> <output>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "target format (epub, txt)", Value: "epub"},
			&cli.BoolFlag{Name: "validate", Usage: "run validation before writing"},
			&cli.BoolFlag{Name: "repair", Usage: "run repair before writing"},
			&cli.BoolFlag{Name: "optimize", Usage: "run optimization before writing"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("usage: folio convert <input> <output>", 1)
			}
			inPath, outPath := c.Args().Get(0), c.Args().Get(1)

			f, size, err := openFile(inPath)
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := detect.Detect(f, inPath)
			if err != nil {
				return err
			}

			runOpts := pipeline.RunOptions{
				Read:  readOptionsFromConfig(cfg),
				Write: writeOptionsFromConfig(cfg, detect.Format(c.String("to"))),
			}
			if c.Bool("validate") {
				opts := cfg.Validate
				runOpts.Validate = &opts
			}
			if c.Bool("repair") {
				opts := repair.DefaultOptions()
				runOpts.Repair = &opts
			}
			if c.Bool("optimize") {
				opts := optimize.DefaultOptions()
				opts.ImageQuality = cfg.ImageQuality
				runOpts.Optimize = &opts
			}

			run, err := pipeline.Run(result.Format, f, size, runOpts, func(tag string, current, total int, message string) {
				log.Info(message, logger.Data{"tag": tag, "current": current, "total": total})
			})
			if err != nil {
				return err
			}
			if len(run.ValidateIssues) > 0 {
				log.Warn("validation issues found", logger.Data{"count": len(run.ValidateIssues)})
			}

			if err := os.WriteFile(outPath, run.Output, 0o644); err != nil {
				return err
			}
			log.Info("converted", logger.Data{"input": inPath, "output": outPath, "format": string(result.Format)})
			return nil
		},
	}
}

func validateCommand(log logger.Logger, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "report validation issues for an ebook file",
		ArgsUsage: "<input>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return cli.Exit("usage: folio validate <input>", 1)
			}

			f, size, err := openFile(c.Args().Get(0))
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := detect.Detect(f, c.Args().Get(0))
			if err != nil {
				return err
			}

			doc, err := pipeline.Read(result.Format, f, size, readOptionsFromConfig(cfg), nil)
			if err != nil {
				return err
			}

			issues := validate.Validate(doc, cfg.Validate)
			for _, issue := range issues {
				fmt.Printf("[%s] %s: %s (%s)\n", issue.Severity, issue.Code, issue.Message, issue.Location)
			}
			log.Info("validation complete", logger.Data{"issues": len(issues)})
			if cfg.Validate.Strict && len(issues) > 0 {
				return cli.Exit("validation failed", 1)
			}
			return nil
		},
	}
}

func repairCommand(log logger.Logger, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "repair",
		Usage:     "attempt automatic repair and write the result back out",
		ArgsUsage: "<input> <output>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("usage: folio repair <input> <output>", 1)
			}
			inPath, outPath := c.Args().Get(0), c.Args().Get(1)

			f, size, err := openFile(inPath)
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := detect.Detect(f, inPath)
			if err != nil {
				return err
			}

			runOpts := pipeline.RunOptions{
				Read:  readOptionsFromConfig(cfg),
				Write: writeOptionsFromConfig(cfg, result.Format),
			}
			repairOpts := repair.DefaultOptions()
			runOpts.Repair = &repairOpts

			run, err := pipeline.Run(result.Format, f, size, runOpts, nil)
			if err != nil {
				return err
			}

			if err := os.WriteFile(outPath, run.Output, 0o644); err != nil {
				return err
			}
			log.Info("repaired", logger.Data{
				"input":         inPath,
				"output":        outPath,
				"fixes_applied": run.RepairReport.FixesApplied,
			})
			return nil
		},
	}
}

func openFile(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func readOptionsFromConfig(cfg *config.Config) pipeline.ReadOptions {
	return pipeline.ReadOptions{
		Security:     cfg.Security,
		Encoding:     cfg.Encoding,
		ExtractCover: cfg.ExtractCover,
		ParseTOC:     cfg.ParseTOC,
	}
}

func writeOptionsFromConfig(cfg *config.Config, _ detect.Format) pipeline.WriteOptions {
	return pipeline.WriteOptions{
		EPUBVersion:  cfg.EPUBVersion,
		ImageQuality: cfg.ImageQuality,
		EmbedFonts:   cfg.EmbedFonts,
		Minify:       cfg.Minify,
	}
}
