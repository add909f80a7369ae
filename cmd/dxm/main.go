package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dxm/internal/app"
	"dxm/internal/channel"
	"dxm/internal/config"
	"dxm/internal/errs"
	"dxm/internal/platform"
	"dxm/internal/scaffold"
	syncsvc "dxm/internal/sync"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, msg: fmt.Sprintf(format, args...)}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ex ExitCoder
	if errors.As(err, &ex) {
		return ex.ExitCode()
	}
	if errs.IsKind(err, errs.Rollback) {
		return 3
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var jsonOutput bool
	var verbose bool
	var quiet bool

	newSvc := func() (*app.Service, error) {
		level := slog.LevelInfo
		switch {
		case verbose:
			level = slog.LevelDebug
		case quiet:
			level = slog.LevelWarn
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return app.New(app.Options{Logger: logger})
	}

	cmd := &cobra.Command{
		Use:           "dxm",
		Short:         "FXServer artifact and resource manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	cmd.AddCommand(newInstallCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newUpdateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newAddCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newRemoveCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newArtifactCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newInitCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newNewCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newStatusCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDoctorCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

// args wraps a positional validator so violations exit as usage errors.
func args(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := validate(cmd, a); err != nil {
			return usageError("%v", err)
		}
		return nil
	}
}

func dirArg(a []string, i int) string {
	if len(a) > i {
		return a[i]
	}
	return "."
}

func newInstallCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "install [manifest-dir]",
		Aliases: []string{"i", "sync"},
		Short:   "Install the artifact and every resource to their locked versions",
		Args:    args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report, err := svc.Install(context.Background(), dirArg(a, 0))
			if err != nil {
				return err
			}
			return printReport(*jsonOutput, report)
		},
	}
}

func newUpdateCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var target app.UpdateTarget
	cmd := &cobra.Command{
		Use:     "update [manifest-dir]",
		Aliases: []string{"up", "upgrade"},
		Short:   "Re-resolve references and install anything that moved",
		Args:    args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			if !target.All && !target.Artifact && target.Resource == "" {
				return usageError("one of --all, --artifact or --resource is required")
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report, err := svc.Update(context.Background(), dirArg(a, 0), target)
			if err != nil {
				return err
			}
			return printReport(*jsonOutput, report)
		},
	}
	cmd.Flags().BoolVar(&target.All, "all", false, "update the artifact and every resource")
	cmd.Flags().BoolVar(&target.Artifact, "artifact", false, "update the artifact only")
	cmd.Flags().StringVar(&target.Resource, "resource", "", "update a single resource")
	cmd.MarkFlagsMutuallyExclusive("all", "artifact", "resource")
	return cmd
}

func newAddCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var rc config.ResourceConfig
	cmd := &cobra.Command{
		Use:   "add <name> <url> [manifest-dir]",
		Short: "Add a resource to the manifest and install it",
		Args:  args(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, a []string) error {
			if err := config.ValidateResourceName(a[0]); err != nil {
				return usageError("%v", err)
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			rc.URL = a[1]
			report, err := svc.Add(context.Background(), dirArg(a, 2), a[0], rc)
			if err != nil {
				return err
			}
			return printReport(*jsonOutput, report)
		},
	}
	cmd.Flags().StringVar(&rc.Category, "category", "", "category directory under data/resources, e.g. [gameplay]")
	cmd.Flags().StringVar(&rc.NestedPath, "nested-path", "", "subdirectory of the archive to install")
	return cmd
}

func newRemoveCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name> [manifest-dir]",
		Aliases: []string{"rm", "uninstall"},
		Short:   "Remove a resource from the manifest, lockfile and disk",
		Args:    args(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, a []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report, err := svc.Remove(context.Background(), dirArg(a, 1), a[0])
			if err != nil {
				if syncsvc.IsUnknownResource(err) {
					return usageError("%v", err)
				}
				return err
			}
			return printReport(*jsonOutput, report)
		},
	}
}

func newArtifactCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	artifactCmd := &cobra.Command{Use: "artifact", Aliases: []string{"art"}, Short: "Manage the FXServer artifact"}

	artifactOp := func(use, short string, run func(*app.Service, context.Context, string, syncsvc.ArtifactOptions) (syncsvc.Report, error)) *cobra.Command {
		var opts syncsvc.ArtifactOptions
		var ch string
		c := &cobra.Command{
			Use:   use + " [manifest-dir]",
			Short: short,
			Args:  args(cobra.MaximumNArgs(1)),
			RunE: func(cmd *cobra.Command, a []string) error {
				if ch != "" {
					parsed, err := channel.Parse(ch)
					if err != nil {
						return usageError("%v", err)
					}
					opts.Channel = parsed
				}
				svc, err := newSvc()
				if err != nil {
					return err
				}
				report, err := run(svc, context.Background(), dirArg(a, 0), opts)
				if err != nil {
					return err
				}
				return printReport(*jsonOutput, report)
			},
		}
		c.Flags().StringVar(&opts.Version, "version", "", "pin a build number")
		c.Flags().StringVar(&ch, "channel", "", "update channel: "+channelNames())
		c.Flags().StringVar(&opts.Path, "path", "", "artifact directory relative to the manifest")
		return c
	}
	artifactCmd.AddCommand(artifactOp("install", "Install the artifact", (*app.Service).ArtifactInstall))
	artifactCmd.AddCommand(artifactOp("update", "Update the artifact to its channel's current build", (*app.Service).ArtifactUpdate))

	var platformName string
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "channels"},
		Short:   "Show the build each update channel points at",
		Args:    args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, a []string) error {
			p := platform.Default()
			if platformName != "" {
				parsed, err := platform.Parse(platformName)
				if err != nil {
					return usageError("%v", err)
				}
				p = parsed
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			entries, err := svc.ArtifactList(context.Background(), p)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, entries, "")
			}
			for _, e := range entries {
				fmt.Printf("%-12s %s\n", e.Channel, e.Version)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&platformName, "platform", "", "windows or linux (default: host)")
	artifactCmd.AddCommand(listCmd)
	return artifactCmd
}

func channelNames() string {
	names := make([]string, 0, len(channel.All()))
	for _, c := range channel.All() {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}

func newInitCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var opts scaffold.Options
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a manifest and server layout in an existing directory",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			res, err := svc.Init(context.Background(), dirArg(a, 0), opts)
			if err != nil {
				return err
			}
			return print(*jsonOutput, res, "initialized "+res.Root)
		},
	}
	cmd.Flags().BoolVar(&opts.Git, "git", false, "initialize a git repository")
	return cmd
}

func newNewCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var opts scaffold.Options
	cmd := &cobra.Command{
		Use:   "new <dir>",
		Short: "Create a new server directory",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			res, err := svc.NewServer(context.Background(), a[0], opts)
			if err != nil {
				return err
			}
			return print(*jsonOutput, res, "created "+res.Root)
		},
	}
	cmd.Flags().BoolVar(&opts.Git, "git", false, "initialize a git repository")
	return cmd
}

func newStatusCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "status [manifest-dir]",
		Aliases: []string{"st", "ls"},
		Short:   "Show the install state of every entity",
		Args:    args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			statuses, err := svc.Status(dirArg(a, 0))
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, statuses, "")
			}
			for _, s := range statuses {
				line := fmt.Sprintf("%-9s %-24s %s", s.Kind, s.Name, s.State)
				if s.Error != "" {
					line += "  " + s.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newDoctorCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor [manifest-dir]",
		Aliases: []string{"diag", "checkup"},
		Short:   "Run diagnostics",
		Args:    args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report := svc.Doctor(context.Background(), dirArg(a, 0))
			if *jsonOutput {
				if err := print(true, report, ""); err != nil {
					return err
				}
			} else {
				for _, f := range report.Findings {
					fmt.Printf("- [%s] %s: %s\n", f.Level, f.Code, f.Message)
				}
				if report.Healthy {
					fmt.Println("healthy")
				}
			}
			if !report.Healthy {
				return &exitError{code: 1, msg: "issues found"}
			}
			return nil
		},
	}
}

func printReport(jsonOutput bool, report syncsvc.Report) error {
	if jsonOutput {
		return print(true, report, "")
	}
	lines := []struct {
		label string
		items []string
	}{
		{"installed", report.Installed},
		{"updated", report.Updated},
		{"removed", report.Removed},
		{"up to date", report.Skipped},
		{"warning", report.Warnings},
	}
	printed := false
	for _, l := range lines {
		if len(l.items) == 0 {
			continue
		}
		fmt.Printf("%s: %s\n", l.label, strings.Join(l.items, ", "))
		printed = true
	}
	if !printed {
		fmt.Println("nothing to do")
	}
	return nil
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
