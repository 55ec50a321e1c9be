package cli

import (
	"fmt"
	"strings"

	"github.com/me/jobcascade/internal/jobfile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <jobs.yaml>",
		Short: "Create the projects listed in a job definition file",
		Long: "Create every project in the file that does not exist yet. Existing projects " +
			"are left unchanged. Values are stored exactly as written.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := jobfile.ReadFile(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, fixedUser(flagUser), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			created, skipped := 0, 0
			for _, def := range f.Projects {
				p := def.Build()
				if !a.projects.Add(p) {
					fmt.Fprintf(out, "Skipped %s: already exists\n", def.Name)
					skipped++
					continue
				}
				a.initializer.OnCreatedFromScratch(cmd.Context(), p)
				if err := a.store.CreateProject(cmd.Context(), p); err != nil {
					a.projects.Remove(p.Name())
					return fmt.Errorf("create project %s: %w", p.Name(), err)
				}
				fmt.Fprintf(out, "Created %s\n", p.Name())
				created++
			}
			fmt.Fprintf(out, "Imported %d project(s), skipped %d\n", created, skipped)

			if err := a.graph.Rebuild(cmd.Context()); err != nil {
				fmt.Fprintf(out, "Warning: %v\n", err)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every project as a job definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, fixedUser(flagUser), logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return jobfile.Write(cmd.OutOrStdout(), a.projects.All())
		},
	}
}

func newShowCmd() *cobra.Command {
	var own bool

	cmd := &cobra.Command{
		Use:   "show <project>",
		Short: "Show the effective configuration of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, fixedUser(flagUser), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.projects.Lookup(args[0])
			if p == nil {
				return fmt.Errorf("project %q not found", args[0])
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if own {
				err = enc.Encode(jobfile.Describe(p))
			} else {
				err = enc.Encode(a.resolver.Resolve(p))
			}
			if err != nil {
				return fmt.Errorf("encode project: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&own, "own", false, "Show only the project's own overrides")
	return cmd
}

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print projects in build order with their downstream projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, fixedUser(flagUser), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.graph.Rebuild(cmd.Context()); err != nil {
				return err
			}
			g := a.graph.Graph()
			out := cmd.OutOrStdout()
			for _, name := range g.Order() {
				if down := g.Downstream(name); len(down) > 0 {
					fmt.Fprintf(out, "%s -> %s\n", name, strings.Join(down, ", "))
				} else {
					fmt.Fprintln(out, name)
				}
			}
			return nil
		},
	}
}
