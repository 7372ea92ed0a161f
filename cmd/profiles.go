package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/regintel/internal/model"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage company profiles",
}

var profilesImportPath string

var profilesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import company profiles from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(profilesImportPath)
		if err != nil {
			return eris.Wrapf(err, "open %s", profilesImportPath)
		}
		defer f.Close() //nolint:errcheck

		profiles, err := parseProfiles(f)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertProfiles(ctx, profiles)
		if err != nil {
			return eris.Wrap(err, "import profiles")
		}

		zap.L().Info("import complete",
			zap.Int64("profiles", n),
			zap.String("file", profilesImportPath),
		)
		return nil
	},
}

// profilesFile is the YAML layout accepted by profiles import.
type profilesFile struct {
	Profiles []model.CompanyProfile `yaml:"profiles"`
}

// parseProfiles decodes and validates a profiles file. Every profile needs
// an ID so that re-imports update rather than duplicate.
func parseProfiles(r io.Reader) ([]model.CompanyProfile, error) {
	var pf profilesFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil {
		return nil, eris.Wrap(err, "parse profiles yaml")
	}
	if len(pf.Profiles) == 0 {
		return nil, eris.New("profiles file contains no profiles")
	}
	seen := make(map[string]bool, len(pf.Profiles))
	for i, p := range pf.Profiles {
		if p.ID == "" {
			return nil, eris.Errorf("profile %d: id is required", i+1)
		}
		if seen[p.ID] {
			return nil, eris.Errorf("profile %d: duplicate id %q", i+1, p.ID)
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			return nil, eris.Wrapf(err, "profile %q", p.ID)
		}
	}
	return pf.Profiles, nil
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List company profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		user, _ := cmd.Flags().GetString("user")
		profiles, err := st.ListProfiles(ctx, user)
		if err != nil {
			return eris.Wrap(err, "profiles list")
		}
		if len(profiles) == 0 {
			fmt.Fprintln(os.Stderr, "No profiles found.")
			return nil
		}
		formatProfilesList(os.Stdout, profiles)
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <profile-id>",
	Short: "Show a company profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProfile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "profiles show")
		}
		return printJSON(os.Stdout, p)
	},
}

func formatProfilesList(w io.Writer, profiles []model.CompanyProfile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tINDUSTRY\tJURISDICTION\tKEYWORDS")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.CompanyName, p.Industry, p.Jurisdiction, len(p.Keywords))
	}
	_ = tw.Flush()
}

func init() {
	profilesImportCmd.Flags().StringVar(&profilesImportPath, "file", "", "path to profiles YAML file (required)")
	_ = profilesImportCmd.MarkFlagRequired("file")
	profilesListCmd.Flags().String("user", "", "filter by user ID")

	profilesCmd.AddCommand(profilesImportCmd, profilesListCmd, profilesShowCmd)
	rootCmd.AddCommand(profilesCmd)
}
