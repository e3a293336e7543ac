package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/evcraddock/carevisit/internal/visit"
)

// seedFile is the YAML layout accepted by `cv seed`.
type seedFile struct {
	Visits []visit.NewVisit `yaml:"visits"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load scheduled visits from a YAML file",
		Long:  "Insert the visits (with their clients and tasks) listed in a YAML file into the database.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeed,
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}
	if len(sf.Visits) == 0 {
		return fmt.Errorf("seed file %s has no visits", args[0])
	}

	database, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer closeDB(database)

	repo := visit.NewRepository(database)
	created := make([]*visit.Visit, 0, len(sf.Visits))
	for i, nv := range sf.Visits {
		v, err := repo.Create(cmd.Context(), nv)
		if err != nil {
			return fmt.Errorf("creating visit %d: %w", i+1, err)
		}
		created = append(created, v)
	}

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), created)
	}
	for _, v := range created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created visit %s (%s, %d tasks)\n", v.ID, v.Client.FullName(), len(v.Tasks))
	}
	return nil
}
